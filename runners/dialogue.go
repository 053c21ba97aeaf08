package runners

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/evalflow/llm"
	"github.com/BaSui01/evalflow/types"
)

const (
	// DialogueRunnerID 对话执行单元 ID
	DialogueRunnerID = "dialogue_responder"
	// DialogueRunnerVersion 对话执行单元版本
	DialogueRunnerVersion = "1.0.0"

	defaultSystemPrompt = "You are a helpful assistant. Answer briefly."
	defaultReply        = "Sorry, I am not sure how to help with that."
	templateModel       = "template"
)

// DialogueMessage 一轮对话消息
type DialogueMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// DialogueInput 对话任务输入
type DialogueInput struct {
	Messages       []DialogueMessage `json:"messages"`
	DetectedIntent string            `json:"detected_intent,omitempty"`
}

// Validate 校验输入
func (in DialogueInput) Validate() error {
	if len(in.Messages) == 0 {
		return types.NewError(types.ErrInvalidInput, "dialogue input requires at least one message")
	}
	for i, m := range in.Messages {
		switch llm.Role(m.Role) {
		case llm.RoleSystem, llm.RoleUser, llm.RoleAssistant:
		default:
			return types.Errorf(types.ErrInvalidInput, "message %d has unknown role %q", i, m.Role)
		}
		if strings.TrimSpace(m.Content) == "" {
			return types.Errorf(types.ErrInvalidInput, "message %d has empty content", i)
		}
	}
	return nil
}

// lastUser 最后一条 user 消息
func (in DialogueInput) lastUser() string {
	for i := len(in.Messages) - 1; i >= 0; i-- {
		if in.Messages[i].Role == string(llm.RoleUser) {
			return in.Messages[i].Content
		}
	}
	return ""
}

// DialogueOutput 对话任务输出
type DialogueOutput struct {
	Reply  string `json:"reply"`
	Model  string `json:"model"`
	Intent string `json:"intent,omitempty"`
}

// DialogueConfig 对话配置
type DialogueConfig struct {
	Mode         string            `json:"mode"`
	Model        string            `json:"model"`
	Temperature  float32           `json:"temperature"`
	MaxTokens    int               `json:"max_tokens"`
	SystemPrompt string            `json:"system_prompt"`
	Replies      map[string]string `json:"replies"`
	DefaultReply string            `json:"default_reply"`
}

// Validate 校验配置
func (c DialogueConfig) Validate() error {
	switch c.Mode {
	case ModeTemplate, ModeLLM:
	default:
		return types.Errorf(types.ErrInvalidInput, "unknown dialogue mode %q", c.Mode)
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return types.Errorf(types.ErrInvalidInput, "temperature must be in [0, 2], got %v", c.Temperature)
	}
	if c.MaxTokens < 0 {
		return types.Errorf(types.ErrInvalidInput, "max_tokens must not be negative, got %d", c.MaxTokens)
	}
	return nil
}

// DialogueRunner 对话执行单元。
// 未指定 mode 时，有 provider 走 llm，否则走模板回复。
type DialogueRunner struct {
	provider llm.Provider
	logger   *zap.Logger
}

// NewDialogueRunner 创建对话执行单元
func NewDialogueRunner(provider llm.Provider, logger *zap.Logger) *DialogueRunner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DialogueRunner{
		provider: provider,
		logger:   logger.With(zap.String("component", "dialogue_runner")),
	}
}

func (r *DialogueRunner) ID() string                 { return DialogueRunnerID }
func (r *DialogueRunner) Type() types.CapabilityType { return types.CapabilityDialogue }
func (r *DialogueRunner) Version() string            { return DialogueRunnerVersion }

// Execute 生成一条回复
func (r *DialogueRunner) Execute(ctx context.Context, task *types.AtomicTask, config map[string]any) (*types.RunRecord, error) {
	rec := types.NewRunRecord(task, DialogueRunnerID, DialogueRunnerVersion, config)
	tracer := types.NewTracer("")

	if task == nil {
		return failRun(rec, tracer, types.NewError(types.ErrInvalidInput, "nil task")), nil
	}
	var in DialogueInput
	if err := decodePayload(task.Input, &in, "dialogue input"); err != nil {
		return failRun(rec, tracer, err), nil
	}
	cfg := DialogueConfig{Mode: ModeTemplate, SystemPrompt: defaultSystemPrompt, DefaultReply: defaultReply}
	if r.provider != nil {
		cfg.Mode = ModeLLM
	}
	if err := decodeConfig(config, &cfg); err != nil {
		return failRun(rec, tracer, err), nil
	}
	if err := cfg.Validate(); err != nil {
		return failRun(rec, tracer, err), nil
	}

	var out DialogueOutput
	if cfg.Mode == ModeLLM {
		reply, err := r.replyLLM(ctx, rec, in, cfg)
		if err != nil {
			r.logger.Warn("dialogue reply failed", zap.String("task_id", rec.TaskID), zap.Error(err))
			return failRun(rec, tracer, err), nil
		}
		out = reply
	} else {
		out = replyTemplate(in, cfg)
	}
	out.Intent = in.DetectedIntent
	tracer.Info("replied", map[string]any{
		"mode":      cfg.Mode,
		"model":     out.Model,
		"turns":     len(in.Messages),
		"intent":    in.DetectedIntent,
		"reply_len": len(out.Reply),
	})

	output, err := encodeOutput(out)
	if err != nil {
		return failRun(rec, tracer, err), nil
	}
	rec.Trace = tracer.Events()
	rec.Complete(output)
	return rec, nil
}

func replyTemplate(in DialogueInput, cfg DialogueConfig) DialogueOutput {
	reply, ok := cfg.Replies[in.DetectedIntent]
	if !ok || in.DetectedIntent == "" {
		reply = cfg.DefaultReply
	}
	// 模板里的 {message} 替换为最后一条用户消息
	reply = strings.ReplaceAll(reply, "{message}", in.lastUser())
	return DialogueOutput{Reply: reply, Model: templateModel}
}

func (r *DialogueRunner) replyLLM(ctx context.Context, rec *types.RunRecord, in DialogueInput, cfg DialogueConfig) (DialogueOutput, error) {
	if r.provider == nil {
		return DialogueOutput{}, types.NewError(types.ErrInvalidInput, "llm mode requires a provider")
	}

	system := cfg.SystemPrompt
	if in.DetectedIntent != "" {
		system = fmt.Sprintf("%s\nDetected user intent: %s", system, in.DetectedIntent)
	}
	messages := make([]llm.Message, 0, len(in.Messages)+1)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: system})
	for _, m := range in.Messages {
		messages = append(messages, llm.Message{Role: llm.Role(m.Role), Content: m.Content})
	}

	completion, err := llm.Complete(ctx, r.provider, &llm.ChatRequest{
		Model:       cfg.Model,
		Messages:    messages,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
	})
	if err != nil {
		return DialogueOutput{}, types.NewError(types.ErrUpstreamError, "dialogue call failed").WithCause(err)
	}
	addUsage(rec, completion)

	model := completion.Model
	if model == "" {
		model = cfg.Model
	}
	return DialogueOutput{Reply: strings.TrimSpace(completion.Text), Model: model}, nil
}
