package runners

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/evalflow/llm"
	"github.com/BaSui01/evalflow/types"
)

const (
	// IntentRunnerID 意图分类执行单元 ID
	IntentRunnerID = "intent_classifier"
	// IntentRunnerVersion 意图分类执行单元版本
	IntentRunnerVersion = "1.0.0"

	// DefaultIntent 没有任何关键词命中时的意图
	DefaultIntent = "unknown"
)

// IntentInput 意图任务输入
type IntentInput struct {
	Text string `json:"text"`
}

// Validate 校验输入
func (in IntentInput) Validate() error {
	if strings.TrimSpace(in.Text) == "" {
		return types.NewError(types.ErrInvalidInput, "intent input requires non-empty text")
	}
	return nil
}

// IntentOutput 意图任务输出
type IntentOutput struct {
	Intent     string   `json:"intent"`
	Confidence float64  `json:"confidence"`
	Matched    []string `json:"matched"`
}

// IntentConfig 意图分类配置
type IntentConfig struct {
	Intents       map[string][]string `json:"intents"`
	Mode          string              `json:"mode"`
	Model         string              `json:"model"`
	DefaultIntent string              `json:"default_intent"`
}

// Validate 校验配置
func (c IntentConfig) Validate() error {
	switch c.Mode {
	case ModeRules, ModeLLM:
	default:
		return types.Errorf(types.ErrInvalidInput, "unknown intent mode %q", c.Mode)
	}
	if c.Mode == ModeRules && len(c.Intents) == 0 {
		return types.NewError(types.ErrInvalidInput, "rules mode requires at least one intent")
	}
	for name, keywords := range c.Intents {
		if strings.TrimSpace(name) == "" {
			return types.NewError(types.ErrInvalidInput, "intent name must not be empty")
		}
		if c.Mode == ModeRules && len(keywords) == 0 {
			return types.Errorf(types.ErrInvalidInput, "intent %q has no keywords", name)
		}
	}
	return nil
}

// names 排序后的意图名
func (c IntentConfig) names() []string {
	names := make([]string, 0, len(c.Intents))
	for name := range c.Intents {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IntentRunner 意图分类执行单元。
// rules 模式按关键词命中数选择意图，并列时取名字典序最小者；
// llm 模式让模型返回 {"intent", "confidence"}。
type IntentRunner struct {
	provider llm.Provider
	logger   *zap.Logger
}

// NewIntentRunner 创建意图分类执行单元；provider 只在 llm 模式下使用
func NewIntentRunner(provider llm.Provider, logger *zap.Logger) *IntentRunner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IntentRunner{
		provider: provider,
		logger:   logger.With(zap.String("component", "intent_runner")),
	}
}

func (r *IntentRunner) ID() string                 { return IntentRunnerID }
func (r *IntentRunner) Type() types.CapabilityType { return types.CapabilityIntent }
func (r *IntentRunner) Version() string            { return IntentRunnerVersion }

// Execute 分类一段文本
func (r *IntentRunner) Execute(ctx context.Context, task *types.AtomicTask, config map[string]any) (*types.RunRecord, error) {
	rec := types.NewRunRecord(task, IntentRunnerID, IntentRunnerVersion, config)
	tracer := types.NewTracer("")

	if task == nil {
		return failRun(rec, tracer, types.NewError(types.ErrInvalidInput, "nil task")), nil
	}
	var in IntentInput
	if err := decodePayload(task.Input, &in, "intent input"); err != nil {
		return failRun(rec, tracer, err), nil
	}
	cfg := IntentConfig{Mode: ModeRules, DefaultIntent: DefaultIntent}
	if err := decodeConfig(config, &cfg); err != nil {
		return failRun(rec, tracer, err), nil
	}
	if err := cfg.Validate(); err != nil {
		return failRun(rec, tracer, err), nil
	}

	var (
		out IntentOutput
		err error
	)
	if cfg.Mode == ModeLLM {
		out, err = r.classifyLLM(ctx, rec, tracer, in, cfg)
		if err != nil {
			r.logger.Warn("intent classification failed", zap.String("task_id", rec.TaskID), zap.Error(err))
			return failRun(rec, tracer, err), nil
		}
	} else {
		out = ClassifyByKeywords(in.Text, cfg.Intents, cfg.DefaultIntent)
	}
	tracer.Info("classified", map[string]any{
		"mode":       cfg.Mode,
		"intent":     out.Intent,
		"confidence": out.Confidence,
	})

	output, err := encodeOutput(out)
	if err != nil {
		return failRun(rec, tracer, err), nil
	}
	rec.Trace = tracer.Events()
	rec.Complete(output)
	return rec, nil
}

// ClassifyByKeywords 关键词规则分类。
// 关键词按词边界匹配（多词关键词需整体出现），置信度为命中关键词占该意图关键词的比例。
func ClassifyByKeywords(text string, intents map[string][]string, fallback string) IntentOutput {
	if fallback == "" {
		fallback = DefaultIntent
	}
	haystack := " " + strings.Join(words(text), " ") + " "

	best := IntentOutput{Intent: fallback, Matched: []string{}}
	bestHits := 0
	for _, name := range (IntentConfig{Intents: intents}).names() {
		keywords := intents[name]
		var matched []string
		for _, kw := range keywords {
			needle := strings.Join(words(kw), " ")
			if needle == "" {
				continue
			}
			if strings.Contains(haystack, " "+needle+" ") {
				matched = append(matched, kw)
			}
		}
		if len(matched) > bestHits {
			bestHits = len(matched)
			best = IntentOutput{
				Intent:     name,
				Confidence: float64(len(matched)) / float64(len(keywords)),
				Matched:    matched,
			}
		}
	}
	return best
}

type intentReply struct {
	Intent     string  `json:"intent"`
	Confidence float64 `json:"confidence"`
}

func (r *IntentRunner) classifyLLM(ctx context.Context, rec *types.RunRecord, tracer *types.Tracer, in IntentInput, cfg IntentConfig) (IntentOutput, error) {
	if r.provider == nil {
		return IntentOutput{}, types.NewError(types.ErrInvalidInput, "llm mode requires a provider")
	}
	names := cfg.names()

	var prompt strings.Builder
	prompt.WriteString("Classify the user's intent.\n")
	if len(names) > 0 {
		fmt.Fprintf(&prompt, "Allowed intents: %s\n", strings.Join(names, ", "))
	}
	fmt.Fprintf(&prompt, "If none applies, answer %q.\n", cfg.DefaultIntent)
	prompt.WriteString(`Return JSON only: {"intent": "<name>", "confidence": 0.0-1.0}`)
	fmt.Fprintf(&prompt, "\n\nText: %s", in.Text)

	completion, err := llm.Complete(ctx, r.provider, &llm.ChatRequest{
		Model: cfg.Model,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: "You are an intent classifier."},
			{Role: llm.RoleUser, Content: prompt.String()},
		},
		Temperature: 0,
	})
	if err != nil {
		return IntentOutput{}, types.NewError(types.ErrUpstreamError, "intent classification call failed").WithCause(err)
	}
	addUsage(rec, completion)

	var reply intentReply
	if err := parseJSONReply(completion.Text, &reply); err != nil {
		// 模型输出不可解析时回落到默认意图
		tracer.Warn("intent_parse_fallback", map[string]any{"error": err.Error()})
		return IntentOutput{Intent: cfg.DefaultIntent, Confidence: 0, Matched: []string{}}, nil
	}

	out := IntentOutput{Intent: strings.TrimSpace(reply.Intent), Confidence: clamp01(reply.Confidence), Matched: []string{}}
	if out.Intent == "" || (len(names) > 0 && !contains(names, out.Intent)) {
		tracer.Warn("intent_outside_allowed", map[string]any{"intent": out.Intent})
		out = IntentOutput{Intent: cfg.DefaultIntent, Confidence: 0, Matched: []string{}}
	}
	return out, nil
}

func contains(sorted []string, s string) bool {
	i := sort.SearchStrings(sorted, s)
	return i < len(sorted) && sorted[i] == s
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
