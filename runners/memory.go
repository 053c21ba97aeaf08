package runners

import (
	"context"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/evalflow/llm"
	"github.com/BaSui01/evalflow/types"
)

const (
	// MemoryRunnerID 记忆抽取执行单元 ID
	MemoryRunnerID = "memory_extractor"
	// MemoryRunnerVersion 记忆抽取执行单元版本
	MemoryRunnerVersion = "1.0.0"

	maxKeyLength = 40
)

var (
	// "my favourite color is blue" -> favourite_color = blue
	possessivePattern = regexp.MustCompile(`(?i)\bmy ([a-z][a-z ]{0,38}?) (?:is|are) ([^.,;!?\n]+)`)
	// "Name: Alice"
	keyValuePattern = regexp.MustCompile(`^\s*([A-Za-z][A-Za-z0-9 _-]*?)\s*:\s*(.+?)\s*$`)
)

// MemoryInput 记忆任务输入
type MemoryInput struct {
	Text string `json:"text"`
}

// Validate 校验输入
func (in MemoryInput) Validate() error {
	if strings.TrimSpace(in.Text) == "" {
		return types.NewError(types.ErrInvalidInput, "memory input requires non-empty text")
	}
	return nil
}

// Fact 一条抽取出的事实
type Fact struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// MemoryOutput 记忆任务输出
type MemoryOutput struct {
	Facts []Fact `json:"facts"`
}

// MemoryConfig 记忆抽取配置
type MemoryConfig struct {
	Mode  string `json:"mode"`
	Model string `json:"model"`
}

// Validate 校验配置
func (c MemoryConfig) Validate() error {
	switch c.Mode {
	case ModeRules, ModeLLM:
		return nil
	default:
		return types.Errorf(types.ErrInvalidInput, "unknown memory mode %q", c.Mode)
	}
}

// MemoryRunner 记忆抽取执行单元
type MemoryRunner struct {
	provider llm.Provider
	logger   *zap.Logger
}

// NewMemoryRunner 创建记忆抽取执行单元；provider 只在 llm 模式下使用
func NewMemoryRunner(provider llm.Provider, logger *zap.Logger) *MemoryRunner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryRunner{
		provider: provider,
		logger:   logger.With(zap.String("component", "memory_runner")),
	}
}

func (r *MemoryRunner) ID() string                 { return MemoryRunnerID }
func (r *MemoryRunner) Type() types.CapabilityType { return types.CapabilityMemory }
func (r *MemoryRunner) Version() string            { return MemoryRunnerVersion }

// Execute 从文本中抽取事实
func (r *MemoryRunner) Execute(ctx context.Context, task *types.AtomicTask, config map[string]any) (*types.RunRecord, error) {
	rec := types.NewRunRecord(task, MemoryRunnerID, MemoryRunnerVersion, config)
	tracer := types.NewTracer("")

	if task == nil {
		return failRun(rec, tracer, types.NewError(types.ErrInvalidInput, "nil task")), nil
	}
	var in MemoryInput
	if err := decodePayload(task.Input, &in, "memory input"); err != nil {
		return failRun(rec, tracer, err), nil
	}
	cfg := MemoryConfig{Mode: ModeRules}
	if err := decodeConfig(config, &cfg); err != nil {
		return failRun(rec, tracer, err), nil
	}
	if err := cfg.Validate(); err != nil {
		return failRun(rec, tracer, err), nil
	}

	var facts []Fact
	if cfg.Mode == ModeLLM {
		var err error
		facts, err = r.extractLLM(ctx, rec, in, cfg)
		if err != nil {
			r.logger.Warn("memory extraction failed", zap.String("task_id", rec.TaskID), zap.Error(err))
			return failRun(rec, tracer, err), nil
		}
	} else {
		facts = ExtractFacts(in.Text)
	}
	tracer.Info("extracted", map[string]any{"mode": cfg.Mode, "facts": len(facts)})

	output, err := encodeOutput(MemoryOutput{Facts: facts})
	if err != nil {
		return failRun(rec, tracer, err), nil
	}
	rec.Trace = tracer.Events()
	rec.Complete(output)
	return rec, nil
}

// ExtractFacts 规则抽取："key: value" 行以及 "my X is Y" 句式。
// 同一个 key 出现多次时保留首次出现的位置、采用最后一次的值。
func ExtractFacts(text string) []Fact {
	facts := newFactSet()
	for _, line := range strings.Split(text, "\n") {
		if m := keyValuePattern.FindStringSubmatch(line); m != nil && len(m[1]) <= maxKeyLength {
			facts.put(m[1], m[2])
			continue
		}
		for _, m := range possessivePattern.FindAllStringSubmatch(line, -1) {
			facts.put(m[1], m[2])
		}
	}
	return facts.list()
}

// NormalizeKey 小写并把空白与连字符替换为下划线
func NormalizeKey(key string) string {
	fields := strings.FieldsFunc(strings.ToLower(key), func(r rune) bool {
		return r == ' ' || r == '\t' || r == '-' || r == '_'
	})
	return strings.Join(fields, "_")
}

type factSet struct {
	order []string
	byKey map[string]string
}

func newFactSet() *factSet {
	return &factSet{byKey: make(map[string]string)}
}

func (s *factSet) put(key, value string) {
	key = NormalizeKey(key)
	value = strings.TrimSpace(value)
	if key == "" || value == "" {
		return
	}
	if _, ok := s.byKey[key]; !ok {
		s.order = append(s.order, key)
	}
	s.byKey[key] = value
}

func (s *factSet) list() []Fact {
	out := make([]Fact, 0, len(s.order))
	for _, k := range s.order {
		out = append(out, Fact{Key: k, Value: s.byKey[k]})
	}
	return out
}

func (r *MemoryRunner) extractLLM(ctx context.Context, rec *types.RunRecord, in MemoryInput, cfg MemoryConfig) ([]Fact, error) {
	if r.provider == nil {
		return nil, types.NewError(types.ErrInvalidInput, "llm mode requires a provider")
	}
	completion, err := llm.Complete(ctx, r.provider, &llm.ChatRequest{
		Model: cfg.Model,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: "You extract durable facts about the user from text."},
			{Role: llm.RoleUser, Content: "Extract facts as JSON only: " +
				`{"facts": [{"key": "snake_case_key", "value": "..."}]}` + "\n\nText: " + in.Text},
		},
	})
	if err != nil {
		return nil, types.NewError(types.ErrUpstreamError, "memory extraction call failed").WithCause(err)
	}
	addUsage(rec, completion)

	var reply MemoryOutput
	if err := parseJSONReply(completion.Text, &reply); err != nil {
		return nil, types.NewError(types.ErrParseFailure, "memory extraction output invalid").WithCause(err)
	}
	facts := newFactSet()
	for _, f := range reply.Facts {
		facts.put(f.Key, f.Value)
	}
	return facts.list(), nil
}
