package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.uber.org/zap"

	"github.com/BaSui01/evalflow/llm"
	"github.com/BaSui01/evalflow/types"
)

// generationSchema LLM 必须返回的 JSON 结构
const generationSchema = `{
  "type": "object",
  "required": ["answer", "sentences"],
  "properties": {
    "answer": {"type": "string"},
    "sentences": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["sentenceId", "text", "citations"],
        "properties": {
          "sentenceId": {"type": "string", "pattern": "^s[1-9][0-9]*$"},
          "text": {"type": "string"},
          "citations": {
            "type": "array",
            "items": {
              "type": "object",
              "required": ["chunkId"],
              "properties": {"chunkId": {"type": "string", "minLength": 1}}
            }
          }
        }
      }
    }
  }
}`

var (
	generationSchemaOnce     sync.Once
	generationSchemaCompiled *jsonschema.Schema
	generationSchemaErr      error
)

func compiledGenerationSchema() (*jsonschema.Schema, error) {
	generationSchemaOnce.Do(func() {
		generationSchemaCompiled, generationSchemaErr = jsonschema.CompileString("rag_generation.json", generationSchema)
	})
	return generationSchemaCompiled, generationSchemaErr
}

// wireGeneration LLM 输出的线格式（camelCase）
type wireGeneration struct {
	Answer    string `json:"answer"`
	Sentences []struct {
		SentenceID string `json:"sentenceId"`
		Text       string `json:"text"`
		Citations  []struct {
			ChunkID string `json:"chunkId"`
		} `json:"citations"`
	} `json:"sentences"`
}

// LLMGeneratorConfig LLM 生成参数
type LLMGeneratorConfig struct {
	Model       string  `json:"model"`
	Temperature float32 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
}

// LLMGenerator 通过文本生成后端产出带引用的答案。
// 解析或校验失败时发出且仅发出一次修复提示。
type LLMGenerator struct {
	provider llm.Provider
	config   LLMGeneratorConfig
	logger   *zap.Logger
}

// NewLLMGenerator 创建 LLM 生成器
func NewLLMGenerator(provider llm.Provider, config LLMGeneratorConfig, logger *zap.Logger) *LLMGenerator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LLMGenerator{
		provider: provider,
		config:   config,
		logger:   logger.With(zap.String("component", "llm_generator")),
	}
}

func (g *LLMGenerator) Name() string { return "llm" }

type generationState int

const (
	attemptInitial generationState = iota
	attemptRepair
	generationDone
	generationFailed
)

func (s generationState) String() string {
	switch s {
	case attemptInitial:
		return "initial"
	case attemptRepair:
		return "repair"
	case generationDone:
		return "done"
	default:
		return "failed"
	}
}

// Generate 状态机：initial -> (repair) -> done | failed
func (g *LLMGenerator) Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	if g.provider == nil {
		return nil, types.NewError(types.ErrInvalidInput, "llm generator requires a provider")
	}
	if _, err := compiledGenerationSchema(); err != nil {
		return nil, types.NewError(types.ErrInternalError, "compile generation schema").WithCause(err)
	}

	allowed := make(map[string]bool, len(req.Chunks))
	for _, c := range req.Chunks {
		allowed[c.ChunkID] = true
	}

	result := &GenerateResult{}
	messages := buildGenerationPrompt(req)

	var (
		state    = attemptInitial
		lastErr  error
		lastText string
	)
	for state != generationDone && state != generationFailed {
		if state == attemptRepair {
			messages = append(messages,
				llm.Message{Role: llm.RoleAssistant, Content: lastText},
				llm.Message{Role: llm.RoleUser, Content: buildRepairPrompt(lastErr)},
			)
		}

		completion, err := llm.Complete(ctx, g.provider, &llm.ChatRequest{
			Model:       g.config.Model,
			Messages:    messages,
			Temperature: g.config.Temperature,
			MaxTokens:   g.config.MaxTokens,
		})
		if err != nil {
			// 上游错误不进入修复流程；已完成尝试的用量随结果返回
			return result, types.NewError(types.ErrUpstreamError, "text generation failed").WithCause(err)
		}
		result.Attempts++
		result.TokensUsed += completion.Usage.TotalTokens
		result.Cost += completion.Usage.Cost
		lastText = completion.Text

		gen, perr := parseGeneration(completion.Text, allowed)
		switch {
		case perr == nil:
			result.Generation = *gen
			state = generationDone
		case state == attemptInitial:
			g.logger.Warn("generation output invalid, issuing repair prompt", zap.Error(perr))
			lastErr = perr
			state = attemptRepair
		default:
			lastErr = perr
			state = generationFailed
		}
	}

	g.logger.Debug("generation finished",
		zap.Stringer("state", state),
		zap.Int("attempts", result.Attempts),
		zap.Int("tokens", result.TokensUsed))

	if state == generationFailed {
		return result, types.Errorf(types.ErrParseFailure,
			"generation output invalid after repair: %v", lastErr).WithCause(lastErr)
	}
	return result, nil
}

func buildGenerationPrompt(req GenerateRequest) []llm.Message {
	var b strings.Builder
	b.WriteString("Answer the question using only the context chunks below.\n")
	b.WriteString("Respond with a single JSON object and nothing else, matching this schema:\n")
	b.WriteString(`{"answer": string, "sentences": [{"sentenceId": "s1", "text": string, "citations": [{"chunkId": string}]}]}`)
	b.WriteString("\nRules:\n")
	b.WriteString("- sentenceId values are sequential: s1, s2, s3, ...\n")
	b.WriteString("- every chunkId must be one of the allowed chunk ids listed below\n\n")
	b.WriteString("Context chunks:\n")
	for _, c := range req.Chunks {
		fmt.Fprintf(&b, "[%s] %s\n", c.ChunkID, c.Text)
	}
	fmt.Fprintf(&b, "\nQuestion: %s\n", req.Query)

	return []llm.Message{
		{Role: llm.RoleSystem, Content: "You are a careful assistant that answers with cited evidence in strict JSON."},
		{Role: llm.RoleUser, Content: b.String()},
	}
}

func buildRepairPrompt(cause error) string {
	return fmt.Sprintf("Your previous response was invalid: %v\n"+
		"Respond again with only a JSON object that satisfies this JSON Schema:\n%s\n"+
		"Use sequential sentenceId values (s1, s2, ...) and cite only the allowed chunk ids.",
		cause, generationSchema)
}

// parseGeneration 解析并校验 LLM 输出：JSON 语法、Schema、句子编号、引用集合
func parseGeneration(text string, allowed map[string]bool) (*Generation, error) {
	raw := extractJSONObject(text)
	if raw == "" {
		return nil, fmt.Errorf("response contains no JSON object")
	}

	var doc any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	schema, err := compiledGenerationSchema()
	if err != nil {
		return nil, err
	}
	if err := schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("schema violation: %w", err)
	}

	var wire wireGeneration
	if err := json.Unmarshal([]byte(raw), &wire); err != nil {
		return nil, fmt.Errorf("decode generation: %w", err)
	}

	gen := &Generation{Answer: wire.Answer, Sentences: make([]Sentence, 0, len(wire.Sentences))}
	for i, s := range wire.Sentences {
		if want := SentenceID(i + 1); s.SentenceID != want {
			return nil, fmt.Errorf("sentence %d has id %q, want %q", i+1, s.SentenceID, want)
		}
		sentence := Sentence{SentenceID: s.SentenceID, Text: s.Text, Citations: make([]Citation, 0, len(s.Citations))}
		for _, c := range s.Citations {
			if !allowed[c.ChunkID] {
				return nil, fmt.Errorf("sentence %s cites unknown chunk %q", s.SentenceID, c.ChunkID)
			}
			sentence.Citations = append(sentence.Citations, Citation{ChunkID: c.ChunkID})
		}
		gen.Sentences = append(gen.Sentences, sentence)
	}
	return gen, nil
}

// extractJSONObject 去掉 markdown 代码围栏，截取第一个 '{' 到最后一个 '}'
func extractJSONObject(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return ""
	}
	return text[start : end+1]
}
