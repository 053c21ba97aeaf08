// =============================================================================
// 📦 测试数据工厂 - LLM 响应
// =============================================================================
// 提供预定义的 LLM 响应数据（ChatResponse 与各能力约定的 JSON 文本）
// =============================================================================
package fixtures

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/BaSui01/evalflow/llm"
)

// =============================================================================
// 🎯 ChatResponse 工厂
// =============================================================================

// SimpleResponse 返回简单的文本响应
func SimpleResponse(content string) *llm.ChatResponse {
	return ResponseWithUsage(content, 10, 20)
}

// ResponseWithUsage 返回带自定义 Token 使用量的响应
func ResponseWithUsage(content string, promptTokens, completionTokens int) *llm.ChatResponse {
	return &llm.ChatResponse{
		ID:       "resp-001",
		Provider: "mock",
		Model:    "gpt-4o-mini",
		Choices: []llm.ChatChoice{
			{
				Index:        0,
				FinishReason: "stop",
				Message:      llm.Message{Role: llm.RoleAssistant, Content: content},
			},
		},
		Usage: llm.ChatUsage{
			PromptTokens:     promptTokens,
			CompletionTokens: completionTokens,
			TotalTokens:      promptTokens + completionTokens,
		},
		CreatedAt: time.Now(),
	}
}

// ResponseWithoutUsage 返回未报告用量的响应（触发本地估算）
func ResponseWithoutUsage(content string) *llm.ChatResponse {
	resp := SimpleResponse(content)
	resp.Usage = llm.ChatUsage{}
	return resp
}

// EmptyChoicesResponse 返回没有 choices 的响应
func EmptyChoicesResponse() *llm.ChatResponse {
	resp := SimpleResponse("")
	resp.Choices = nil
	return resp
}

// =============================================================================
// 🧩 结构化输出 JSON
// =============================================================================

// CitedSentence 生成结果中的一句话（线格式为 camelCase）
type CitedSentence struct {
	Text     string
	ChunkIDs []string
}

// GenerationJSON 构造 RAG 生成器期望的 JSON：句子按顺序编号 s1, s2, ...
func GenerationJSON(answer string, sentences ...CitedSentence) string {
	type citation struct {
		ChunkID string `json:"chunkId"`
	}
	type sentence struct {
		SentenceID string     `json:"sentenceId"`
		Text       string     `json:"text"`
		Citations  []citation `json:"citations"`
	}
	out := struct {
		Answer    string     `json:"answer"`
		Sentences []sentence `json:"sentences"`
	}{Answer: answer, Sentences: []sentence{}}

	for i, s := range sentences {
		cites := make([]citation, 0, len(s.ChunkIDs))
		for _, id := range s.ChunkIDs {
			cites = append(cites, citation{ChunkID: id})
		}
		out.Sentences = append(out.Sentences, sentence{
			SentenceID: fmt.Sprintf("s%d", i+1),
			Text:       s.Text,
			Citations:  cites,
		})
	}
	return mustMarshal(out)
}

// IntentJSON 意图分类 LLM 模式的响应
func IntentJSON(intent string, confidence float64) string {
	return mustMarshal(map[string]any{"intent": intent, "confidence": confidence})
}

// FactsJSON 记忆抽取 LLM 模式的响应；pairs 依次为 key, value
func FactsJSON(pairs ...string) string {
	facts := make([]map[string]string, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		facts = append(facts, map[string]string{"key": pairs[i], "value": pairs[i+1]})
	}
	return mustMarshal(map[string]any{"facts": facts})
}

func mustMarshal(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(data)
}
