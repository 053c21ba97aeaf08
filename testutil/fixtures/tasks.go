// =============================================================================
// 📦 测试数据工厂 - 任务与场景
// =============================================================================
// 预置 RAG 文档、各能力的工作单元以及多步场景
// =============================================================================
package fixtures

import (
	"github.com/BaSui01/evalflow/types"
)

// =============================================================================
// 📚 RAG 语料
// =============================================================================

// GreekDocuments 三个只共享 "only document" 的短文档
func GreekDocuments() []any {
	return []any{
		map[string]any{"id": "d1", "text": "Alpha only document"},
		map[string]any{"id": "d2", "text": "Beta only document"},
		map[string]any{"id": "d3", "text": "Gamma only document"},
	}
}

// ProductDocuments 较长的产品说明，用于分块与混合检索测试
func ProductDocuments() []any {
	return []any{
		map[string]any{"id": "battery", "text": "The X200 battery lasts twelve hours. Charging takes ninety minutes with the bundled adapter."},
		map[string]any{"id": "display", "text": "The X200 display is a 14 inch OLED panel. Peak brightness reaches 600 nits."},
		map[string]any{"id": "warranty", "text": "Every X200 ships with a two year warranty. Battery wear is covered for the first year."},
	}
}

// RAGTask 构造 RAG 工作单元；topK <= 0 时不设置 top_k
func RAGTask(id, query string, topK int, docs []any) *types.AtomicTask {
	input := map[string]any{"query": query, "documents": docs}
	if topK > 0 {
		input["top_k"] = topK
	}
	return &types.AtomicTask{ID: id, Type: types.CapabilityRAG, Input: input}
}

// AlphaTask 经典 Alpha/Beta/Gamma 示例：query "Alpha"，topK=1
func AlphaTask() *types.AtomicTask {
	return RAGTask("rag-alpha", "Alpha", 1, GreekDocuments())
}

// =============================================================================
// 💬 意图 / 对话 / 记忆
// =============================================================================

// IntentTask 意图分类工作单元
func IntentTask(id, text, expectedIntent string) *types.AtomicTask {
	task := &types.AtomicTask{ID: id, Type: types.CapabilityIntent, Input: map[string]any{"text": text}}
	if expectedIntent != "" {
		task.Expected = map[string]any{"intent": expectedIntent}
	}
	return task
}

// IntentConfig 问候 / 退款 / 告别的关键词规则
func IntentConfig() map[string]any {
	return map[string]any{
		"intents": map[string]any{
			"greeting": []any{"hello", "hi", "hey"},
			"refund":   []any{"refund", "money back", "return"},
			"farewell": []any{"bye", "goodbye"},
		},
	}
}

// DialogueTask 单轮对话工作单元
func DialogueTask(id, userMessage string) *types.AtomicTask {
	return &types.AtomicTask{ID: id, Type: types.CapabilityDialogue, Input: map[string]any{
		"messages": []any{map[string]any{"role": "user", "content": userMessage}},
	}}
}

// MemoryTask 记忆抽取工作单元
func MemoryTask(id, text string) *types.AtomicTask {
	return &types.AtomicTask{ID: id, Type: types.CapabilityMemory, Input: map[string]any{"text": text}}
}

// =============================================================================
// 🔗 场景
// =============================================================================

// GreetingScenario 两步场景：step-1 意图分类，step-2 根据意图回复
func GreetingScenario() *types.Scenario {
	return &types.Scenario{
		ID:   "greeting-flow",
		Name: "greeting flow",
		Steps: []types.AtomicTask{
			{ID: "step-1", Type: types.CapabilityIntent, Input: map[string]any{"text": "hello there"}},
			{ID: "step-2", Type: types.CapabilityDialogue, Input: map[string]any{
				"messages": []any{map[string]any{"role": "user", "content": "hello there"}},
			}},
		},
		InputMap: map[string][]types.Binding{
			"step-2": {{From: "step:step-1:intent", To: "detected_intent"}},
		},
	}
}
