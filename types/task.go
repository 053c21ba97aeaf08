package types

// CapabilityType 能力类型标签
type CapabilityType string

const (
	CapabilityIntent   CapabilityType = "intent"
	CapabilityDialogue CapabilityType = "dialogue"
	CapabilityMemory   CapabilityType = "memory"
	CapabilityRAG      CapabilityType = "rag"
	// CapabilityScenario 仅用于多步场景的聚合记录
	CapabilityScenario CapabilityType = "scenario"
)

// TaskMetadata 工作单元的自由元数据
// TimeoutMs 只是提示信息，引擎不强制执行
type TaskMetadata struct {
	Tags      []string `json:"tags,omitempty" yaml:"tags,omitempty"`
	Priority  int      `json:"priority,omitempty" yaml:"priority,omitempty"`
	TimeoutMs int      `json:"timeout_ms,omitempty" yaml:"timeout_ms,omitempty"`
}

// AtomicTask 单个工作单元（类似一个测试用例）
// 提交后不可变：框架内部需要修改输入时一律先深拷贝。
type AtomicTask struct {
	ID         string         `json:"id" yaml:"id"`
	Type       CapabilityType `json:"type" yaml:"type"`
	Input      map[string]any `json:"input" yaml:"input"`
	Expected   map[string]any `json:"expected,omitempty" yaml:"expected,omitempty"`
	Metadata   TaskMetadata   `json:"metadata,omitempty" yaml:"metadata,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty" yaml:"extensions,omitempty"`
}

// Clone 返回任务的深拷贝
func (t *AtomicTask) Clone() *AtomicTask {
	if t == nil {
		return nil
	}
	c := *t
	c.Input = CloneMap(t.Input)
	c.Expected = CloneMap(t.Expected)
	c.Extensions = CloneMap(t.Extensions)
	if t.Metadata.Tags != nil {
		c.Metadata.Tags = append([]string(nil), t.Metadata.Tags...)
	}
	return &c
}

// Binding 场景数据绑定
// From: "step:<stepId>:<dotted.path>" 或 "input:<field>"
// To:   写入步骤输入的点分路径
type Binding struct {
	From string `json:"from" yaml:"from"`
	To   string `json:"to" yaml:"to"`
}

// Scenario 有序的工作单元链，步骤之间通过 InputMap 显式绑定数据
type Scenario struct {
	ID       string               `json:"id" yaml:"id"`
	Name     string               `json:"name,omitempty" yaml:"name,omitempty"`
	Steps    []AtomicTask         `json:"steps" yaml:"steps"`
	InputMap map[string][]Binding `json:"input_map,omitempty" yaml:"input_map,omitempty"`
	Input    map[string]any       `json:"input,omitempty" yaml:"input,omitempty"`
}

// CloneValue 深拷贝 JSON 形态的值（map / slice / 标量）
func CloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return CloneMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = CloneValue(item)
		}
		return out
	case []string:
		return append([]string(nil), val...)
	default:
		return val
	}
}

// CloneMap 深拷贝 map
func CloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = CloneValue(v)
	}
	return out
}
