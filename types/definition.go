package types

// FieldSpec 输入/输出字段说明
type FieldSpec struct {
	Name        string `json:"name" yaml:"name"`
	Type        string `json:"type" yaml:"type"`
	Required    bool   `json:"required,omitempty" yaml:"required,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// TaskDefinition 某能力类型声称要做的事情及成功标准（仅元数据）
type TaskDefinition struct {
	ID              string         `json:"id" yaml:"id"`
	Name            string         `json:"name" yaml:"name"`
	Type            CapabilityType `json:"type" yaml:"type"`
	Description     string         `json:"description,omitempty" yaml:"description,omitempty"`
	Inputs          []FieldSpec    `json:"inputs,omitempty" yaml:"inputs,omitempty"`
	Outputs         []FieldSpec    `json:"outputs,omitempty" yaml:"outputs,omitempty"`
	SuccessCriteria []string       `json:"success_criteria,omitempty" yaml:"success_criteria,omitempty"`
	Metrics         []string       `json:"metrics,omitempty" yaml:"metrics,omitempty"`
}

// WorkflowDefinition 多步能力的描述
type WorkflowDefinition struct {
	ID          string   `json:"id" yaml:"id"`
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Steps       []string `json:"steps" yaml:"steps"`
}

// MethodDefinition 命名的实现策略
type MethodDefinition struct {
	ID          string         `json:"id" yaml:"id"`
	Name        string         `json:"name" yaml:"name"`
	TaskType    CapabilityType `json:"task_type" yaml:"task_type"`
	Description string         `json:"description,omitempty" yaml:"description,omitempty"`
	Strategies  []string       `json:"strategies,omitempty" yaml:"strategies,omitempty"`
}
