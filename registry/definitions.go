package registry

import (
	"strings"
	"sync"

	"github.com/BaSui01/evalflow/types"
)

// DefinitionRegistry 静态定义注册表（任务 / 工作流 / 方法），只存元数据
type DefinitionRegistry struct {
	mu        sync.RWMutex
	tasks     map[string]types.TaskDefinition
	workflows map[string]types.WorkflowDefinition
	methods   map[string]types.MethodDefinition
}

// NewDefinitionRegistry 创建定义注册表
func NewDefinitionRegistry() *DefinitionRegistry {
	return &DefinitionRegistry{
		tasks:     make(map[string]types.TaskDefinition),
		workflows: make(map[string]types.WorkflowDefinition),
		methods:   make(map[string]types.MethodDefinition),
	}
}

// RegisterTask 注册任务定义
func (r *DefinitionRegistry) RegisterTask(def types.TaskDefinition) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tasks[def.ID]; exists {
		return types.Errorf(types.ErrDuplicateRegistered, "task definition %q already registered", def.ID)
	}
	r.tasks[def.ID] = def
	return nil
}

// RegisterWorkflow 注册工作流定义
func (r *DefinitionRegistry) RegisterWorkflow(def types.WorkflowDefinition) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.workflows[def.ID]; exists {
		return types.Errorf(types.ErrDuplicateRegistered, "workflow definition %q already registered", def.ID)
	}
	r.workflows[def.ID] = def
	return nil
}

// RegisterMethod 注册方法定义
func (r *DefinitionRegistry) RegisterMethod(def types.MethodDefinition) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.methods[def.ID]; exists {
		return types.Errorf(types.ErrDuplicateRegistered, "method definition %q already registered", def.ID)
	}
	r.methods[def.ID] = def
	return nil
}

// Task 查找任务定义；未知 ID 返回错误并列出已知 ID
func (r *DefinitionRegistry) Task(id string) (types.TaskDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.tasks[id]
	if !ok {
		return def, notFound("task", id, sortedKeys(r.tasks))
	}
	return def, nil
}

// Workflow 查找工作流定义
func (r *DefinitionRegistry) Workflow(id string) (types.WorkflowDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.workflows[id]
	if !ok {
		return def, notFound("workflow", id, sortedKeys(r.workflows))
	}
	return def, nil
}

// Method 查找方法定义
func (r *DefinitionRegistry) Method(id string) (types.MethodDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.methods[id]
	if !ok {
		return def, notFound("method", id, sortedKeys(r.methods))
	}
	return def, nil
}

// ListTasks 返回全部任务定义（按 ID 排序）
func (r *DefinitionRegistry) ListTasks() []types.TaskDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.TaskDefinition, 0, len(r.tasks))
	for _, id := range sortedKeys(r.tasks) {
		out = append(out, r.tasks[id])
	}
	return out
}

// ListWorkflows 返回全部工作流定义（按 ID 排序）
func (r *DefinitionRegistry) ListWorkflows() []types.WorkflowDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.WorkflowDefinition, 0, len(r.workflows))
	for _, id := range sortedKeys(r.workflows) {
		out = append(out, r.workflows[id])
	}
	return out
}

// ListMethods 返回全部方法定义（按 ID 排序）
func (r *DefinitionRegistry) ListMethods() []types.MethodDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.MethodDefinition, 0, len(r.methods))
	for _, id := range sortedKeys(r.methods) {
		out = append(out, r.methods[id])
	}
	return out
}

func notFound(kind, id string, known []string) error {
	return types.Errorf(types.ErrDefinitionNotFound,
		"%s definition %q not found (known: %s)", kind, id, strings.Join(known, ", "))
}
