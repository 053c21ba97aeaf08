package registry

import (
	"sort"
	"strings"
	"sync"

	"github.com/BaSui01/evalflow/types"
)

// RunnerRegistry 执行单元注册表，额外按能力类型建立索引
type RunnerRegistry struct {
	mu     sync.RWMutex
	byID   map[string]Runner
	byType map[types.CapabilityType][]string
}

// NewRunnerRegistry 创建执行单元注册表
func NewRunnerRegistry() *RunnerRegistry {
	return &RunnerRegistry{
		byID:   make(map[string]Runner),
		byType: make(map[types.CapabilityType][]string),
	}
}

// Register 注册执行单元，ID 重复时返回错误
func (r *RunnerRegistry) Register(runner Runner) error {
	if runner == nil || runner.ID() == "" {
		return types.NewError(types.ErrInvalidInput, "runner must have a non-empty id")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	id := runner.ID()
	if _, exists := r.byID[id]; exists {
		return types.Errorf(types.ErrDuplicateRegistered, "runner %q already registered", id)
	}
	r.byID[id] = runner
	r.byType[runner.Type()] = append(r.byType[runner.Type()], id)
	return nil
}

// MustRegister 注册失败时 panic，用于启动期装配
func (r *RunnerRegistry) MustRegister(runner Runner) {
	if err := r.Register(runner); err != nil {
		panic(err)
	}
}

// Get 按 ID 查找；不存在时返回 (nil, false)
func (r *RunnerRegistry) Get(id string) (Runner, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	runner, ok := r.byID[id]
	return runner, ok
}

// ByType 返回某能力类型下的全部执行单元（按 ID 排序）
func (r *RunnerRegistry) ByType(t types.CapabilityType) []Runner {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := append([]string(nil), r.byType[t]...)
	sort.Strings(ids)
	out := make([]Runner, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.byID[id])
	}
	return out
}

// List 返回全部执行单元（按 ID 排序）
func (r *RunnerRegistry) List() []Runner {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Runner, 0, len(r.byID))
	for _, id := range sortedKeys(r.byID) {
		out = append(out, r.byID[id])
	}
	return out
}

// ScorerRegistry 评分单元注册表
type ScorerRegistry struct {
	mu      sync.RWMutex
	scorers map[string]Scorer
}

// NewScorerRegistry 创建评分单元注册表
func NewScorerRegistry() *ScorerRegistry {
	return &ScorerRegistry{scorers: make(map[string]Scorer)}
}

// Register 注册评分单元，ID 重复时返回错误
func (r *ScorerRegistry) Register(scorer Scorer) error {
	if scorer == nil || scorer.ID() == "" {
		return types.NewError(types.ErrInvalidInput, "scorer must have a non-empty id")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.scorers[scorer.ID()]; exists {
		return types.Errorf(types.ErrDuplicateRegistered, "scorer %q already registered", scorer.ID())
	}
	r.scorers[scorer.ID()] = scorer
	return nil
}

// MustRegister 注册失败时 panic
func (r *ScorerRegistry) MustRegister(scorer Scorer) {
	if err := r.Register(scorer); err != nil {
		panic(err)
	}
}

// Get 按 ID 查找；不存在时返回带已知 ID 列表的错误
func (r *ScorerRegistry) Get(id string) (Scorer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	scorer, ok := r.scorers[id]
	if !ok {
		return nil, types.Errorf(types.ErrScorerNotFound,
			"scorer %q not found (known: %s)", id, strings.Join(sortedKeys(r.scorers), ", "))
	}
	return scorer, nil
}

// Resolve 按顺序解析一组 ID；任一未知即失败
func (r *ScorerRegistry) Resolve(ids []string) ([]Scorer, error) {
	out := make([]Scorer, 0, len(ids))
	for _, id := range ids {
		s, err := r.Get(id)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// All 返回全部评分单元（按 ID 排序）
func (r *ScorerRegistry) All() []Scorer {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Scorer, 0, len(r.scorers))
	for _, id := range sortedKeys(r.scorers) {
		out = append(out, r.scorers[id])
	}
	return out
}

// List 返回全部评分单元 ID
func (r *ScorerRegistry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.scorers)
}

// ReporterRegistry 报告单元注册表
type ReporterRegistry struct {
	mu        sync.RWMutex
	reporters map[string]Reporter
}

// NewReporterRegistry 创建报告单元注册表
func NewReporterRegistry() *ReporterRegistry {
	return &ReporterRegistry{reporters: make(map[string]Reporter)}
}

// Register 注册报告单元，ID 重复时返回错误
func (r *ReporterRegistry) Register(reporter Reporter) error {
	if reporter == nil || reporter.ID() == "" {
		return types.NewError(types.ErrInvalidInput, "reporter must have a non-empty id")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.reporters[reporter.ID()]; exists {
		return types.Errorf(types.ErrDuplicateRegistered, "reporter %q already registered", reporter.ID())
	}
	r.reporters[reporter.ID()] = reporter
	return nil
}

// MustRegister 注册失败时 panic
func (r *ReporterRegistry) MustRegister(reporter Reporter) {
	if err := r.Register(reporter); err != nil {
		panic(err)
	}
}

// Get 按 ID 查找；不存在时返回 (nil, false)
func (r *ReporterRegistry) Get(id string) (Reporter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rep, ok := r.reporters[id]
	return rep, ok
}

// All 返回全部报告单元（按 ID 排序）
func (r *ReporterRegistry) All() []Reporter {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Reporter, 0, len(r.reporters))
	for _, id := range sortedKeys(r.reporters) {
		out = append(out, r.reporters[id])
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
