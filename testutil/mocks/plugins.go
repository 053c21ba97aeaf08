package mocks

import (
	"context"
	"sync"

	"github.com/BaSui01/evalflow/registry"
	"github.com/BaSui01/evalflow/types"
)

// MockRunner 可配置输出或错误的执行单元
type MockRunner struct {
	mu sync.Mutex

	id      string
	capType types.CapabilityType
	output  map[string]any
	failMsg string
	err     error
	metrics types.RunMetrics
	inputs  []map[string]any
	configs []map[string]any
}

// NewMockRunner 创建 MockRunner
func NewMockRunner(id string, capType types.CapabilityType) *MockRunner {
	return &MockRunner{id: id, capType: capType, output: map[string]any{}}
}

// WithOutput 设置成功时的输出
func (r *MockRunner) WithOutput(output map[string]any) *MockRunner {
	r.output = output
	return r
}

// WithFailure 让执行返回 failed 记录
func (r *MockRunner) WithFailure(message string) *MockRunner {
	r.failMsg = message
	return r
}

// WithError 让 Execute 直接返回错误
func (r *MockRunner) WithError(err error) *MockRunner {
	r.err = err
	return r
}

// WithMetrics 设置记录的指标
func (r *MockRunner) WithMetrics(m types.RunMetrics) *MockRunner {
	r.metrics = m
	return r
}

func (r *MockRunner) ID() string                 { return r.id }
func (r *MockRunner) Type() types.CapabilityType { return r.capType }
func (r *MockRunner) Version() string            { return "mock" }

func (r *MockRunner) Execute(_ context.Context, task *types.AtomicTask, config map[string]any) (*types.RunRecord, error) {
	r.mu.Lock()
	r.inputs = append(r.inputs, types.CloneMap(task.Input))
	r.configs = append(r.configs, types.CloneMap(config))
	r.mu.Unlock()

	if r.err != nil {
		return nil, r.err
	}

	run := types.NewRunRecord(task, r.id, r.Version(), config)
	tr := types.NewTracer("")
	tr.Info("mock_executed", map[string]any{"runner_id": r.id})
	run.Metrics = r.metrics
	if r.failMsg != "" {
		tr.Error("mock_failed", nil)
		run.Trace = tr.Events()
		run.Fail(r.failMsg, "", "")
		return run, nil
	}
	run.Trace = tr.Events()
	run.Complete(types.CloneMap(r.output))
	return run, nil
}

// Inputs 返回每次调用收到的输入
func (r *MockRunner) Inputs() []map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]map[string]any(nil), r.inputs...)
}

// Configs 返回每次调用收到的配置
func (r *MockRunner) Configs() []map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]map[string]any(nil), r.configs...)
}

// MockScorer 返回固定分数或错误的评分单元
type MockScorer struct {
	id     string
	metric string
	value  types.ScoreValue
	err    error
	calls  int
}

// NewMockScorer 创建 MockScorer
func NewMockScorer(id, metric string, value types.ScoreValue) *MockScorer {
	return &MockScorer{id: id, metric: metric, value: value}
}

// WithError 让 Evaluate 返回错误
func (s *MockScorer) WithError(err error) *MockScorer {
	s.err = err
	return s
}

func (s *MockScorer) ID() string        { return s.id }
func (s *MockScorer) Metrics() []string { return []string{s.metric} }
func (s *MockScorer) Calls() int        { return s.calls }

func (s *MockScorer) Evaluate(_ context.Context, run *types.RunRecord, _ *types.AtomicTask, _ []types.ReportRecord) ([]types.ScoreRecord, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return []types.ScoreRecord{types.NewScoreRecord(run.ID, s.id, s.metric, s.value, "")}, nil
}

// MockReporter 返回固定报告或错误的报告单元
type MockReporter struct {
	id         string
	reportType string
	payload    any
	err        error
}

// NewMockReporter 创建 MockReporter
func NewMockReporter(id, reportType string, payload any) *MockReporter {
	return &MockReporter{id: id, reportType: reportType, payload: payload}
}

// WithError 让 Run 返回错误
func (r *MockReporter) WithError(err error) *MockReporter {
	r.err = err
	return r
}

func (r *MockReporter) ID() string            { return r.id }
func (r *MockReporter) ReportTypes() []string { return []string{r.reportType} }

func (r *MockReporter) Run(_ context.Context, runID string, _ registry.ReportContext) ([]types.ReportRecord, error) {
	if r.err != nil {
		return nil, r.err
	}
	return []types.ReportRecord{types.NewReportRecord(runID, r.reportType, r.payload)}, nil
}
