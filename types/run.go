package types

import (
	"time"

	"github.com/google/uuid"
)

// RunStatus 执行状态
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// IsTerminal 是否为终态
func (s RunStatus) IsTerminal() bool {
	return s == RunCompleted || s == RunFailed
}

// RunError 失败信息；Step 在场景失败时记录失败步骤 ID
type RunError struct {
	Message string `json:"message"`
	Step    string `json:"step,omitempty"`
	Stack   string `json:"stack,omitempty"`
}

// RunMetrics 执行指标
type RunMetrics struct {
	LatencyMs  int64   `json:"latency_ms"`
	TokensUsed int     `json:"tokens_used"`
	Cost       float64 `json:"cost"`
}

// Add 累加另一组指标
func (m *RunMetrics) Add(other RunMetrics) {
	m.LatencyMs += other.LatencyMs
	m.TokensUsed += other.TokensUsed
	m.Cost += other.Cost
}

// StepResult 场景中单个步骤的结果；未执行的步骤 Status 为空
type StepResult struct {
	ID      string         `json:"id"`
	RunID   string         `json:"run_id,omitempty"`
	Status  RunStatus      `json:"status,omitempty"`
	Input   map[string]any `json:"input,omitempty"`
	Output  map[string]any `json:"output,omitempty"`
	Error   *RunError      `json:"error,omitempty"`
	Metrics RunMetrics     `json:"metrics"`
}

// Provenance 解释与复现一次运行所需的事实
type Provenance struct {
	RunnerID       string         `json:"runner_id"`
	RunnerVersion  string         `json:"runner_version,omitempty"`
	Config         map[string]any `json:"config,omitempty"`
	ConfigHash     string         `json:"config_hash,omitempty"`
	RunFingerprint string         `json:"run_fingerprint,omitempty"`
	Overrides      map[string]any `json:"overrides,omitempty"`
	Snapshot       map[string]any `json:"snapshot,omitempty"`
}

// RunRecord 一次执行的完整记录。
// 管线结束后不再修改；交给存储之前只归调用方所有。
type RunRecord struct {
	ID          string           `json:"id"`
	TaskID      string           `json:"task_id"`
	TaskType    CapabilityType   `json:"task_type"`
	Status      RunStatus        `json:"status"`
	Output      map[string]any   `json:"output,omitempty"`
	Error       *RunError        `json:"error,omitempty"`
	Metrics     RunMetrics       `json:"metrics"`
	Trace       []TraceEvent     `json:"trace"`
	Steps       []StepResult     `json:"steps,omitempty"`
	Artifacts   []ArtifactRecord `json:"artifacts,omitempty"`
	Reports     []ReportRecord   `json:"reports,omitempty"`
	StartedAt   time.Time        `json:"started_at"`
	CompletedAt time.Time        `json:"completed_at,omitempty"`
	Provenance  Provenance       `json:"provenance"`
}

// NewRunID 生成运行 ID
func NewRunID() string {
	return "run_" + uuid.NewString()
}

// NewRunRecord 为任务创建 running 状态的记录
func NewRunRecord(task *AtomicTask, runnerID, runnerVersion string, config map[string]any) *RunRecord {
	rec := &RunRecord{
		ID:        NewRunID(),
		Status:    RunRunning,
		Trace:     []TraceEvent{},
		StartedAt: time.Now(),
		Provenance: Provenance{
			RunnerID:      runnerID,
			RunnerVersion: runnerVersion,
			Config:        config,
		},
	}
	if task != nil {
		rec.TaskID = task.ID
		rec.TaskType = task.Type
	}
	return rec
}

// Complete 标记为 completed 并写入输出
func (r *RunRecord) Complete(output map[string]any) {
	r.Status = RunCompleted
	r.Output = output
	r.finish()
}

// Fail 标记为 failed；message 为空时使用占位文本，保证错误可读
func (r *RunRecord) Fail(message, step, stack string) {
	if message == "" {
		message = "run failed"
	}
	r.Status = RunFailed
	r.Error = &RunError{Message: message, Step: step, Stack: stack}
	r.finish()
}

// EnsureFailureTrace 失败记录的 trace 为空时补一条 runner_failed 错误事件
func (r *RunRecord) EnsureFailureTrace(runnerID string) {
	if r.Status != RunFailed || len(r.Trace) > 0 {
		return
	}
	data := map[string]any{"runner_id": runnerID}
	if r.Error != nil {
		data["error"] = r.Error.Message
	}
	tracer := NewTracer("")
	tracer.Error("runner_failed", data)
	r.Trace = tracer.Events()
}

func (r *RunRecord) finish() {
	r.CompletedAt = time.Now()
	if r.Metrics.LatencyMs == 0 && !r.StartedAt.IsZero() {
		r.Metrics.LatencyMs = r.CompletedAt.Sub(r.StartedAt).Milliseconds()
	}
	if r.Trace == nil {
		r.Trace = []TraceEvent{}
	}
}

// AddArtifact 记录中间产物
func (r *RunRecord) AddArtifact(schema, step string, payload any) {
	r.Artifacts = append(r.Artifacts, ArtifactRecord{Schema: schema, Step: step, Payload: payload})
}

// LatestArtifact 按 schema 优先级返回最后一个匹配产物
func (r *RunRecord) LatestArtifact(schemas ...string) (ArtifactRecord, bool) {
	return FindLatestArtifact(r.Artifacts, nil, schemas...)
}

// FindLatestArtifact 按 schema 优先级查找最后一个匹配产物；
// step 非 nil 时只匹配该步骤（场景中为步骤 ID，单次运行为空）
func FindLatestArtifact(artifacts []ArtifactRecord, step *string, schemas ...string) (ArtifactRecord, bool) {
	for _, schema := range schemas {
		for i := len(artifacts) - 1; i >= 0; i-- {
			a := artifacts[i]
			if a.Schema != schema || (step != nil && a.Step != *step) {
				continue
			}
			return a, true
		}
	}
	return ArtifactRecord{}, false
}
