package registry

import (
	"context"

	"github.com/BaSui01/evalflow/types"
)

// Runner 执行单元接口
type Runner interface {
	ID() string
	Type() types.CapabilityType
	Version() string
	// Execute 执行任务。业务失败应体现为 status=failed 的记录；
	// 返回 error 仅用于无法产出记录的情况，由引擎转换为失败记录。
	Execute(ctx context.Context, task *types.AtomicTask, config map[string]any) (*types.RunRecord, error)
}

// Scorer 评分单元接口
type Scorer interface {
	ID() string
	Metrics() []string
	Evaluate(ctx context.Context, run *types.RunRecord, task *types.AtomicTask, reports []types.ReportRecord) ([]types.ScoreRecord, error)
}

// ReportContext 报告单元可见的运行数据
type ReportContext struct {
	TaskID    string
	TaskType  types.CapabilityType
	Output    map[string]any
	Artifacts []types.ArtifactRecord
	Trace     []types.TraceEvent
}

// NewReportContext 从运行记录构造报告上下文
func NewReportContext(run *types.RunRecord) ReportContext {
	return ReportContext{
		TaskID:    run.TaskID,
		TaskType:  run.TaskType,
		Output:    run.Output,
		Artifacts: run.Artifacts,
		Trace:     run.Trace,
	}
}

// Reporter 报告单元接口
type Reporter interface {
	ID() string
	ReportTypes() []string
	Run(ctx context.Context, runID string, rc ReportContext) ([]types.ReportRecord, error)
}
