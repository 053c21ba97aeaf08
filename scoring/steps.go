package scoring

import (
	"context"
	"fmt"

	"github.com/BaSui01/evalflow/types"
)

const (
	// StepStatusScorerID 场景步骤评分单元 ID
	StepStatusScorerID = "step_completed"

	MetricStepCompleted  = "step_completed"
	MetricCompletionRate = "completion_rate"
)

// StepStatusScorer 为场景的每一步输出 step_completed（目标 step:<id>），
// 并在 final 目标上输出完成比例。没有步骤的记录不产出分数。
type StepStatusScorer struct{}

// NewStepStatusScorer 创建步骤状态评分单元
func NewStepStatusScorer() *StepStatusScorer { return &StepStatusScorer{} }

func (s *StepStatusScorer) ID() string { return StepStatusScorerID }

func (s *StepStatusScorer) Metrics() []string {
	return []string{MetricStepCompleted, MetricCompletionRate}
}

func (s *StepStatusScorer) Evaluate(_ context.Context, run *types.RunRecord, _ *types.AtomicTask, _ []types.ReportRecord) ([]types.ScoreRecord, error) {
	if run == nil || len(run.Steps) == 0 {
		return nil, nil
	}

	scores := make([]types.ScoreRecord, 0, len(run.Steps)+1)
	completed := 0
	for _, step := range run.Steps {
		ok := step.Status == types.RunCompleted
		if ok {
			completed++
		}
		rec := types.NewScoreRecord(run.ID, StepStatusScorerID, MetricStepCompleted, types.BoolValue(ok), types.StepTarget(step.ID))
		rec.Evidence = &types.Evidence{Explanation: stepExplanation(step)}
		scores = append(scores, rec)
	}

	rate := float64(completed) / float64(len(run.Steps))
	final := types.NewScoreRecord(run.ID, StepStatusScorerID, MetricCompletionRate, types.NumberValue(rate), types.TargetFinal)
	final.Evidence = &types.Evidence{
		Explanation: fmt.Sprintf("%d of %d steps completed", completed, len(run.Steps)),
	}
	return append(scores, final), nil
}

func stepExplanation(step types.StepResult) string {
	switch {
	case step.Status == "":
		return "step not executed"
	case step.Error != nil:
		return fmt.Sprintf("step %s: %s", step.Status, step.Error.Message)
	default:
		return "step " + string(step.Status)
	}
}
