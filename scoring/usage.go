package scoring

import (
	"context"

	"github.com/BaSui01/evalflow/types"
)

const (
	// UsageScorerID 资源消耗评分单元 ID
	UsageScorerID = "usage"

	MetricLatencyMs = "latency_ms"
	MetricTokens    = "tokens"
	MetricCost      = "cost"
)

// UsageThresholds 归一化阈值。
// 阈值大于 0 时分数为 max(0, 1 - value/threshold)，否则输出原始值。
type UsageThresholds struct {
	LatencyMs float64 `json:"latency_ms" yaml:"latency_ms"`
	Tokens    float64 `json:"tokens" yaml:"tokens"`
	Cost      float64 `json:"cost" yaml:"cost"`
}

// UsageScorer 输出运行的延迟、token 与成本，目标为 global
type UsageScorer struct {
	thresholds UsageThresholds
}

// NewUsageScorer 创建资源消耗评分单元
func NewUsageScorer(thresholds UsageThresholds) *UsageScorer {
	return &UsageScorer{thresholds: thresholds}
}

func (s *UsageScorer) ID() string { return UsageScorerID }

func (s *UsageScorer) Metrics() []string {
	return []string{MetricLatencyMs, MetricTokens, MetricCost}
}

func (s *UsageScorer) Evaluate(_ context.Context, run *types.RunRecord, _ *types.AtomicTask, _ []types.ReportRecord) ([]types.ScoreRecord, error) {
	if run == nil {
		return nil, nil
	}
	m := run.Metrics
	return []types.ScoreRecord{
		s.record(run.ID, MetricLatencyMs, float64(m.LatencyMs), s.thresholds.LatencyMs),
		s.record(run.ID, MetricTokens, float64(m.TokensUsed), s.thresholds.Tokens),
		s.record(run.ID, MetricCost, m.Cost, s.thresholds.Cost),
	}, nil
}

func (s *UsageScorer) record(runID, metric string, value, threshold float64) types.ScoreRecord {
	rec := types.NewScoreRecord(runID, UsageScorerID, metric, types.NumberValue(normalizeUsage(value, threshold)), types.TargetGlobal)
	if threshold > 0 {
		rec.Evidence = &types.Evidence{
			Alignment: map[string]any{"raw": value, "threshold": threshold},
		}
	}
	return rec
}

func normalizeUsage(value, threshold float64) float64 {
	if threshold <= 0 {
		return value
	}
	score := 1.0 - value/threshold
	if score < 0 {
		score = 0
	}
	return score
}
