package engine

import (
	"context"
	"sort"

	"github.com/BaSui01/evalflow/types"
)

// MetricDiff 单个指标在两次运行间的对比。
// 只在一侧出现的指标对应的值为 nil；双方都能转成数值时 Delta = B - A。
type MetricDiff struct {
	Metric   string   `json:"metric"`
	Target   string   `json:"target"`
	ScorerID string   `json:"scorer_id"`
	A        any      `json:"a"`
	B        any      `json:"b"`
	Delta    *float64 `json:"delta,omitempty"`
}

// Comparison 两次运行的对比结果
type Comparison struct {
	RunA       string       `json:"run_a"`
	RunB       string       `json:"run_b"`
	SameConfig bool         `json:"same_config"`
	Metrics    []MetricDiff `json:"metrics"`
}

type metricKey struct {
	scorer, metric, target string
}

// Compare 基于已存储的评分逐指标比较两次运行
func (e *Engine) Compare(ctx context.Context, runA, runB string) (_ *Comparison, err error) {
	if e.store == nil {
		return nil, types.NewError(types.ErrInvalidInput, "compare requires a configured store")
	}

	ctx, span := e.ins.startStage(ctx, "compare")
	defer func() { endSpan(span, err) }()

	a, scoresA, err := e.loadRun(ctx, runA)
	if err != nil {
		return nil, err
	}
	b, scoresB, err := e.loadRun(ctx, runB)
	if err != nil {
		return nil, err
	}

	diffs := make(map[metricKey]*MetricDiff)
	get := func(s types.ScoreRecord) *MetricDiff {
		k := metricKey{scorer: s.ScorerID, metric: s.Metric, target: s.Target}
		d, ok := diffs[k]
		if !ok {
			d = &MetricDiff{Metric: s.Metric, Target: s.Target, ScorerID: s.ScorerID}
			diffs[k] = d
		}
		return d
	}

	valuesA := make(map[metricKey]types.ScoreValue, len(scoresA))
	for _, s := range scoresA {
		get(s).A = s.Value.Any()
		valuesA[metricKey{s.ScorerID, s.Metric, s.Target}] = s.Value
	}
	for _, s := range scoresB {
		d := get(s)
		d.B = s.Value.Any()
		va, ok := valuesA[metricKey{s.ScorerID, s.Metric, s.Target}]
		if !ok {
			continue
		}
		fa, okA := va.Float()
		fb, okB := s.Value.Float()
		if okA && okB {
			delta := fb - fa
			d.Delta = &delta
		}
	}

	out := &Comparison{
		RunA:       a.ID,
		RunB:       b.ID,
		SameConfig: a.Provenance.ConfigHash != "" && a.Provenance.ConfigHash == b.Provenance.ConfigHash,
		Metrics:    make([]MetricDiff, 0, len(diffs)),
	}
	for _, d := range diffs {
		out.Metrics = append(out.Metrics, *d)
	}
	sort.Slice(out.Metrics, func(i, j int) bool {
		x, y := out.Metrics[i], out.Metrics[j]
		if x.Metric != y.Metric {
			return x.Metric < y.Metric
		}
		if x.Target != y.Target {
			return x.Target < y.Target
		}
		return x.ScorerID < y.ScorerID
	})
	return out, nil
}

func (e *Engine) loadRun(ctx context.Context, runID string) (*types.RunRecord, []types.ScoreRecord, error) {
	run, err := e.store.GetRun(ctx, runID)
	if err != nil {
		return nil, nil, err
	}
	if run == nil {
		return nil, nil, types.Errorf(types.ErrRunNotFound, "run %q not found", runID)
	}
	scores, err := e.store.GetScores(ctx, runID)
	if err != nil {
		return nil, nil, err
	}
	return run, scores, nil
}
