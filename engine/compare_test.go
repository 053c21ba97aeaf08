package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/evalflow/registry"
	"github.com/BaSui01/evalflow/types"
)

func TestCompare_MetricDeltas(t *testing.T) {
	f := newFixture(t)
	f.runners.MustRegister(echoRunner("echo", types.CapabilityIntent))

	score := 0.4
	f.scorers.MustRegister(&stubScorer{id: "acc", eval: func(*types.RunRecord, []types.ReportRecord) ([]types.ScoreRecord, error) {
		return []types.ScoreRecord{
			{Metric: "accuracy", Value: types.NumberValue(score)},
			{Metric: "label", Value: types.StringValue("ok")},
		}, nil
	}})

	ctx := context.Background()
	a, err := f.engine.Run(ctx, RunRequest{Task: intentTask("t1"), RunnerID: "echo"})
	require.NoError(t, err)
	score = 0.9
	b, err := f.engine.Run(ctx, RunRequest{Task: intentTask("t1"), RunnerID: "echo"})
	require.NoError(t, err)

	cmp, err := f.engine.Compare(ctx, a.Run.ID, b.Run.ID)
	require.NoError(t, err)
	assert.True(t, cmp.SameConfig)
	require.Len(t, cmp.Metrics, 2)

	acc := cmp.Metrics[0]
	assert.Equal(t, "accuracy", acc.Metric)
	assert.Equal(t, "acc", acc.ScorerID)
	assert.Equal(t, 0.4, acc.A)
	assert.Equal(t, 0.9, acc.B)
	require.NotNil(t, acc.Delta)
	assert.InDelta(t, 0.5, *acc.Delta, 1e-9)

	label := cmp.Metrics[1]
	assert.Equal(t, "label", label.Metric)
	assert.Nil(t, label.Delta)
}

func TestCompare_OneSidedMetric(t *testing.T) {
	f := newFixture(t)
	f.runners.MustRegister(echoRunner("echo", types.CapabilityIntent))
	f.scorers.MustRegister(constScorer("only_a", 1))
	f.scorers.MustRegister(constScorer("only_b", 2))

	ctx := context.Background()
	a, err := f.engine.Run(ctx, RunRequest{Task: intentTask("t1"), RunnerID: "echo", ScorerIDs: []string{"only_a"}})
	require.NoError(t, err)
	b, err := f.engine.Run(ctx, RunRequest{
		Task:      intentTask("t1"),
		RunnerID:  "echo",
		ScorerIDs: []string{"only_b"},
		Config:    map[string]any{"v": 2},
	})
	require.NoError(t, err)

	cmp, err := f.engine.Compare(ctx, a.Run.ID, b.Run.ID)
	require.NoError(t, err)
	assert.False(t, cmp.SameConfig)
	require.Len(t, cmp.Metrics, 2)
	assert.Equal(t, 1.0, cmp.Metrics[0].A)
	assert.Nil(t, cmp.Metrics[0].B)
	assert.Nil(t, cmp.Metrics[1].A)
	assert.Equal(t, 2.0, cmp.Metrics[1].B)
	assert.Nil(t, cmp.Metrics[0].Delta)
}

func TestCompare_MissingRun(t *testing.T) {
	f := newFixture(t)
	f.runners.MustRegister(echoRunner("echo", types.CapabilityIntent))
	a, err := f.engine.Run(context.Background(), RunRequest{Task: intentTask("t1"), RunnerID: "echo"})
	require.NoError(t, err)

	_, err = f.engine.Compare(context.Background(), a.Run.ID, "run_missing")
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrRunNotFound))
}

func TestCompare_RequiresStore(t *testing.T) {
	eng, err := NewEngine(Options{Runners: registry.NewRunnerRegistry()})
	require.NoError(t, err)

	_, err = eng.Compare(context.Background(), "a", "b")
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrInvalidInput))
}
