package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/evalflow/testutil"
	"github.com/BaSui01/evalflow/testutil/mocks"
	"github.com/BaSui01/evalflow/types"
)

func TestRun_WithMockPlugins(t *testing.T) {
	f := newFixture(t)
	runner := mocks.NewMockRunner("mock", types.CapabilityIntent).
		WithOutput(map[string]any{"intent": "greeting"}).
		WithMetrics(types.RunMetrics{TokensUsed: 12})
	scorer := mocks.NewMockScorer("quality", "quality", types.NumberValue(0.9))
	f.runners.MustRegister(runner)
	f.scorers.MustRegister(scorer)
	f.reporters.MustRegister(mocks.NewMockReporter("notes", "notes", map[string]any{"ok": true}))

	ctx := context.Background()
	res, err := f.engine.Run(ctx, RunRequest{
		Task:      intentTask("t1"),
		RunnerID:  "mock",
		Config:    map[string]any{"threshold": 0.5},
		Overrides: map[string]any{"threshold": 0.8},
	})
	require.NoError(t, err)

	assert.Equal(t, types.RunCompleted, res.Run.Status)
	assert.Equal(t, "greeting", res.Run.Output["intent"])
	assert.Equal(t, 12, res.Run.Metrics.TokensUsed)

	require.Len(t, runner.Configs(), 1)
	assert.Equal(t, 0.8, runner.Configs()[0]["threshold"])
	assert.Equal(t, "hello", runner.Inputs()[0]["text"])

	require.Len(t, res.Run.Reports, 1)
	assert.Equal(t, "notes", res.Run.Reports[0].Type)
	testutil.AssertJSONEqual(t, map[string]any{"ok": true}, res.Run.Reports[0].Payload)
	assert.Equal(t, res.Run.ID, res.Run.Reports[0].RunID)

	require.Len(t, res.Scores, 1)
	assert.Equal(t, "quality", res.Scores[0].ScorerID)
	assert.Equal(t, types.NumberValue(0.9), res.Scores[0].Value)
	assert.Equal(t, 1, scorer.Calls())

	stored, err := f.store.GetScores(ctx, res.Run.ID)
	require.NoError(t, err)
	assert.Len(t, stored, 1)
}

func TestRun_MockRunnerFailureStillScored(t *testing.T) {
	f := newFixture(t)
	f.runners.MustRegister(mocks.NewMockRunner("mock", types.CapabilityIntent).WithFailure("model refused"))
	scorer := mocks.NewMockScorer("completed", "completed", types.BoolValue(false))
	f.scorers.MustRegister(scorer)

	res, err := f.engine.Run(context.Background(), RunRequest{Task: intentTask("t1"), RunnerID: "mock"})
	require.NoError(t, err)

	assert.Equal(t, types.RunFailed, res.Run.Status)
	require.NotNil(t, res.Run.Error)
	assert.Equal(t, "model refused", res.Run.Error.Message)
	assert.Equal(t, 1, scorer.Calls())
	require.Len(t, res.Scores, 1)
	assert.Equal(t, types.BoolValue(false), res.Scores[0].Value)
}

func TestRun_MockErrorsAreIsolated(t *testing.T) {
	f := newFixture(t)
	f.runners.MustRegister(mocks.NewMockRunner("mock", types.CapabilityIntent).WithError(errors.New("connection reset")))
	f.scorers.MustRegister(mocks.NewMockScorer("bad", "bad", types.NumberValue(0)).WithError(errors.New("scorer down")))
	f.scorers.MustRegister(mocks.NewMockScorer("good", "good", types.NumberValue(1)))
	f.reporters.MustRegister(mocks.NewMockReporter("broken", "broken", nil).WithError(errors.New("report failed")))

	res, err := f.engine.Run(context.Background(), RunRequest{Task: intentTask("t1"), RunnerID: "mock"})
	require.NoError(t, err)

	assert.Equal(t, types.RunFailed, res.Run.Status)
	assert.Contains(t, res.Run.Error.Message, "connection reset")
	assert.Empty(t, res.Run.Reports)
	require.Len(t, res.Scores, 1)
	assert.Equal(t, "good", res.Scores[0].ScorerID)
	assert.ElementsMatch(t, []string{"reporter/broken", "scorer/bad"}, f.recorder.failures)
}
