package types

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunRecord_Lifecycle(t *testing.T) {
	task := &AtomicTask{ID: "t1", Type: CapabilityRAG}
	rec := NewRunRecord(task, "rag-pipeline", "1.0.0", map[string]any{"top_k": 3})

	assert.Equal(t, RunRunning, rec.Status)
	assert.Equal(t, "t1", rec.TaskID)
	assert.Equal(t, CapabilityRAG, rec.TaskType)
	assert.NotEmpty(t, rec.ID)
	assert.NotNil(t, rec.Trace)

	rec.Complete(map[string]any{"answer": "x"})
	assert.Equal(t, RunCompleted, rec.Status)
	assert.True(t, rec.Status.IsTerminal())
	assert.False(t, rec.CompletedAt.IsZero())
}

func TestRunRecord_FailAlwaysHasMessage(t *testing.T) {
	rec := NewRunRecord(&AtomicTask{ID: "t1"}, "r", "", nil)
	rec.Fail("", "step-2", "")

	require.NotNil(t, rec.Error)
	assert.Equal(t, RunFailed, rec.Status)
	assert.Equal(t, "run failed", rec.Error.Message)
	assert.Equal(t, "step-2", rec.Error.Step)
}

func TestRunRecord_LatestArtifactPrefersOrder(t *testing.T) {
	rec := &RunRecord{}
	rec.AddArtifact(SchemaRAGRetrieved, "retrieve", []string{"c1"})
	rec.AddArtifact(SchemaRAGReranked, "rerank", []string{"c2"})

	a, ok := rec.LatestArtifact(SchemaRAGReranked, SchemaRAGRetrieved)
	require.True(t, ok)
	assert.Equal(t, SchemaRAGReranked, a.Schema)

	_, ok = rec.LatestArtifact("unknown.schema")
	assert.False(t, ok)
}

func TestFindLatestArtifact_StepFilter(t *testing.T) {
	rec := &RunRecord{}
	rec.AddArtifact(SchemaRAGRetrieved, "s1", []string{"c1"})
	rec.AddArtifact(SchemaRAGRetrieved, "s2", []string{"c2"})

	step := "s1"
	a, ok := FindLatestArtifact(rec.Artifacts, &step, SchemaRAGRetrieved)
	require.True(t, ok)
	assert.Equal(t, "s1", a.Step)

	a, ok = FindLatestArtifact(rec.Artifacts, nil, SchemaRAGRetrieved)
	require.True(t, ok)
	assert.Equal(t, "s2", a.Step)
}

func TestRunRecord_EnsureFailureTrace(t *testing.T) {
	rec := NewRunRecord(&AtomicTask{ID: "t1"}, "r", "", nil)
	rec.EnsureFailureTrace("r")
	assert.Empty(t, rec.Trace)

	rec.Fail("boom", "", "")
	rec.EnsureFailureTrace("r")
	require.Len(t, rec.Trace, 1)
	assert.Equal(t, "runner_failed", rec.Trace[0].Event)
	assert.Equal(t, TraceError, rec.Trace[0].Level)
	assert.Equal(t, "boom", rec.Trace[0].Data["error"])

	rec.EnsureFailureTrace("r")
	assert.Len(t, rec.Trace, 1)
}

func TestTracer_OrderIsMonotonic(t *testing.T) {
	tr := NewTracer("s1")
	base := time.Date(2026, 1, 1, 0, 0, 10, 0, time.UTC)
	calls := 0
	tr.now = func() time.Time {
		calls++
		// 第二次调用时钟回拨
		if calls == 2 {
			return base.Add(-time.Second)
		}
		return base
	}

	tr.Info("a", nil)
	tr.Warn("b", nil)
	tr.Append([]TraceEvent{{Timestamp: base.Add(-time.Hour), Event: "c"}}, "s2")

	events := tr.Events()
	require.Len(t, events, 3)
	assert.Equal(t, "s1", events[0].Step)
	assert.Equal(t, "s2", events[2].Step)
	for i := 1; i < len(events); i++ {
		assert.False(t, events[i].Timestamp.Before(events[i-1].Timestamp))
	}
}

func TestScoreValue_JSON(t *testing.T) {
	tests := []struct {
		name  string
		value ScoreValue
		want  string
	}{
		{"number", NumberValue(0.5), `0.5`},
		{"bool", BoolValue(true), `true`},
		{"string", StringValue("greeting"), `"greeting"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.value)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(data))

			var back ScoreValue
			require.NoError(t, json.Unmarshal(data, &back))
			assert.Equal(t, tt.value.Any(), back.Any())
		})
	}

	var bad ScoreValue
	assert.Error(t, json.Unmarshal([]byte(`{"a":1}`), &bad))
}

func TestScoreValue_Float(t *testing.T) {
	f, ok := BoolValue(true).Float()
	assert.True(t, ok)
	assert.Equal(t, 1.0, f)

	_, ok = StringValue("x").Float()
	assert.False(t, ok)
}

func TestAtomicTask_CloneIsDeep(t *testing.T) {
	task := &AtomicTask{
		ID:    "t1",
		Input: map[string]any{"nested": map[string]any{"k": "v"}, "list": []any{"a"}},
	}
	c := task.Clone()
	c.Input["nested"].(map[string]any)["k"] = "changed"
	c.Input["list"].([]any)[0] = "b"

	assert.Equal(t, "v", task.Input["nested"].(map[string]any)["k"])
	assert.Equal(t, "a", task.Input["list"].([]any)[0])
}

func TestStepTarget(t *testing.T) {
	target := StepTarget("step-1")
	assert.Equal(t, "step:step-1", target)

	id, ok := IsStepTarget(target)
	assert.True(t, ok)
	assert.Equal(t, "step-1", id)

	_, ok = IsStepTarget(TargetFinal)
	assert.False(t, ok)
}
