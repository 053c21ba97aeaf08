package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/evalflow/types"
)

type stubRunner struct {
	id  string
	typ types.CapabilityType
}

func (r *stubRunner) ID() string                 { return r.id }
func (r *stubRunner) Type() types.CapabilityType { return r.typ }
func (r *stubRunner) Version() string            { return "0.0.1" }
func (r *stubRunner) Execute(ctx context.Context, task *types.AtomicTask, config map[string]any) (*types.RunRecord, error) {
	rec := types.NewRunRecord(task, r.id, r.Version(), config)
	rec.Complete(map[string]any{})
	return rec, nil
}

type stubScorer struct{ id string }

func (s *stubScorer) ID() string        { return s.id }
func (s *stubScorer) Metrics() []string { return []string{"m"} }
func (s *stubScorer) Evaluate(ctx context.Context, run *types.RunRecord, task *types.AtomicTask, reports []types.ReportRecord) ([]types.ScoreRecord, error) {
	return nil, nil
}

type stubReporter struct{ id string }

func (s *stubReporter) ID() string            { return s.id }
func (s *stubReporter) ReportTypes() []string { return []string{"x"} }
func (s *stubReporter) Run(ctx context.Context, runID string, rc ReportContext) ([]types.ReportRecord, error) {
	return nil, nil
}

func TestRunnerRegistry(t *testing.T) {
	reg := NewRunnerRegistry()
	require.NoError(t, reg.Register(&stubRunner{id: "b", typ: types.CapabilityIntent}))
	require.NoError(t, reg.Register(&stubRunner{id: "a", typ: types.CapabilityIntent}))
	require.NoError(t, reg.Register(&stubRunner{id: "c", typ: types.CapabilityRAG}))

	t.Run("duplicate id fails", func(t *testing.T) {
		err := reg.Register(&stubRunner{id: "a", typ: types.CapabilityRAG})
		require.Error(t, err)
		assert.True(t, types.IsCode(err, types.ErrDuplicateRegistered))
		// 原注册保持不变
		r, ok := reg.Get("a")
		require.True(t, ok)
		assert.Equal(t, types.CapabilityIntent, r.Type())
	})

	t.Run("unknown id is absent", func(t *testing.T) {
		r, ok := reg.Get("missing")
		assert.False(t, ok)
		assert.Nil(t, r)
	})

	t.Run("index by type", func(t *testing.T) {
		intents := reg.ByType(types.CapabilityIntent)
		require.Len(t, intents, 2)
		assert.Equal(t, "a", intents[0].ID())
		assert.Equal(t, "b", intents[1].ID())
		assert.Empty(t, reg.ByType(types.CapabilityMemory))
	})

	t.Run("list sorted", func(t *testing.T) {
		all := reg.List()
		require.Len(t, all, 3)
		assert.Equal(t, []string{"a", "b", "c"}, []string{all[0].ID(), all[1].ID(), all[2].ID()})
	})

	t.Run("empty id rejected", func(t *testing.T) {
		err := reg.Register(&stubRunner{})
		assert.True(t, types.IsCode(err, types.ErrInvalidInput))
	})
}

func TestScorerRegistry_UnknownListsKnownIDs(t *testing.T) {
	reg := NewScorerRegistry()
	reg.MustRegister(&stubScorer{id: "exact_match"})
	reg.MustRegister(&stubScorer{id: "citation"})

	_, err := reg.Get("bleu")
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrScorerNotFound))
	assert.Contains(t, err.Error(), "citation, exact_match")

	_, err = reg.Resolve([]string{"citation", "bleu"})
	assert.Error(t, err)

	resolved, err := reg.Resolve([]string{"exact_match", "citation"})
	require.NoError(t, err)
	assert.Equal(t, "exact_match", resolved[0].ID())

	assert.Equal(t, []string{"citation", "exact_match"}, reg.List())
	assert.Len(t, reg.All(), 2)

	assert.Panics(t, func() { reg.MustRegister(&stubScorer{id: "citation"}) })
}

func TestReporterRegistry(t *testing.T) {
	reg := NewReporterRegistry()
	require.NoError(t, reg.Register(&stubReporter{id: "evidence"}))
	assert.Error(t, reg.Register(&stubReporter{id: "evidence"}))

	_, ok := reg.Get("nope")
	assert.False(t, ok)
	assert.Len(t, reg.All(), 1)
}

func TestDefinitionRegistry(t *testing.T) {
	reg := NewDefinitionRegistry()
	require.NoError(t, reg.RegisterTask(types.TaskDefinition{ID: "rag.qa", Type: types.CapabilityRAG}))
	require.NoError(t, reg.RegisterWorkflow(types.WorkflowDefinition{ID: "support", Steps: []string{"intent", "dialogue"}}))
	require.NoError(t, reg.RegisterMethod(types.MethodDefinition{ID: "bm25", TaskType: types.CapabilityRAG}))

	def, err := reg.Task("rag.qa")
	require.NoError(t, err)
	assert.Equal(t, types.CapabilityRAG, def.Type)

	_, err = reg.Task("nope")
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrDefinitionNotFound))
	assert.Contains(t, err.Error(), "rag.qa")

	_, err = reg.Workflow("nope")
	assert.Error(t, err)
	_, err = reg.Method("nope")
	assert.Error(t, err)

	assert.Error(t, reg.RegisterTask(types.TaskDefinition{ID: "rag.qa"}))
	assert.Len(t, reg.ListTasks(), 1)
	assert.Len(t, reg.ListWorkflows(), 1)
	assert.Len(t, reg.ListMethods(), 1)
}

func TestNewReportContext(t *testing.T) {
	run := &types.RunRecord{TaskID: "t1", TaskType: types.CapabilityRAG, Output: map[string]any{"a": 1}}
	run.AddArtifact(types.SchemaRAGRetrieved, "retrieve", nil)

	rc := NewReportContext(run)
	assert.Equal(t, "t1", rc.TaskID)
	assert.Len(t, rc.Artifacts, 1)
}
