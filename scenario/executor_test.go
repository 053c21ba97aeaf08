package scenario

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/evalflow/registry"
	"github.com/BaSui01/evalflow/types"
)

// funcRunner 以函数实现 Runner，并记录收到的输入
type funcRunner struct {
	id     string
	fn     func(task *types.AtomicTask) (map[string]any, error)
	inputs []map[string]any
	calls  int
}

func (r *funcRunner) ID() string                 { return r.id }
func (r *funcRunner) Type() types.CapabilityType { return types.CapabilityIntent }
func (r *funcRunner) Version() string            { return "test" }
func (r *funcRunner) Execute(_ context.Context, task *types.AtomicTask, cfg map[string]any) (*types.RunRecord, error) {
	r.calls++
	r.inputs = append(r.inputs, task.Input)
	rec := types.NewRunRecord(task, r.id, "test", cfg)
	tr := types.NewTracer("")
	tr.Info("runner_called", nil)
	rec.Trace = tr.Events()
	rec.Metrics.TokensUsed = 10

	out, err := r.fn(task)
	if err != nil {
		rec.Fail(err.Error(), "", "stack")
		return rec, nil
	}
	rec.Complete(out)
	return rec, nil
}

func newExecutor(t *testing.T, runners ...registry.Runner) *Executor {
	t.Helper()
	reg := registry.NewRunnerRegistry()
	for _, r := range runners {
		require.NoError(t, reg.Register(r))
	}
	return NewExecutor(reg, zap.NewNop())
}

func echo(out map[string]any) func(*types.AtomicTask) (map[string]any, error) {
	return func(*types.AtomicTask) (map[string]any, error) { return out, nil }
}

func TestExecute_BindsPriorStepOutput(t *testing.T) {
	intent := &funcRunner{id: "intent", fn: echo(map[string]any{"intent": "greeting"})}
	reply := &funcRunner{id: "reply", fn: func(task *types.AtomicTask) (map[string]any, error) {
		return map[string]any{"reply": "hello", "seen": task.Input["detected_intent"]}, nil
	}}
	exec := newExecutor(t, intent, reply)

	sc := &types.Scenario{
		ID: "greet",
		Steps: []types.AtomicTask{
			{ID: "step-1", Type: types.CapabilityIntent, Input: map[string]any{"text": "hi"}},
			{ID: "step-2", Type: types.CapabilityDialogue, Input: map[string]any{"turn": 1}},
		},
		InputMap: map[string][]types.Binding{
			"step-2": {
				{From: "step:step-1:intent", To: "detected_intent"},
				{From: "input:user", To: "context.user"},
			},
		},
		Input: map[string]any{"user": "ann"},
	}

	rec := exec.Execute(context.Background(), sc, map[string]map[string]any{
		"step-1": {"runner_id": "intent"},
		"step-2": {"runner_id": "reply"},
	})

	require.Equal(t, types.RunCompleted, rec.Status)
	require.Len(t, reply.inputs, 1)
	assert.Equal(t, "greeting", reply.inputs[0]["detected_intent"])
	assert.Equal(t, map[string]any{"user": "ann"}, reply.inputs[0]["context"])
	assert.Equal(t, 1, reply.inputs[0]["turn"])
	assert.Equal(t, map[string]any{"reply": "hello", "seen": "greeting"}, rec.Output)
	assert.Equal(t, 20, rec.Metrics.TokensUsed)
	assert.Len(t, rec.Steps, 2)
	assert.Equal(t, types.CapabilityScenario, rec.TaskType)
	assert.Contains(t, rec.Provenance.Config, "step-1")

	// 原始步骤输入不被绑定修改
	_, mutated := sc.Steps[1].Input["detected_intent"]
	assert.False(t, mutated)

	// 步骤 trace 事件带上步骤 ID
	var tagged bool
	for _, ev := range rec.Trace {
		if ev.Event == "runner_called" && ev.Step == "step-1" {
			tagged = true
		}
	}
	assert.True(t, tagged)
}

func TestExecute_StopsAtFailingStep(t *testing.T) {
	ok := &funcRunner{id: "ok", fn: echo(map[string]any{"v": 1})}
	bad := &funcRunner{id: "bad", fn: func(*types.AtomicTask) (map[string]any, error) {
		return nil, errors.New("boom")
	}}
	exec := newExecutor(t, ok, bad)

	sc := &types.Scenario{
		ID: "s",
		Steps: []types.AtomicTask{
			{ID: "a"}, {ID: "b"}, {ID: "c"}, {ID: "d"},
		},
	}
	rec := exec.Execute(context.Background(), sc, map[string]map[string]any{
		"a": {"runner_id": "ok"},
		"b": {"runner_id": "ok"},
		"c": {"runner_id": "bad"},
		"d": {"runner_id": "ok"},
	})

	assert.Equal(t, types.RunFailed, rec.Status)
	require.NotNil(t, rec.Error)
	assert.Equal(t, "c", rec.Error.Step)
	assert.Equal(t, "boom", rec.Error.Message)
	assert.Equal(t, "stack", rec.Error.Stack)
	require.Len(t, rec.Steps, 4)
	assert.Equal(t, types.RunCompleted, rec.Steps[0].Status)
	assert.Equal(t, types.RunCompleted, rec.Steps[1].Status)
	assert.Equal(t, types.RunFailed, rec.Steps[2].Status)
	assert.Empty(t, rec.Steps[3].Status)
	assert.Equal(t, "d", rec.Steps[3].ID)
	assert.Equal(t, 2, ok.calls)
	assert.NotEmpty(t, rec.Trace)
}

func TestExecute_MissingConfigRunsNothing(t *testing.T) {
	r := &funcRunner{id: "r", fn: echo(map[string]any{})}
	exec := newExecutor(t, r)

	sc := &types.Scenario{ID: "s", Steps: []types.AtomicTask{{ID: "first"}, {ID: "second"}}}
	rec := exec.Execute(context.Background(), sc, map[string]map[string]any{
		"first": {"runner_id": "r"},
	})

	assert.Equal(t, types.RunFailed, rec.Status)
	assert.Contains(t, rec.Error.Message, "second")
	assert.Equal(t, "second", rec.Error.Step)
	assert.Equal(t, 0, r.calls)
	require.Len(t, rec.Steps, 2)
	for _, st := range rec.Steps {
		assert.Empty(t, st.Status)
	}
}

func TestExecute_ConfigWithoutRunnerID(t *testing.T) {
	exec := newExecutor(t)
	sc := &types.Scenario{Steps: []types.AtomicTask{{ID: "only"}}}
	rec := exec.Execute(context.Background(), sc, map[string]map[string]any{"only": {"top_k": 3}})

	assert.Equal(t, types.RunFailed, rec.Status)
	assert.Contains(t, rec.Error.Message, "only")
}

func TestExecute_UnknownRunner(t *testing.T) {
	exec := newExecutor(t)
	sc := &types.Scenario{Steps: []types.AtomicTask{{ID: "x"}}}
	rec := exec.Execute(context.Background(), sc, map[string]map[string]any{"x": {"runner_id": "ghost"}})

	assert.Equal(t, types.RunFailed, rec.Status)
	assert.Contains(t, rec.Error.Message, "ghost")
	assert.Equal(t, "x", rec.Error.Step)
}

func TestExecute_EmptyScenario(t *testing.T) {
	exec := newExecutor(t)
	rec := exec.Execute(context.Background(), &types.Scenario{ID: "empty"}, nil)

	assert.Equal(t, types.RunCompleted, rec.Status)
	assert.Nil(t, rec.Output)
	assert.NotEmpty(t, rec.Trace)
}

func TestExecute_ForwardReferenceResolvesToNil(t *testing.T) {
	first := &funcRunner{id: "first", fn: echo(map[string]any{"v": 1})}
	second := &funcRunner{id: "second", fn: echo(map[string]any{"v": 2})}
	exec := newExecutor(t, first, second)

	sc := &types.Scenario{
		Steps: []types.AtomicTask{{ID: "a"}, {ID: "b"}},
		InputMap: map[string][]types.Binding{
			"a": {{From: "step:b:v", To: "future"}},
		},
	}
	rec := exec.Execute(context.Background(), sc, map[string]map[string]any{
		"a": {"runner_id": "first"},
		"b": {"runner_id": "second"},
	})

	require.Equal(t, types.RunCompleted, rec.Status)
	v, present := first.inputs[0]["future"]
	assert.True(t, present)
	assert.Nil(t, v)

	var warned bool
	for _, ev := range rec.Trace {
		if ev.Event == "binding_unresolved" && ev.Level == types.TraceWarn {
			warned = true
			assert.Equal(t, "step_not_executed", ev.Data["reason"])
		}
	}
	assert.True(t, warned)
}

func TestExecute_RunnerErrorBecomesFailedStep(t *testing.T) {
	reg := registry.NewRunnerRegistry()
	require.NoError(t, reg.Register(&errRunner{}))
	exec := NewExecutor(reg, nil)

	rec := exec.Execute(context.Background(), &types.Scenario{Steps: []types.AtomicTask{{ID: "s"}}},
		map[string]map[string]any{"s": {"runner_id": "err"}})

	assert.Equal(t, types.RunFailed, rec.Status)
	assert.Equal(t, "upstream down", rec.Error.Message)
}

func TestExecute_RecoversPanic(t *testing.T) {
	p := &funcRunner{id: "p", fn: func(*types.AtomicTask) (map[string]any, error) { panic("kaboom") }}
	exec := newExecutor(t, p)

	rec := exec.Execute(context.Background(), &types.Scenario{Steps: []types.AtomicTask{{ID: "s"}}},
		map[string]map[string]any{"s": {"runner_id": "p"}})

	assert.Equal(t, types.RunFailed, rec.Status)
	assert.Contains(t, rec.Error.Message, "kaboom")
	assert.NotEmpty(t, rec.Error.Stack)
	assert.NotEmpty(t, rec.Trace)
}

func TestExecute_InvalidBindingFailsStep(t *testing.T) {
	r := &funcRunner{id: "r", fn: echo(map[string]any{})}
	exec := newExecutor(t, r)

	sc := &types.Scenario{
		Steps:    []types.AtomicTask{{ID: "s"}},
		InputMap: map[string][]types.Binding{"s": {{From: "bogus", To: "x"}}},
	}
	rec := exec.Execute(context.Background(), sc, map[string]map[string]any{"s": {"runner_id": "r"}})

	assert.Equal(t, types.RunFailed, rec.Status)
	assert.Equal(t, 0, r.calls)
}

type errRunner struct{}

func (errRunner) ID() string                 { return "err" }
func (errRunner) Type() types.CapabilityType { return types.CapabilityIntent }
func (errRunner) Version() string            { return "test" }
func (errRunner) Execute(context.Context, *types.AtomicTask, map[string]any) (*types.RunRecord, error) {
	return nil, errors.New("upstream down")
}
