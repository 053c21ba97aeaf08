package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/BaSui01/evalflow/types"
)

type recordedCall struct {
	provider, model, status string
	prompt, completion      int
	cost                    float64
}

type fakeRecorder struct {
	calls []recordedCall
}

func (r *fakeRecorder) RecordLLMRequest(provider, model, status string, _ time.Duration, prompt, completion int, cost float64) {
	r.calls = append(r.calls, recordedCall{provider, model, status, prompt, completion, cost})
}

func TestChain_Order(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next Handler) Handler {
			return func(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
				order = append(order, name)
				return next(ctx, req)
			}
		}
	}

	chain := NewChain(mark("outer")).Use(mark("inner"))
	assert.Equal(t, 2, chain.Len())

	h := chain.Then(func(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
		order = append(order, "handler")
		return &ChatResponse{}, nil
	})
	_, err := h(context.Background(), &ChatRequest{})
	require.NoError(t, err)
	assert.Equal(t, []string{"outer", "inner", "handler"}, order)
}

func TestWrap_NoMiddlewareReturnsProvider(t *testing.T) {
	p := &scriptedProvider{text: "ok"}
	assert.Same(t, Provider(p), Wrap(p))
}

func TestMetricsMiddleware(t *testing.T) {
	rec := &fakeRecorder{}
	p := Wrap(&scriptedProvider{
		text:  "ok",
		usage: ChatUsage{PromptTokens: 7, CompletionTokens: 3, TotalTokens: 10, Cost: 0.02},
	}, MetricsMiddleware("scripted", rec))
	assert.Equal(t, "scripted", p.Name())

	_, err := p.Completion(context.Background(), &ChatRequest{Model: "m1"})
	require.NoError(t, err)

	failing := Wrap(&scriptedProvider{errs: []error{errors.New("down")}}, MetricsMiddleware("scripted", rec))
	_, err = failing.Completion(context.Background(), &ChatRequest{Model: "m2"})
	require.Error(t, err)

	require.Len(t, rec.calls, 2)
	assert.Equal(t, recordedCall{"scripted", "m1", "success", 7, 3, 0.02}, rec.calls[0])
	assert.Equal(t, recordedCall{"scripted", "m2", "error", 0, 0, 0}, rec.calls[1])
}

type panickingProvider struct{}

func (panickingProvider) Name() string { return "panicky" }
func (panickingProvider) Completion(context.Context, *ChatRequest) (*ChatResponse, error) {
	panic("boom")
}

func TestRecoveryMiddleware(t *testing.T) {
	var recovered any
	p := Wrap(panickingProvider{}, RecoveryMiddleware(func(v any) { recovered = v }))

	resp, err := p.Completion(context.Background(), &ChatRequest{})
	assert.Nil(t, resp)
	var pe *PanicError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "boom", pe.Value)
	assert.Equal(t, "boom", recovered)
	assert.Contains(t, err.Error(), "boom")
}

func TestLoggingMiddleware(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	p := Wrap(&scriptedProvider{text: "ok", usage: ChatUsage{TotalTokens: 4}}, LoggingMiddleware(zap.New(core)))

	_, err := p.Completion(context.Background(), &ChatRequest{Model: "m"})
	require.NoError(t, err)

	entries := logs.FilterMessage("llm request completed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, int64(4), entries[0].ContextMap()["total_tokens"])
}

func TestLoggingMiddleware_ContextIDs(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	p := Wrap(&scriptedProvider{errs: []error{errors.New("boom")}}, LoggingMiddleware(zap.New(core)))

	ctx := types.WithStepID(types.WithTaskID(types.WithTraceID(context.Background(), "trace-1"), "task-1"), "step-1")
	_, err := p.Completion(ctx, &ChatRequest{Model: "m"})
	require.Error(t, err)

	entries := logs.FilterMessage("llm request failed").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "trace-1", fields["trace_id"])
	assert.Equal(t, "task-1", fields["task_id"])
	assert.Equal(t, "step-1", fields["step_id"])
}
