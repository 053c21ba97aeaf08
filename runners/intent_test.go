package runners

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/evalflow/testutil"
	"github.com/BaSui01/evalflow/testutil/fixtures"
	"github.com/BaSui01/evalflow/testutil/mocks"
	"github.com/BaSui01/evalflow/types"
)

func TestClassifyByKeywords(t *testing.T) {
	intents := map[string][]string{
		"greeting": {"hello", "hi", "hey"},
		"refund":   {"refund", "money back", "return"},
		"farewell": {"bye", "goodbye"},
	}

	tests := []struct {
		name       string
		text       string
		intent     string
		confidence float64
		matched    []string
	}{
		{"single keyword", "Hello there!", "greeting", 1.0 / 3, []string{"hello"}},
		{"phrase keyword", "I want my money back and a refund", "refund", 2.0 / 3, []string{"refund", "money back"}},
		{"word boundary", "This is a thin chip", "unknown", 0, []string{}},
		{"no match", "what time is it", "unknown", 0, []string{}},
		{"tie picks lexical order", "hi, goodbye", "farewell", 0.5, []string{"goodbye"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := ClassifyByKeywords(tt.text, intents, "")
			assert.Equal(t, tt.intent, out.Intent)
			assert.InDelta(t, tt.confidence, out.Confidence, 1e-9)
			assert.Equal(t, tt.matched, out.Matched)
		})
	}
}

func TestIntentRunner_Rules(t *testing.T) {
	r := NewIntentRunner(nil, nil)
	assert.Equal(t, IntentRunnerID, r.ID())
	assert.Equal(t, types.CapabilityIntent, r.Type())

	rec, err := r.Execute(testutil.TestContext(t), fixtures.IntentTask("i1", "hey, hello!", "greeting"), fixtures.IntentConfig())
	require.NoError(t, err)
	require.Equal(t, types.RunCompleted, rec.Status)
	assert.Equal(t, "greeting", rec.Output["intent"])
	assert.InDelta(t, 2.0/3, rec.Output["confidence"], 1e-9)
	assert.Equal(t, []any{"hello", "hey"}, rec.Output["matched"])
	assert.Equal(t, 0, rec.Metrics.TokensUsed)
	testutil.AssertTraceContains(t, rec, "classified")
}

func TestIntentRunner_DefaultIntentFromConfig(t *testing.T) {
	cfg := fixtures.IntentConfig()
	cfg["default_intent"] = "other"

	rec, err := NewIntentRunner(nil, nil).Execute(testutil.TestContext(t), fixtures.IntentTask("i1", "weather today?", ""), cfg)
	require.NoError(t, err)
	assert.Equal(t, "other", rec.Output["intent"])
	assert.Equal(t, 0.0, rec.Output["confidence"])
}

func TestIntentRunner_InvalidInput(t *testing.T) {
	r := NewIntentRunner(nil, nil)
	ctx := testutil.TestContext(t)

	tests := []struct {
		name   string
		task   *types.AtomicTask
		config map[string]any
		substr string
	}{
		{"empty text", fixtures.IntentTask("i", "   ", ""), fixtures.IntentConfig(), "non-empty text"},
		{"no intents", fixtures.IntentTask("i", "hello", ""), nil, "at least one intent"},
		{"unknown mode", fixtures.IntentTask("i", "hello", ""), map[string]any{"mode": "magic"}, "unknown intent mode"},
		{"wrong input type", &types.AtomicTask{ID: "i", Type: types.CapabilityIntent, Input: map[string]any{"text": 42}}, fixtures.IntentConfig(), "decode intent input"},
		{"nil task", nil, fixtures.IntentConfig(), "nil task"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := r.Execute(ctx, tt.task, tt.config)
			require.NoError(t, err)
			testutil.RequireFailed(t, rec, tt.substr)
			ev := testutil.AssertTraceContains(t, rec, "run_failed")
			assert.Equal(t, string(types.ErrInvalidInput), ev.Data["code"])
		})
	}
}

func TestIntentRunner_LLM(t *testing.T) {
	provider := mocks.NewMockProvider().WithResponse("```json\n" + fixtures.IntentJSON("refund", 0.9) + "\n```")
	cfg := fixtures.IntentConfig()
	cfg["mode"] = ModeLLM
	cfg["model"] = "gpt-4o-mini"

	rec, err := NewIntentRunner(provider, nil).Execute(testutil.TestContext(t), fixtures.IntentTask("i1", "please pay me", "refund"), cfg)
	require.NoError(t, err)
	require.Equal(t, types.RunCompleted, rec.Status)
	assert.Equal(t, "refund", rec.Output["intent"])
	assert.InDelta(t, 0.9, rec.Output["confidence"], 1e-9)
	assert.Equal(t, 30, rec.Metrics.TokensUsed)

	req := provider.LastRequest()
	require.NotNil(t, req)
	assert.Equal(t, "gpt-4o-mini", req.Model)
	assert.Contains(t, req.Messages[1].Content, "farewell, greeting, refund")
	assert.Contains(t, req.Messages[1].Content, "please pay me")
}

func TestIntentRunner_LLMFallbacks(t *testing.T) {
	tests := []struct {
		name     string
		response string
		event    string
	}{
		{"unparseable", "I think it is a refund", "intent_parse_fallback"},
		{"outside allowed set", fixtures.IntentJSON("weather", 0.8), "intent_outside_allowed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := fixtures.IntentConfig()
			cfg["mode"] = ModeLLM
			rec, err := NewIntentRunner(mocks.NewMockProvider().WithResponse(tt.response), nil).
				Execute(testutil.TestContext(t), fixtures.IntentTask("i1", "hmm", ""), cfg)
			require.NoError(t, err)
			require.Equal(t, types.RunCompleted, rec.Status)
			assert.Equal(t, DefaultIntent, rec.Output["intent"])
			testutil.AssertTraceContains(t, rec, tt.event)
		})
	}
}

func TestIntentRunner_LLMErrors(t *testing.T) {
	cfg := map[string]any{"mode": ModeLLM}

	rec, err := NewIntentRunner(nil, nil).Execute(testutil.TestContext(t), fixtures.IntentTask("i1", "hi", ""), cfg)
	require.NoError(t, err)
	testutil.RequireFailed(t, rec, "requires a provider")

	provider := mocks.NewMockProvider().WithError(errors.New("connection reset"))
	rec, err = NewIntentRunner(provider, nil).Execute(testutil.TestContext(t), fixtures.IntentTask("i1", "hi", ""), cfg)
	require.NoError(t, err)
	testutil.RequireFailed(t, rec, "connection reset")
	ev := testutil.AssertTraceContains(t, rec, "run_failed")
	assert.Equal(t, string(types.ErrUpstreamError), ev.Data["code"])
}
