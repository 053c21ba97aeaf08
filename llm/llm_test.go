package llm

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedProvider 依次返回预设的结果
type scriptedProvider struct {
	calls atomic.Int32
	errs  []error
	text  string
	usage ChatUsage
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Completion(_ context.Context, req *ChatRequest) (*ChatResponse, error) {
	n := int(p.calls.Add(1)) - 1
	if n < len(p.errs) && p.errs[n] != nil {
		return nil, p.errs[n]
	}
	return &ChatResponse{
		Model:   req.Model,
		Choices: []ChatChoice{{Message: Message{Role: RoleAssistant, Content: p.text}}},
		Usage:   p.usage,
	}, nil
}

func TestComplete(t *testing.T) {
	p := &scriptedProvider{text: "hi", usage: ChatUsage{PromptTokens: 3, CompletionTokens: 1, TotalTokens: 4}}
	out, err := Complete(context.Background(), p, &ChatRequest{Model: "m"})
	require.NoError(t, err)
	assert.Equal(t, "hi", out.Text)
	assert.Equal(t, 4, out.Usage.TotalTokens)
}

func TestComplete_EstimatesMissingUsage(t *testing.T) {
	p := &scriptedProvider{text: "abcdabcd"}
	out, err := Complete(context.Background(), p, &ChatRequest{
		Model:    "unregistered-model",
		Messages: []Message{{Role: RoleUser, Content: "abcd"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, out.Usage.CompletionTokens)
	assert.Equal(t, 8, out.Usage.PromptTokens)
	assert.Equal(t, 10, out.Usage.TotalTokens)
}

func TestComplete_Errors(t *testing.T) {
	_, err := Complete(context.Background(), nil, &ChatRequest{})
	assert.Error(t, err)

	p := &scriptedProvider{errs: []error{errors.New("down")}}
	_, err = Complete(context.Background(), p, &ChatRequest{})
	assert.ErrorContains(t, err, "down")
}

func TestFirstChoice(t *testing.T) {
	_, err := FirstChoice(nil)
	assert.Error(t, err)
	_, err = FirstChoice(&ChatResponse{})
	assert.Error(t, err)

	c, err := FirstChoice(&ChatResponse{Choices: []ChatChoice{{Index: 0, Message: Message{Content: "x"}}}})
	require.NoError(t, err)
	assert.Equal(t, "x", c.Message.Content)
}

func TestRateLimitedProvider(t *testing.T) {
	p := &scriptedProvider{text: "ok"}
	rl := NewRateLimitedProvider(p, 0, 0)

	for i := 0; i < 5; i++ {
		_, err := rl.Completion(context.Background(), &ChatRequest{})
		require.NoError(t, err)
	}
	assert.Equal(t, int32(5), p.calls.Load())
}

func TestRateLimitedProvider_CancelledContext(t *testing.T) {
	p := &scriptedProvider{text: "ok"}
	rl := NewRateLimitedProvider(p, 0.001, 1)

	_, err := rl.Completion(context.Background(), &ChatRequest{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = rl.Completion(ctx, &ChatRequest{})
	require.Error(t, err)
	var llmErr *Error
	require.ErrorAs(t, err, &llmErr)
	assert.Equal(t, ErrRateLimited, llmErr.Code)
	assert.Equal(t, int32(1), p.calls.Load())
}
