package types

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()

	_, ok := TaskID(ctx)
	assert.False(t, ok)
	_, ok = StepID(WithStepID(ctx, ""))
	assert.False(t, ok, "empty values count as absent")

	ctx = WithTraceID(ctx, "4bf92f3577b34da6a3ce929d0e0e4736")
	ctx = WithTaskID(ctx, "task-1")
	ctx = WithStepID(ctx, "classify")

	traceID, ok := TraceID(ctx)
	assert.True(t, ok)
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", traceID)

	taskID, ok := TaskID(ctx)
	assert.True(t, ok)
	assert.Equal(t, "task-1", taskID)

	stepID, ok := StepID(ctx)
	assert.True(t, ok)
	assert.Equal(t, "classify", stepID)
}
