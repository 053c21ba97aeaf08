// =============================================================================
// 🧪 测试辅助函数
// =============================================================================
// 提供通用的测试辅助函数和断言
//
// 使用方法:
//
//	ctx := testutil.TestContext(t)
//	testutil.AssertTraceContains(t, run, "retrieved")
//
// =============================================================================
package testutil

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/evalflow/types"
)

// =============================================================================
// 🎯 上下文辅助
// =============================================================================

// TestContext 返回带超时的测试上下文
func TestContext(t *testing.T) context.Context {
	return TestContextWithTimeout(t, 30*time.Second)
}

// TestContextWithTimeout 返回带自定义超时的测试上下文
func TestContextWithTimeout(t *testing.T, timeout time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)
	return ctx
}

// CancelledContext 返回已取消的上下文
func CancelledContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}

// =============================================================================
// 🔍 运行记录断言
// =============================================================================

// FindTraceEvent 返回第一个名称匹配的 trace 事件
func FindTraceEvent(run *types.RunRecord, event string) (types.TraceEvent, bool) {
	if run == nil {
		return types.TraceEvent{}, false
	}
	for _, ev := range run.Trace {
		if ev.Event == event {
			return ev, true
		}
	}
	return types.TraceEvent{}, false
}

// AssertTraceContains 断言运行 trace 中包含指定事件
func AssertTraceContains(t *testing.T, run *types.RunRecord, event string) types.TraceEvent {
	t.Helper()
	ev, ok := FindTraceEvent(run, event)
	assert.Truef(t, ok, "trace has no %q event", event)
	return ev
}

// AssertTraceOrdered 断言 trace 时间戳单调不减
func AssertTraceOrdered(t *testing.T, run *types.RunRecord) {
	t.Helper()
	for i := 1; i < len(run.Trace); i++ {
		if run.Trace[i].Timestamp.Before(run.Trace[i-1].Timestamp) {
			t.Errorf("trace event %d (%s) is earlier than event %d (%s)",
				i, run.Trace[i].Event, i-1, run.Trace[i-1].Event)
		}
	}
}

// RequireFailed 断言运行失败且错误信息包含 substr
func RequireFailed(t *testing.T, run *types.RunRecord, substr string) {
	t.Helper()
	require.NotNil(t, run)
	require.Equal(t, types.RunFailed, run.Status)
	require.NotNil(t, run.Error)
	assert.Contains(t, run.Error.Message, substr)
	assert.NotEmpty(t, run.Trace)
}

// ScoresByMetric 按指标名索引分数
func ScoresByMetric(scores []types.ScoreRecord) map[string]types.ScoreRecord {
	out := make(map[string]types.ScoreRecord, len(scores))
	for _, s := range scores {
		out[s.Metric] = s
	}
	return out
}

// =============================================================================
// 📦 数据工具
// =============================================================================

// AssertJSONEqual 断言两个值的 JSON 表示相等
func AssertJSONEqual(t *testing.T, expected, actual any) {
	t.Helper()
	assert.JSONEq(t, MustJSON(expected), MustJSON(actual))
}

// MustJSON 序列化为 JSON，失败时 panic
func MustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(data)
}
