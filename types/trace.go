package types

import (
	"sync"
	"time"
)

// TraceLevel 事件级别
type TraceLevel string

const (
	TraceDebug TraceLevel = "debug"
	TraceInfo  TraceLevel = "info"
	TraceWarn  TraceLevel = "warn"
	TraceError TraceLevel = "error"
)

// TraceEvent 执行 trace 中的单个事件
type TraceEvent struct {
	Timestamp time.Time      `json:"timestamp"`
	Level     TraceLevel     `json:"level"`
	Step      string         `json:"step,omitempty"`
	Event     string         `json:"event"`
	Data      map[string]any `json:"data,omitempty"`
}

// Tracer 追加式 trace 构建器。
// 时间戳单调不减，保证事件按发出顺序排列。
type Tracer struct {
	mu     sync.Mutex
	step   string
	events []TraceEvent
	last   time.Time
	now    func() time.Time
}

// NewTracer 创建 Tracer；step 非空时所有事件都带上该步骤 ID
func NewTracer(step string) *Tracer {
	return &Tracer{step: step, now: time.Now}
}

// Emit 追加事件
func (t *Tracer) Emit(level TraceLevel, event string, data map[string]any) {
	t.mu.Lock()
	defer t.mu.Unlock()

	ts := t.now()
	if ts.Before(t.last) {
		ts = t.last
	}
	t.last = ts
	t.events = append(t.events, TraceEvent{
		Timestamp: ts,
		Level:     level,
		Step:      t.step,
		Event:     event,
		Data:      data,
	})
}

func (t *Tracer) Info(event string, data map[string]any)  { t.Emit(TraceInfo, event, data) }
func (t *Tracer) Warn(event string, data map[string]any)  { t.Emit(TraceWarn, event, data) }
func (t *Tracer) Error(event string, data map[string]any) { t.Emit(TraceError, event, data) }

// Append 追加已有事件（例如子步骤的 trace），可选地覆盖步骤 ID
func (t *Tracer) Append(events []TraceEvent, step string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, ev := range events {
		if step != "" {
			ev.Step = step
		}
		if ev.Timestamp.Before(t.last) {
			ev.Timestamp = t.last
		}
		t.last = ev.Timestamp
		t.events = append(t.events, ev)
	}
}

// Events 返回事件快照
func (t *Tracer) Events() []TraceEvent {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]TraceEvent, len(t.events))
	copy(out, t.events)
	return out
}

// Len 返回事件数量
func (t *Tracer) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.events)
}
