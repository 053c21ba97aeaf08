package llm

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/evalflow/types"
)

// Handler 处理一次补全请求
type Handler func(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

// Middleware 包装 Handler
type Middleware func(next Handler) Handler

// Chain 中间件链，先加入的在最外层
type Chain struct {
	middlewares []Middleware
}

// NewChain 创建中间件链
func NewChain(middlewares ...Middleware) *Chain {
	return &Chain{middlewares: middlewares}
}

// Use 追加中间件
func (c *Chain) Use(m Middleware) *Chain {
	c.middlewares = append(c.middlewares, m)
	return c
}

// Then 用全部中间件包装 h
func (c *Chain) Then(h Handler) Handler {
	for i := len(c.middlewares) - 1; i >= 0; i-- {
		h = c.middlewares[i](h)
	}
	return h
}

// Len 中间件数量
func (c *Chain) Len() int { return len(c.middlewares) }

// Wrap 返回经过中间件链的 Provider；没有中间件时原样返回
func Wrap(p Provider, middlewares ...Middleware) Provider {
	if len(middlewares) == 0 {
		return p
	}
	return &chainedProvider{
		name:    p.Name(),
		handler: NewChain(middlewares...).Then(p.Completion),
	}
}

type chainedProvider struct {
	name    string
	handler Handler
}

func (p *chainedProvider) Completion(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	return p.handler(ctx, req)
}

func (p *chainedProvider) Name() string { return p.name }

// LoggingMiddleware 以 debug 级别记录请求与响应
func LoggingMiddleware(logger *zap.Logger) Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next Handler) Handler {
		return func(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
			start := time.Now()
			resp, err := next(ctx, req)
			duration := time.Since(start)

			fields := append(contextFields(ctx),
				zap.String("model", req.Model),
				zap.Duration("duration", duration))
			if err != nil {
				logger.Warn("llm request failed", append(fields, zap.Error(err))...)
				return resp, err
			}
			logger.Debug("llm request completed", append(fields,
				zap.Int("messages", len(req.Messages)),
				zap.Int("total_tokens", resp.Usage.TotalTokens))...)
			return resp, nil
		}
	}
}

// contextFields 取出引擎写入 ctx 的关联 ID
func contextFields(ctx context.Context) []zap.Field {
	var fields []zap.Field
	if id, ok := types.TraceID(ctx); ok {
		fields = append(fields, zap.String("trace_id", id))
	}
	if id, ok := types.TaskID(ctx); ok {
		fields = append(fields, zap.String("task_id", id))
	}
	if id, ok := types.StepID(ctx); ok {
		fields = append(fields, zap.String("step_id", id))
	}
	return fields
}

// RecoveryMiddleware 将 Provider 内部的 panic 转为错误
func RecoveryMiddleware(onPanic func(any)) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, req *ChatRequest) (resp *ChatResponse, err error) {
			defer func() {
				if r := recover(); r != nil {
					if onPanic != nil {
						onPanic(r)
					}
					resp, err = nil, &PanicError{Value: r}
				}
			}()
			return next(ctx, req)
		}
	}
}

// PanicError 被恢复的 panic
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("provider panic: %v", e.Value)
}

// MetricsRecorder LLM 调用指标
type MetricsRecorder interface {
	RecordLLMRequest(provider, model, status string, duration time.Duration, promptTokens, completionTokens int, cost float64)
}

// MetricsMiddleware 记录每次调用的状态、耗时与用量
func MetricsMiddleware(provider string, recorder MetricsRecorder) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
			start := time.Now()
			resp, err := next(ctx, req)

			status := "success"
			var usage ChatUsage
			model := req.Model
			if err != nil {
				status = "error"
			} else if resp != nil {
				usage = resp.Usage
				if resp.Model != "" {
					model = resp.Model
				}
			}
			recorder.RecordLLMRequest(provider, model, status, time.Since(start),
				usage.PromptTokens, usage.CompletionTokens, usage.Cost)
			return resp, err
		}
	}
}
