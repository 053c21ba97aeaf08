package engine

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "evalflow/engine"

// Recorder 运行级指标的接收方，internal/metrics.Collector 实现了它
type Recorder interface {
	RecordRun(runner, taskType, status string, duration time.Duration, tokens int, cost float64)
	RecordScore(scorer, metric string)
	RecordPluginFailure(kind, id string)
}

type noopRecorder struct{}

func (noopRecorder) RecordRun(string, string, string, time.Duration, int, float64) {}
func (noopRecorder) RecordScore(string, string)                                    {}
func (noopRecorder) RecordPluginFailure(string, string)                            {}

// instruments OTel tracer 与 meter 的组合
type instruments struct {
	tracer trace.Tracer

	// 柜台
	runTotal     metric.Int64Counter
	scoreTotal   metric.Int64Counter
	failureTotal metric.Int64Counter
	// 直方图
	runDuration metric.Float64Histogram
}

func newInstruments(tp trace.TracerProvider, mp metric.MeterProvider) (*instruments, error) {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(instrumentationName)

	ins := &instruments{tracer: tp.Tracer(instrumentationName)}

	var err error
	ins.runTotal, err = meter.Int64Counter("evalflow.run.total",
		metric.WithDescription("Total number of evaluation runs"),
		metric.WithUnit("{run}"))
	if err != nil {
		return nil, err
	}

	ins.scoreTotal, err = meter.Int64Counter("evalflow.score.total",
		metric.WithDescription("Total number of score records produced"),
		metric.WithUnit("{score}"))
	if err != nil {
		return nil, err
	}

	ins.failureTotal, err = meter.Int64Counter("evalflow.plugin.failure.total",
		metric.WithDescription("Reporter and scorer failures caught by the pipeline"),
		metric.WithUnit("{failure}"))
	if err != nil {
		return nil, err
	}

	ins.runDuration, err = meter.Float64Histogram("evalflow.run.duration",
		metric.WithDescription("Evaluation run duration"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	return ins, nil
}

func (ins *instruments) startStage(ctx context.Context, stage string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return ins.tracer.Start(ctx, "evalflow."+stage, trace.WithAttributes(attrs...))
}

// endSpan 结束 span；err 非空时标记为错误
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (ins *instruments) recordRun(ctx context.Context, runner, status string, d time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("runner", runner),
		attribute.String("status", status))
	ins.runTotal.Add(ctx, 1, attrs)
	ins.runDuration.Record(ctx, d.Seconds(), attrs)
}

func (ins *instruments) recordScore(ctx context.Context, scorer string) {
	ins.scoreTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("scorer", scorer)))
}

func (ins *instruments) recordFailure(ctx context.Context, kind, id string) {
	ins.failureTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("id", id)))
}
