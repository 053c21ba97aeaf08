package engine

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/evalflow/provenance"
	"github.com/BaSui01/evalflow/registry"
	"github.com/BaSui01/evalflow/scenario"
	"github.com/BaSui01/evalflow/store"
	"github.com/BaSui01/evalflow/types"
)

// =============================================================================
// 🧪 评测引擎
// =============================================================================

// Options 引擎依赖。Runners 必填，其余可为空。
type Options struct {
	Runners   *registry.RunnerRegistry
	Scorers   *registry.ScorerRegistry
	Reporters *registry.ReporterRegistry

	// Store 为空时不持久化
	Store store.Store
	// Metrics 为空时不记录 Prometheus 指标
	Metrics Recorder

	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider

	Logger *zap.Logger
}

// RunRequest 单任务评测请求
type RunRequest struct {
	Task     *types.AtomicTask
	RunnerID string
	Config   map[string]any
	// ScorerIDs 为空时使用全部已注册评分单元
	ScorerIDs []string
	// Overrides 浅合并到 Config 之上，并单独记录在溯源信息中
	Overrides map[string]any
}

// ScenarioRequest 场景评测请求
type ScenarioRequest struct {
	Scenario    *types.Scenario
	StepConfigs map[string]map[string]any
	ScorerIDs   []string
	// Overrides 浅合并到每个步骤的配置之上
	Overrides map[string]any
}

// Result 管线产出
type Result struct {
	Run    *types.RunRecord    `json:"run"`
	Scores []types.ScoreRecord `json:"scores"`
}

// Engine 评测引擎。构造完成后只读，可并发调用。
type Engine struct {
	runners   *registry.RunnerRegistry
	scorers   *registry.ScorerRegistry
	reporters *registry.ReporterRegistry
	scenarios *scenario.Executor
	store     store.Store
	metrics   Recorder
	ins       *instruments
	logger    *zap.Logger
}

// NewEngine 创建引擎
func NewEngine(opts Options) (*Engine, error) {
	if opts.Runners == nil {
		return nil, types.NewError(types.ErrInvalidInput, "engine requires a runner registry")
	}
	if opts.Scorers == nil {
		opts.Scorers = registry.NewScorerRegistry()
	}
	if opts.Reporters == nil {
		opts.Reporters = registry.NewReporterRegistry()
	}
	if opts.Metrics == nil {
		opts.Metrics = noopRecorder{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	ins, err := newInstruments(opts.TracerProvider, opts.MeterProvider)
	if err != nil {
		return nil, fmt.Errorf("create engine instruments: %w", err)
	}

	return &Engine{
		runners:   opts.Runners,
		scorers:   opts.Scorers,
		reporters: opts.Reporters,
		scenarios: scenario.NewExecutor(opts.Runners, opts.Logger),
		store:     opts.Store,
		metrics:   opts.Metrics,
		ins:       ins,
		logger:    opts.Logger.With(zap.String("component", "engine")),
	}, nil
}

// Run 执行单个任务的完整管线
func (e *Engine) Run(ctx context.Context, req RunRequest) (_ *Result, err error) {
	if req.Task == nil {
		return nil, types.NewError(types.ErrInvalidInput, "run request requires a task")
	}

	ctx, span := e.ins.startStage(ctx, "run",
		attribute.String("task.id", req.Task.ID),
		attribute.String("task.type", string(req.Task.Type)),
		attribute.String("runner.id", req.RunnerID))
	defer func() { endSpan(span, err) }()

	runner, ok := e.runners.Get(req.RunnerID)
	if !ok {
		return nil, types.Errorf(types.ErrRunnerNotFound, "runner %q not found", req.RunnerID)
	}
	if runner.Type() != req.Task.Type {
		return nil, types.Errorf(types.ErrTypeMismatch,
			"runner %q handles %q tasks, got %q", runner.ID(), runner.Type(), req.Task.Type)
	}
	scorers, err := e.resolveScorers(req.ScorerIDs)
	if err != nil {
		return nil, err
	}

	config := mergeConfig(req.Config, req.Overrides)
	started := time.Now()
	run := e.execute(ctx, runner, req.Task, config)

	snapshot := provenance.Snapshot(req.Task, runner.ID(), config)
	res, err := e.finish(ctx, run, req.Task, snapshot, req.Overrides, scorers)
	if err != nil {
		return nil, err
	}
	e.recordRun(ctx, runner.ID(), run, time.Since(started))
	return res, nil
}

// RunBatch 顺序执行一组请求。单个请求失败只记录日志并跳过，返回成功的结果。
// 只有 ctx 被取消时才返回错误，此时同时返回已完成的结果。
func (e *Engine) RunBatch(ctx context.Context, reqs []RunRequest) ([]*Result, error) {
	results := make([]*Result, 0, len(reqs))
	for i, req := range reqs {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		res, err := e.Run(ctx, req)
		if err != nil {
			taskID := ""
			if req.Task != nil {
				taskID = req.Task.ID
			}
			e.logger.Warn("batch item failed, skipping",
				zap.Int("index", i),
				zap.String("task_id", taskID),
				zap.String("runner_id", req.RunnerID),
				zap.Error(err))
			continue
		}
		results = append(results, res)
	}
	return results, nil
}

// RunScenario 执行多步场景，随后走与 Run 相同的管线尾部
func (e *Engine) RunScenario(ctx context.Context, req ScenarioRequest) (_ *Result, err error) {
	if req.Scenario == nil {
		return nil, types.NewError(types.ErrInvalidInput, "scenario request requires a scenario")
	}

	ctx, span := e.ins.startStage(ctx, "scenario",
		attribute.String("scenario.id", req.Scenario.ID),
		attribute.Int("scenario.steps", len(req.Scenario.Steps)))
	defer func() { endSpan(span, err) }()

	scorers, err := e.resolveScorers(req.ScorerIDs)
	if err != nil {
		return nil, err
	}

	merged := mergeStepConfigs(req.Scenario, req.StepConfigs, req.Overrides)
	started := time.Now()
	run := e.scenarios.Execute(ctx, req.Scenario, merged)

	stepConfigs := make(map[string]any, len(merged))
	for id, cfg := range merged {
		stepConfigs[id] = cfg
	}
	snapshot := provenance.Snapshot(req.Scenario, scenario.RunnerID, stepConfigs)

	task := &types.AtomicTask{
		ID:    req.Scenario.ID,
		Type:  types.CapabilityScenario,
		Input: req.Scenario.Input,
	}
	res, err := e.finish(ctx, run, task, snapshot, req.Overrides, scorers)
	if err != nil {
		return nil, err
	}
	e.recordRun(ctx, scenario.RunnerID, run, time.Since(started))
	return res, nil
}

func (e *Engine) resolveScorers(ids []string) ([]registry.Scorer, error) {
	if len(ids) == 0 {
		return e.scorers.All(), nil
	}
	return e.scorers.Resolve(ids)
}

// execute 调用执行单元。返回 error、空记录或 panic 都转换为失败记录。
func (e *Engine) execute(ctx context.Context, runner registry.Runner, task *types.AtomicTask, config map[string]any) (run *types.RunRecord) {
	ctx, span := e.ins.startStage(ctx, "execute", attribute.String("runner.id", runner.ID()))
	defer func() {
		if run.Status == types.RunFailed && run.Error != nil {
			span.SetAttributes(attribute.String("run.error", run.Error.Message))
		}
		span.SetAttributes(attribute.String("run.status", string(run.Status)))
		span.End()
	}()

	failed := func(message, stack string) *types.RunRecord {
		rec := types.NewRunRecord(task, runner.ID(), runner.Version(), config)
		tracer := types.NewTracer("")
		tracer.Error("runner_error", map[string]any{"runner_id": runner.ID(), "error": message})
		rec.Trace = tracer.Events()
		rec.Fail(message, "", stack)
		return rec
	}

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("runner panicked",
				zap.String("runner_id", runner.ID()),
				zap.String("task_id", task.ID),
				zap.Any("panic", r))
			run = failed(fmt.Sprintf("runner panicked: %v", r), string(debug.Stack()))
		}
	}()

	ctx = types.WithTaskID(ctx, task.ID)
	if sc := span.SpanContext(); sc.HasTraceID() {
		ctx = types.WithTraceID(ctx, sc.TraceID().String())
	}
	rec, err := runner.Execute(ctx, task.Clone(), types.CloneMap(config))
	switch {
	case err != nil:
		e.logger.Warn("runner returned error",
			zap.String("runner_id", runner.ID()),
			zap.String("task_id", task.ID),
			zap.Error(err))
		return failed(err.Error(), "")
	case rec == nil:
		return failed(fmt.Sprintf("runner %q returned no record", runner.ID()), "")
	}

	if rec.ID == "" {
		rec.ID = types.NewRunID()
	}
	if rec.Trace == nil {
		rec.Trace = []types.TraceEvent{}
	}
	if rec.Provenance.RunnerID == "" {
		rec.Provenance.RunnerID = runner.ID()
		rec.Provenance.RunnerVersion = runner.Version()
	}
	if rec.Provenance.Config == nil {
		rec.Provenance.Config = types.CloneMap(config)
	}
	if !rec.Status.IsTerminal() {
		rec.Fail(fmt.Sprintf("runner %q returned non-terminal status %q", runner.ID(), rec.Status), "", "")
	}
	rec.EnsureFailureTrace(runner.ID())
	return rec
}

// finish 管线尾部：溯源戳 -> 报告 -> 评分 -> 存储
func (e *Engine) finish(ctx context.Context, run *types.RunRecord, task *types.AtomicTask, snapshot, overrides map[string]any, scorers []registry.Scorer) (*Result, error) {
	stamp, err := provenance.ComputeStamp(snapshot)
	if err != nil {
		return nil, types.NewError(types.ErrInternalError, "compute provenance stamp").WithCause(err)
	}
	stamp.Apply(run, overrides)

	run.Reports = append(run.Reports, e.report(ctx, run)...)
	scores := e.evaluate(ctx, run, task, scorers)

	if err := e.persist(ctx, run, scores); err != nil {
		return nil, err
	}

	e.logger.Info("run finished",
		zap.String("run_id", run.ID),
		zap.String("task_id", run.TaskID),
		zap.String("status", string(run.Status)),
		zap.String("config_hash", run.Provenance.ConfigHash),
		zap.Int("reports", len(run.Reports)),
		zap.Int("scores", len(scores)))

	return &Result{Run: run, Scores: scores}, nil
}

// report 运行全部报告单元；失败只记录日志
func (e *Engine) report(ctx context.Context, run *types.RunRecord) []types.ReportRecord {
	ctx, span := e.ins.startStage(ctx, "report")
	defer span.End()

	rc := registry.NewReportContext(run)
	var out []types.ReportRecord
	for _, rep := range e.reporters.All() {
		reports, err := safeCall(func() ([]types.ReportRecord, error) {
			return rep.Run(ctx, run.ID, rc)
		})
		if err != nil {
			e.pluginFailed(ctx, "reporter", rep.ID(), run.ID, err)
			continue
		}
		for i := range reports {
			if reports[i].RunID == "" {
				reports[i].RunID = run.ID
			}
			if reports[i].ID == "" {
				reports[i].ID = "rpt_" + uuid.NewString()
			}
		}
		out = append(out, reports...)
	}
	span.SetAttributes(attribute.Int("reports", len(out)))
	return out
}

// evaluate 运行评分单元；失败只记录日志，贡献零条评分
func (e *Engine) evaluate(ctx context.Context, run *types.RunRecord, task *types.AtomicTask, scorers []registry.Scorer) []types.ScoreRecord {
	ctx, span := e.ins.startStage(ctx, "evaluate")
	defer span.End()

	out := make([]types.ScoreRecord, 0)
	for _, s := range scorers {
		scores, err := safeCall(func() ([]types.ScoreRecord, error) {
			return s.Evaluate(ctx, run, task, run.Reports)
		})
		if err != nil {
			e.pluginFailed(ctx, "scorer", s.ID(), run.ID, err)
			continue
		}
		for _, sc := range scores {
			if sc.ID == "" {
				sc.ID = "score_" + uuid.NewString()
			}
			if sc.RunID == "" {
				sc.RunID = run.ID
			}
			if sc.ScorerID == "" {
				sc.ScorerID = s.ID()
			}
			if sc.Target == "" {
				sc.Target = types.TargetFinal
			}
			e.metrics.RecordScore(sc.ScorerID, sc.Metric)
			e.ins.recordScore(ctx, sc.ScorerID)
			out = append(out, sc)
		}
	}
	span.SetAttributes(attribute.Int("scores", len(out)))
	return out
}

func (e *Engine) persist(ctx context.Context, run *types.RunRecord, scores []types.ScoreRecord) (err error) {
	if e.store == nil {
		return nil
	}
	ctx, span := e.ins.startStage(ctx, "store")
	defer func() { endSpan(span, err) }()

	if err := e.store.SaveRun(ctx, run); err != nil {
		return fmt.Errorf("save run %s: %w", run.ID, err)
	}
	if err := e.store.SaveScores(ctx, run.ID, scores); err != nil {
		return fmt.Errorf("save scores for run %s: %w", run.ID, err)
	}
	return nil
}

func (e *Engine) pluginFailed(ctx context.Context, kind, id, runID string, err error) {
	e.logger.Warn(kind+" failed",
		zap.String(kind+"_id", id),
		zap.String("run_id", runID),
		zap.Error(err))
	e.metrics.RecordPluginFailure(kind, id)
	e.ins.recordFailure(ctx, kind, id)
}

func (e *Engine) recordRun(ctx context.Context, runnerID string, run *types.RunRecord, d time.Duration) {
	e.metrics.RecordRun(runnerID, string(run.TaskType), string(run.Status), d, run.Metrics.TokensUsed, run.Metrics.Cost)
	e.ins.recordRun(ctx, runnerID, string(run.Status), d)
}

// safeCall 把插件 panic 转为 error
func safeCall[T any](fn func() (T, error)) (out T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}

// mergeStepConfigs 把 overrides 合并进场景每个步骤的配置；无 overrides 时原样返回
func mergeStepConfigs(sc *types.Scenario, stepConfigs map[string]map[string]any, overrides map[string]any) map[string]map[string]any {
	if len(overrides) == 0 {
		return stepConfigs
	}
	out := make(map[string]map[string]any, len(sc.Steps))
	for id, cfg := range stepConfigs {
		out[id] = types.CloneMap(cfg)
	}
	for _, step := range sc.Steps {
		out[step.ID] = mergeConfig(stepConfigs[step.ID], overrides)
	}
	return out
}

// mergeConfig 返回 config 的深拷贝，overrides 按顶层键覆盖
func mergeConfig(config, overrides map[string]any) map[string]any {
	out := types.CloneMap(config)
	if out == nil {
		out = make(map[string]any, len(overrides))
	}
	for k, v := range overrides {
		out[k] = types.CloneValue(v)
	}
	return out
}
