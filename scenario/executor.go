package scenario

import (
	"context"
	"fmt"
	"runtime/debug"

	"go.uber.org/zap"

	"github.com/BaSui01/evalflow/registry"
	"github.com/BaSui01/evalflow/types"
)

const (
	// RunnerID 场景记录在溯源信息中使用的执行单元 ID
	RunnerID = "scenario"
	// Version 场景执行器版本
	Version = "1.0.0"

	configRunnerKey = "runner_id"
)

// Executor 顺序执行场景步骤
type Executor struct {
	runners *registry.RunnerRegistry
	logger  *zap.Logger
}

// NewExecutor 创建场景执行器
func NewExecutor(runners *registry.RunnerRegistry, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		runners: runners,
		logger:  logger.With(zap.String("component", "scenario_executor")),
	}
}

// Execute 执行场景。stepConfigs 以步骤 ID 为键，每项必须包含 runner_id。
func (e *Executor) Execute(ctx context.Context, sc *types.Scenario, stepConfigs map[string]map[string]any) (rec *types.RunRecord) {
	if sc == nil {
		sc = &types.Scenario{}
	}

	rawConfig := make(map[string]any, len(stepConfigs))
	for id, cfg := range stepConfigs {
		rawConfig[id] = types.CloneMap(cfg)
	}
	rec = types.NewRunRecord(&types.AtomicTask{ID: sc.ID, Type: types.CapabilityScenario}, RunnerID, Version, rawConfig)
	tracer := types.NewTracer("")

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("scenario panicked",
				zap.String("scenario_id", sc.ID),
				zap.Any("panic", r),
			)
			tracer.Error("scenario_panic", map[string]any{"panic": fmt.Sprint(r)})
			rec.Trace = tracer.Events()
			rec.Fail(fmt.Sprintf("scenario panicked: %v", r), "", string(debug.Stack()))
		}
	}()

	tracer.Info("scenario_started", map[string]any{"scenario_id": sc.ID, "steps": len(sc.Steps)})

	// 每个步骤占一个位置，未执行的保持空状态
	if len(sc.Steps) > 0 {
		rec.Steps = make([]types.StepResult, len(sc.Steps))
		for i := range sc.Steps {
			rec.Steps[i].ID = sc.Steps[i].ID
		}
	}

	fail := func(message, step, stack string) *types.RunRecord {
		tracer.Error("scenario_failed", map[string]any{"step": step, "message": message})
		rec.Trace = tracer.Events()
		rec.Fail(message, step, stack)
		e.logger.Warn("scenario failed",
			zap.String("scenario_id", sc.ID),
			zap.String("step", step),
			zap.String("message", message),
		)
		return rec
	}

	// 任何步骤执行前先校验所有步骤配置
	for _, step := range sc.Steps {
		if _, err := runnerIDFor(step.ID, stepConfigs); err != nil {
			return fail(err.Error(), step.ID, "")
		}
	}

	arena := NewArena(sc.Input)
	var lastOutput map[string]any

	for i := range sc.Steps {
		step := &sc.Steps[i]

		if err := ctx.Err(); err != nil {
			return fail(fmt.Sprintf("scenario cancelled before step %q: %v", step.ID, err), step.ID, "")
		}

		cfg := stepConfigs[step.ID]
		runnerID, _ := runnerIDFor(step.ID, stepConfigs)
		runner, ok := e.runners.Get(runnerID)
		if !ok {
			err := types.Errorf(types.ErrRunnerNotFound, "runner %q not found for step %q", runnerID, step.ID)
			return fail(err.Error(), step.ID, "")
		}

		input, err := e.bindInput(step, sc.InputMap[step.ID], arena, tracer)
		if err != nil {
			return fail(err.Error(), step.ID, "")
		}

		stepTask := step.Clone()
		stepTask.Input = input

		tracer.Info("step_started", map[string]any{"step": step.ID, "runner_id": runnerID})
		e.logger.Debug("executing scenario step",
			zap.String("scenario_id", sc.ID),
			zap.String("step", step.ID),
			zap.String("runner_id", runnerID),
		)

		result := e.executeStep(types.WithStepID(ctx, step.ID), runner, stepTask, cfg)
		tracer.Append(result.Trace, step.ID)
		rec.Metrics.Add(result.Metrics)
		for _, a := range result.Artifacts {
			if a.Step == "" {
				a.Step = step.ID
			}
			rec.Artifacts = append(rec.Artifacts, a)
		}

		rec.Steps[i] = types.StepResult{
			ID:      step.ID,
			RunID:   result.ID,
			Status:  result.Status,
			Input:   input,
			Output:  result.Output,
			Error:   result.Error,
			Metrics: result.Metrics,
		}

		if result.Status == types.RunFailed {
			message, stack := "step failed", ""
			if result.Error != nil {
				message, stack = result.Error.Message, result.Error.Stack
			}
			return fail(message, step.ID, stack)
		}

		tracer.Info("step_completed", map[string]any{"step": step.ID})
		arena.Record(step.ID, result.Output)
		lastOutput = result.Output
	}

	tracer.Info("scenario_completed", map[string]any{"scenario_id": sc.ID})
	rec.Trace = tracer.Events()
	rec.Complete(lastOutput)
	return rec
}

// executeStep 调用执行单元，把返回的 error 或空记录转为失败记录
func (e *Executor) executeStep(ctx context.Context, runner registry.Runner, task *types.AtomicTask, cfg map[string]any) *types.RunRecord {
	result, err := runner.Execute(ctx, task, cfg)
	if err != nil {
		failed := types.NewRunRecord(task, runner.ID(), runner.Version(), cfg)
		failed.Fail(err.Error(), task.ID, "")
		failed.EnsureFailureTrace(runner.ID())
		return failed
	}
	if result == nil {
		failed := types.NewRunRecord(task, runner.ID(), runner.Version(), cfg)
		failed.Fail(fmt.Sprintf("runner %q returned no record", runner.ID()), task.ID, "")
		failed.EnsureFailureTrace(runner.ID())
		return failed
	}
	result.EnsureFailureTrace(runner.ID())
	return result
}

// bindInput 在步骤输入的深拷贝上应用绑定
func (e *Executor) bindInput(step *types.AtomicTask, bindings []types.Binding, arena *Arena, tracer *types.Tracer) (map[string]any, error) {
	input := types.CloneMap(step.Input)
	if input == nil {
		input = make(map[string]any)
	}

	for _, b := range bindings {
		src, err := ParseSource(b.From)
		if err != nil {
			return nil, fmt.Errorf("step %q: %w", step.ID, err)
		}

		value, ok := arena.Resolve(src)
		if !ok {
			// 前向/自引用或路径不存在时写入 nil，不中断场景
			reason := "path_missing"
			if src.Kind == SourceStep && !arena.Has(src.Step) {
				reason = "step_not_executed"
			}
			tracer.Warn("binding_unresolved", map[string]any{
				"step":   step.ID,
				"from":   b.From,
				"to":     b.To,
				"reason": reason,
			})
		}

		if err := SetPath(input, b.To, types.CloneValue(value)); err != nil {
			return nil, fmt.Errorf("step %q: %w", step.ID, err)
		}
	}
	return input, nil
}

func runnerIDFor(stepID string, stepConfigs map[string]map[string]any) (string, error) {
	cfg, ok := stepConfigs[stepID]
	if !ok || cfg == nil {
		return "", types.Errorf(types.ErrStepConfigMissing, "missing config for step %q", stepID)
	}
	id, _ := cfg[configRunnerKey].(string)
	if id == "" {
		return "", types.Errorf(types.ErrStepConfigMissing, "config for step %q has no %s", stepID, configRunnerKey)
	}
	return id, nil
}
