package scoring

import (
	"context"
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/BaSui01/evalflow/types"
)

// ExprScorerID 断言评分单元 ID
const ExprScorerID = "assertion"

// Assertion 一条具名布尔断言，例如
//
//	{Name: "intent_ok", Expr: `output.intent == expected.intent`}
type Assertion struct {
	Name string `json:"name" yaml:"name"`
	Expr string `json:"expr" yaml:"expr"`
}

type compiledAssertion struct {
	Assertion
	program *vm.Program
}

// ExprScorer 对每条断言产出一个布尔分数，指标名即断言名。
// 表达式可见的变量：output、expected、metrics（latency_ms/tokens_used/cost）、
// task（id/type/metadata）、status。
type ExprScorer struct {
	assertions []compiledAssertion
}

// NewExprScorer 编译所有断言；任一断言无法编译时返回 INVALID_INPUT
func NewExprScorer(assertions ...Assertion) (*ExprScorer, error) {
	s := &ExprScorer{assertions: make([]compiledAssertion, 0, len(assertions))}
	seen := make(map[string]bool, len(assertions))
	for _, a := range assertions {
		a.Name = strings.TrimSpace(a.Name)
		if a.Name == "" {
			return nil, types.NewError(types.ErrInvalidInput, "assertion name must not be empty")
		}
		if seen[a.Name] {
			return nil, types.Errorf(types.ErrInvalidInput, "duplicate assertion %q", a.Name)
		}
		seen[a.Name] = true

		program, err := expr.Compile(a.Expr, expr.Env(assertionEnv(nil, nil)))
		if err != nil {
			return nil, types.Errorf(types.ErrInvalidInput, "compile assertion %q", a.Name).WithCause(err)
		}
		s.assertions = append(s.assertions, compiledAssertion{Assertion: a, program: program})
	}
	return s, nil
}

func (s *ExprScorer) ID() string { return ExprScorerID }

func (s *ExprScorer) Metrics() []string {
	names := make([]string, len(s.assertions))
	for i, a := range s.assertions {
		names[i] = a.Name
	}
	return names
}

// Evaluate 求值失败或结果不是布尔值时该断言记为 false，原因写入 evidence
func (s *ExprScorer) Evaluate(_ context.Context, run *types.RunRecord, task *types.AtomicTask, _ []types.ReportRecord) ([]types.ScoreRecord, error) {
	if run == nil || len(s.assertions) == 0 {
		return nil, nil
	}
	env := assertionEnv(run, task)

	scores := make([]types.ScoreRecord, 0, len(s.assertions))
	for _, a := range s.assertions {
		passed, explanation := runAssertion(a, env)
		rec := types.NewScoreRecord(run.ID, ExprScorerID, a.Name, types.BoolValue(passed), types.TargetFinal)
		rec.Evidence = &types.Evidence{Explanation: explanation, Snippets: []string{a.Expr}}
		scores = append(scores, rec)
	}
	return scores, nil
}

func runAssertion(a compiledAssertion, env map[string]any) (bool, string) {
	out, err := expr.Run(a.program, env)
	if err != nil {
		return false, fmt.Sprintf("evaluation error: %v", err)
	}
	b, ok := out.(bool)
	if !ok {
		return false, fmt.Sprintf("assertion must evaluate to bool (got %T)", out)
	}
	if b {
		return true, "assertion passed"
	}
	return false, "assertion failed"
}

// assertionEnv 构造表达式环境；run/task 为 nil 时给出同形的空环境供编译使用
func assertionEnv(run *types.RunRecord, task *types.AtomicTask) map[string]any {
	env := map[string]any{
		"output":   map[string]any{},
		"expected": map[string]any{},
		"metrics":  map[string]any{"latency_ms": 0.0, "tokens_used": 0.0, "cost": 0.0},
		"task":     map[string]any{},
		"status":   "",
	}
	if run != nil {
		if run.Output != nil {
			env["output"] = run.Output
		}
		env["metrics"] = map[string]any{
			"latency_ms":  float64(run.Metrics.LatencyMs),
			"tokens_used": float64(run.Metrics.TokensUsed),
			"cost":        run.Metrics.Cost,
		}
		env["status"] = string(run.Status)
	}
	if task != nil {
		if task.Expected != nil {
			env["expected"] = task.Expected
		}
		env["task"] = map[string]any{
			"id":   task.ID,
			"type": string(task.Type),
			"tags": task.Metadata.Tags,
		}
	}
	return env
}
