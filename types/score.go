package types

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Score targets
const (
	TargetFinal  = "final"
	TargetGlobal = "global"
)

// StepTarget 返回 "step:<id>" 形式的目标
func StepTarget(stepID string) string {
	return "step:" + stepID
}

// IsStepTarget 判断是否为步骤目标，并返回步骤 ID
func IsStepTarget(target string) (string, bool) {
	if !strings.HasPrefix(target, "step:") {
		return "", false
	}
	return strings.TrimPrefix(target, "step:"), true
}

// ScoreValue 评分值：数值、布尔或字符串之一。JSON 编码为裸值。
type ScoreValue struct {
	v any
}

// NumberValue 创建数值评分
func NumberValue(f float64) ScoreValue { return ScoreValue{v: f} }

// BoolValue 创建布尔评分
func BoolValue(b bool) ScoreValue { return ScoreValue{v: b} }

// StringValue 创建字符串评分
func StringValue(s string) ScoreValue { return ScoreValue{v: s} }

// Any 返回底层值
func (s ScoreValue) Any() any { return s.v }

// Float 返回数值表示；布尔按 1/0 处理，字符串不可转换
func (s ScoreValue) Float() (float64, bool) {
	switch v := s.v.(type) {
	case float64:
		return v, true
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

func (s ScoreValue) String() string {
	return fmt.Sprint(s.v)
}

// MarshalJSON 编码为裸值
func (s ScoreValue) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.v)
}

// UnmarshalJSON 仅接受数值、布尔、字符串
func (s *ScoreValue) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch raw.(type) {
	case float64, bool, string, nil:
		s.v = raw
		return nil
	default:
		return fmt.Errorf("score value must be number, boolean or string, got %T", raw)
	}
}

// Evidence 评分依据
type Evidence struct {
	Explanation string         `json:"explanation,omitempty"`
	Snippets    []string       `json:"snippets,omitempty"`
	Alignment   map[string]any `json:"alignment,omitempty"`
	ReportRefs  []string       `json:"report_refs,omitempty"`
}

// ScoreRecord 评分记录，只能由评分单元创建，创建后不再修改
type ScoreRecord struct {
	ID       string     `json:"id"`
	RunID    string     `json:"run_id"`
	Metric   string     `json:"metric"`
	Value    ScoreValue `json:"value"`
	Target   string     `json:"target"`
	Evidence *Evidence  `json:"evidence,omitempty"`
	ScorerID string     `json:"scorer_id"`
}

// NewScoreRecord 创建评分记录
func NewScoreRecord(runID, scorerID, metric string, value ScoreValue, target string) ScoreRecord {
	if target == "" {
		target = TargetFinal
	}
	return ScoreRecord{
		ID:       "score_" + uuid.NewString(),
		RunID:    runID,
		Metric:   metric,
		Value:    value,
		Target:   target,
		ScorerID: scorerID,
	}
}
