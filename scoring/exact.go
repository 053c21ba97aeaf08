package scoring

import (
	"context"
	"sort"
	"strings"

	"github.com/BaSui01/evalflow/provenance"
	"github.com/BaSui01/evalflow/types"
)

const (
	// ExactMatchScorerID 精确匹配评分单元 ID
	ExactMatchScorerID = "exact_match"

	MetricExactMatch = "exact_match"
	MetricSimilarity = "similarity"
)

// ExactMatchConfig 精确匹配选项
type ExactMatchConfig struct {
	// Fields 参与比较的字段；为空时比较 expected 中的全部键
	Fields []string
	// CaseSensitive 字符串比较是否区分大小写
	CaseSensitive bool
	// UseContains 实际输出包含期望字符串即视为匹配
	UseContains bool
}

// ExactMatchScorer 比较 task.Expected 与 run.Output 的同名字段。
// 字符串去除首尾空白后比较，不匹配时用编辑距离给出相似度；
// 其他值按规范化 JSON 比较，相似度只取 0 或 1。
type ExactMatchScorer struct {
	config ExactMatchConfig
}

// NewExactMatchScorer 创建精确匹配评分单元
func NewExactMatchScorer(config ExactMatchConfig) *ExactMatchScorer {
	return &ExactMatchScorer{config: config}
}

func (s *ExactMatchScorer) ID() string        { return ExactMatchScorerID }
func (s *ExactMatchScorer) Metrics() []string { return []string{MetricExactMatch, MetricSimilarity} }

// FieldMatch 单个字段的比较结果
type FieldMatch struct {
	Field      string  `json:"field"`
	Matched    bool    `json:"matched"`
	Similarity float64 `json:"similarity"`
}

// Evaluate 没有期望值时不产出分数
func (s *ExactMatchScorer) Evaluate(_ context.Context, run *types.RunRecord, task *types.AtomicTask, _ []types.ReportRecord) ([]types.ScoreRecord, error) {
	if run == nil || task == nil || len(task.Expected) == 0 {
		return nil, nil
	}

	fields := s.fields(task.Expected)
	if len(fields) == 0 {
		return nil, nil
	}

	matches := make([]FieldMatch, 0, len(fields))
	alignment := make(map[string]any, len(fields))
	allMatched := true
	total := 0.0
	for _, field := range fields {
		actual, present := run.Output[field]
		m := FieldMatch{Field: field}
		if present {
			m.Matched, m.Similarity = s.compare(task.Expected[field], actual)
		}
		matches = append(matches, m)
		alignment[field] = map[string]any{"matched": m.Matched, "similarity": m.Similarity}
		allMatched = allMatched && m.Matched
		total += m.Similarity
	}
	similarity := clamp01(total / float64(len(fields)))

	evidence := &types.Evidence{
		Explanation: explainMatches(matches),
		Alignment:   alignment,
	}
	exact := types.NewScoreRecord(run.ID, ExactMatchScorerID, MetricExactMatch, types.BoolValue(allMatched), types.TargetFinal)
	exact.Evidence = evidence
	sim := types.NewScoreRecord(run.ID, ExactMatchScorerID, MetricSimilarity, types.NumberValue(similarity), types.TargetFinal)
	sim.Evidence = evidence
	return []types.ScoreRecord{exact, sim}, nil
}

func (s *ExactMatchScorer) fields(expected map[string]any) []string {
	if len(s.config.Fields) > 0 {
		out := make([]string, 0, len(s.config.Fields))
		for _, f := range s.config.Fields {
			if _, ok := expected[f]; ok {
				out = append(out, f)
			}
		}
		return out
	}
	out := make([]string, 0, len(expected))
	for k := range expected {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (s *ExactMatchScorer) compare(expected, actual any) (bool, float64) {
	es, eok := expected.(string)
	as, aok := actual.(string)
	if eok && aok {
		es = normalizeText(es, s.config.CaseSensitive)
		as = normalizeText(as, s.config.CaseSensitive)
		if es == as || (s.config.UseContains && es != "" && strings.Contains(as, es)) {
			return true, 1.0
		}
		return false, StringSimilarity(es, as)
	}

	ec, err := provenance.Canonicalize(expected)
	if err != nil {
		return false, 0
	}
	ac, err := provenance.Canonicalize(actual)
	if err != nil {
		return false, 0
	}
	if ec == ac {
		return true, 1.0
	}
	return false, 0
}

func explainMatches(matches []FieldMatch) string {
	var mismatched []string
	for _, m := range matches {
		if !m.Matched {
			mismatched = append(mismatched, m.Field)
		}
	}
	if len(mismatched) == 0 {
		return "all expected fields match"
	}
	return "mismatched fields: " + strings.Join(mismatched, ", ")
}
