package rag

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/BaSui01/evalflow/types"
)

// Metric names
const (
	MetricCitationPrecision  = "citation_precision"
	MetricHallucinationRate  = "hallucination_rate"
	MetricRetrievalPrecision = "retrieval_precision"
	MetricRetrievalRecall    = "retrieval_recall"
	MetricMRR                = "mrr"
	MetricNDCG               = "ndcg"
)

// CitationScorer 把 rag.evidence 报告归约为 citation_precision 与 hallucination_rate。
// 没有报告时直接从运行产物计算；既无报告也无生成产物时不打分。
type CitationScorer struct {
	logger *zap.Logger
}

// NewCitationScorer 创建引用评分单元
func NewCitationScorer(logger *zap.Logger) *CitationScorer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CitationScorer{logger: logger.With(zap.String("component", "citation_scorer"))}
}

func (s *CitationScorer) ID() string { return "rag_citation" }

func (s *CitationScorer) Metrics() []string {
	return []string{MetricCitationPrecision, MetricHallucinationRate}
}

func (s *CitationScorer) Evaluate(ctx context.Context, run *types.RunRecord, _ *types.AtomicTask, reports []types.ReportRecord) ([]types.ScoreRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if run == nil {
		return nil, nil
	}

	var (
		report EvidenceReport
		refs   []string
		found  bool
	)
	for i := len(reports) - 1; i >= 0; i-- {
		r := reports[i]
		if r.Type != types.SchemaRAGEvidence || (r.RunID != "" && r.RunID != run.ID) {
			continue
		}
		if err := r.DecodePayload(&report); err != nil {
			return nil, types.NewError(types.ErrParseFailure, "decode rag.evidence report").WithCause(err)
		}
		refs = []string{r.ID}
		found = true
		break
	}
	if !found {
		var err error
		report, _, found, err = runEvidence(run.Artifacts)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, nil
		}
		s.logger.Debug("no evidence report, computed from artifacts", zap.String("run_id", run.ID))
	}

	precision, hallucination := report.CitationMetrics()
	alignment := map[string]any{
		"total_citations": report.TotalCitations,
		"supported":       len(report.Supported),
		"unsupported":     len(report.Unsupported),
		"unlinked":        len(report.Unlinked),
	}
	explain := fmt.Sprintf("%d of %d citations point at retrieved chunks", len(report.Supported), report.TotalCitations)
	if report.TotalCitations == 0 {
		explain = "no citations to assess"
	}

	records := make([]types.ScoreRecord, 0, 2)
	for _, m := range []struct {
		name  string
		value float64
	}{
		{MetricCitationPrecision, precision},
		{MetricHallucinationRate, hallucination},
	} {
		rec := types.NewScoreRecord(run.ID, s.ID(), m.name, types.NumberValue(m.value), types.TargetFinal)
		rec.Evidence = &types.Evidence{
			Explanation: explain,
			Alignment:   alignment,
			ReportRefs:  refs,
		}
		records = append(records, rec)
	}
	return records, nil
}

// RetrievalScorer 以 expected.relevant_chunks 为标准计算检索指标。
// 期望 ID 可以是块 ID，也可以是文档 ID（匹配该文档的任意块）。
type RetrievalScorer struct {
	logger *zap.Logger
}

// NewRetrievalScorer 创建检索评分单元
func NewRetrievalScorer(logger *zap.Logger) *RetrievalScorer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RetrievalScorer{logger: logger.With(zap.String("component", "retrieval_scorer"))}
}

func (s *RetrievalScorer) ID() string { return "rag_retrieval" }

func (s *RetrievalScorer) Metrics() []string {
	return []string{MetricRetrievalPrecision, MetricRetrievalRecall, MetricMRR, MetricNDCG}
}

func (s *RetrievalScorer) Evaluate(ctx context.Context, run *types.RunRecord, task *types.AtomicTask, _ []types.ReportRecord) ([]types.ScoreRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if run == nil || task == nil {
		return nil, nil
	}
	expected, ok := relevantChunks(task.Expected)
	if !ok {
		return nil, nil
	}
	art, found := run.LatestArtifact(types.SchemaRAGReranked, types.SchemaRAGRetrieved)
	if !found {
		return nil, nil
	}
	var retrieved []RetrievedChunk
	if err := art.DecodePayload(&retrieved); err != nil {
		return nil, types.Errorf(types.ErrParseFailure, "decode %s", art.Schema).WithCause(err)
	}

	m := ComputeRetrievalMetrics(retrieved, expected)
	records := make([]types.ScoreRecord, 0, 4)
	for _, v := range []struct {
		name  string
		value float64
	}{
		{MetricRetrievalPrecision, m.Precision},
		{MetricRetrievalRecall, m.Recall},
		{MetricMRR, m.MRR},
		{MetricNDCG, m.NDCG},
	} {
		rec := types.NewScoreRecord(run.ID, s.ID(), v.name, types.NumberValue(v.value), types.TargetFinal)
		rec.Evidence = &types.Evidence{
			Snippets: ChunkIDs(retrieved),
			Alignment: map[string]any{
				"source":   art.Schema,
				"expected": expected,
			},
		}
		records = append(records, rec)
	}
	return records, nil
}

func relevantChunks(expected map[string]any) ([]string, bool) {
	raw, ok := expected["relevant_chunks"]
	if !ok {
		return nil, false
	}
	var ids []string
	if err := types.DecodeInto(raw, &ids); err != nil {
		return nil, false
	}
	return ids, true
}

// RetrievalMetrics 检索质量指标
type RetrievalMetrics struct {
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	MRR       float64 `json:"mrr"`
	NDCG      float64 `json:"ndcg"`
}

// ComputeRetrievalMetrics 二元相关性下的 precision / recall / MRR / NDCG。
// 期望 ID 可以是分块 ID 或文档 ID；每个期望 ID 最多贡献一次命中。
func ComputeRetrievalMetrics(retrieved []RetrievedChunk, expected []string) RetrievalMetrics {
	var m RetrievalMetrics
	if len(retrieved) == 0 || len(expected) == 0 {
		return m
	}
	want := make(map[string]bool, len(expected))
	for _, id := range expected {
		want[id] = true
	}

	relevant := 0
	hitExpected := make(map[string]bool)
	dcg := 0.0
	for idx, r := range retrieved {
		var match string
		switch {
		case want[r.ChunkID]:
			match = r.ChunkID
		case r.DocID != "" && want[r.DocID]:
			match = r.DocID
		default:
			continue
		}
		// 同一期望 ID 只在首次命中时计分，同文档的后续分块视为冗余
		if hitExpected[match] {
			continue
		}
		relevant++
		hitExpected[match] = true
		if m.MRR == 0 {
			m.MRR = 1.0 / float64(idx+1)
		}
		dcg += 1.0 / math.Log2(float64(idx+2))
	}

	m.Precision = float64(relevant) / float64(len(retrieved))
	m.Recall = clamp01(float64(len(hitExpected)) / float64(len(want)))
	if idcg := idealDCG(len(want), len(retrieved)); idcg > 0 {
		m.NDCG = clamp01(dcg / idcg)
	}
	return m
}

func idealDCG(expectedCount, retrievedCount int) float64 {
	n := min(expectedCount, retrievedCount)
	idcg := 0.0
	for i := 0; i < n; i++ {
		idcg += 1.0 / math.Log2(float64(i+2))
	}
	return idcg
}
