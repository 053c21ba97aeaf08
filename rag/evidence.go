package rag

import (
	"context"

	"go.uber.org/zap"

	"github.com/BaSui01/evalflow/registry"
	"github.com/BaSui01/evalflow/types"
)

// ReasonMissingChunk 引用的块不在检索结果中
const ReasonMissingChunk = "missing_chunk"

// EvidenceLink 单条引用的归类结果
type EvidenceLink struct {
	SentenceID string `json:"sentence_id"`
	ChunkID    string `json:"chunk_id"`
	Reason     string `json:"reason,omitempty"`
}

// UnlinkedSentence 没有任何引用的句子
type UnlinkedSentence struct {
	SentenceID string `json:"sentence_id"`
	Text       string `json:"text"`
}

// EvidenceReport rag.evidence 报告负载
type EvidenceReport struct {
	Source                 string             `json:"source"` // 使用的检索产物 schema
	TotalSentences         int                `json:"total_sentences"`
	SentencesWithCitations int                `json:"sentences_with_citations"`
	TotalCitations         int                `json:"total_citations"`
	Supported              []EvidenceLink     `json:"supported"`
	Unsupported            []EvidenceLink     `json:"unsupported"`
	Unlinked               []UnlinkedSentence `json:"unlinked"`
}

// CitationAlignment rag.citations 报告中的一条对齐记录
type CitationAlignment struct {
	SentenceID string `json:"sentence_id"`
	ChunkID    string `json:"chunk_id"`
	Supported  bool   `json:"supported"`
}

// CitationsReport rag.citations 报告负载
type CitationsReport struct {
	Alignments []CitationAlignment `json:"alignments"`
}

// LinkEvidence 将生成句子的引用与检索块集合对齐
func LinkEvidence(chunkIDs []string, sentences []Sentence) EvidenceReport {
	retrieved := make(map[string]bool, len(chunkIDs))
	for _, id := range chunkIDs {
		retrieved[id] = true
	}

	report := EvidenceReport{
		TotalSentences: len(sentences),
		Supported:      []EvidenceLink{},
		Unsupported:    []EvidenceLink{},
		Unlinked:       []UnlinkedSentence{},
	}
	for _, s := range sentences {
		if len(s.Citations) == 0 {
			report.Unlinked = append(report.Unlinked, UnlinkedSentence{SentenceID: s.SentenceID, Text: s.Text})
			continue
		}
		report.SentencesWithCitations++
		for _, c := range s.Citations {
			report.TotalCitations++
			link := EvidenceLink{SentenceID: s.SentenceID, ChunkID: c.ChunkID}
			if retrieved[c.ChunkID] {
				report.Supported = append(report.Supported, link)
			} else {
				link.Reason = ReasonMissingChunk
				report.Unsupported = append(report.Unsupported, link)
			}
		}
	}
	return report
}

// Alignments 把报告展平为逐条引用的对齐列表（按句子顺序）
func (r EvidenceReport) Alignments(sentences []Sentence) []CitationAlignment {
	supported := make(map[[2]string]bool, len(r.Supported))
	for _, l := range r.Supported {
		supported[[2]string{l.SentenceID, l.ChunkID}] = true
	}
	out := []CitationAlignment{}
	for _, s := range sentences {
		for _, c := range s.Citations {
			out = append(out, CitationAlignment{
				SentenceID: s.SentenceID,
				ChunkID:    c.ChunkID,
				Supported:  supported[[2]string{s.SentenceID, c.ChunkID}],
			})
		}
	}
	return out
}

// CitationMetrics 返回 citation precision 与 hallucination rate，均截断到 [0,1]。
// 没有可评估的引用时返回中性值 (1, 0)。
func (r EvidenceReport) CitationMetrics() (precision, hallucination float64) {
	if r.TotalCitations == 0 {
		return 1, 0
	}
	total := float64(r.TotalCitations)
	return clamp01(float64(len(r.Supported)) / total), clamp01(float64(len(r.Unsupported)) / total)
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// runEvidence 从产物中取出生成结果与对应的检索块。
// 优先 rag.reranked，其次 rag.retrieved，且与生成结果来自同一步骤。
func runEvidence(artifacts []types.ArtifactRecord) (report EvidenceReport, gen Generation, ok bool, err error) {
	genArt, found := types.FindLatestArtifact(artifacts, nil, types.SchemaRAGGenerated)
	if !found {
		return EvidenceReport{}, Generation{}, false, nil
	}
	if err := genArt.DecodePayload(&gen); err != nil {
		return EvidenceReport{}, Generation{}, false, types.NewError(types.ErrParseFailure, "decode rag.generated").WithCause(err)
	}

	var chunks []RetrievedChunk
	source := ""
	if art, found := types.FindLatestArtifact(artifacts, &genArt.Step, types.SchemaRAGReranked, types.SchemaRAGRetrieved); found {
		if err := art.DecodePayload(&chunks); err != nil {
			return EvidenceReport{}, Generation{}, false, types.Errorf(types.ErrParseFailure, "decode %s", art.Schema).WithCause(err)
		}
		source = art.Schema
	}

	report = LinkEvidence(ChunkIDs(chunks), gen.Sentences)
	report.Source = source
	return report, gen, true, nil
}

// EvidenceLinker 报告单元：产出 rag.evidence 与 rag.citations
type EvidenceLinker struct {
	logger *zap.Logger
}

// NewEvidenceLinker 创建证据链接报告单元
func NewEvidenceLinker(logger *zap.Logger) *EvidenceLinker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EvidenceLinker{logger: logger.With(zap.String("component", "evidence_linker"))}
}

func (l *EvidenceLinker) ID() string { return "rag_evidence" }

func (l *EvidenceLinker) ReportTypes() []string {
	return []string{types.SchemaRAGEvidence, types.SchemaRAGCitations}
}

// Run 没有 rag.generated 产物的运行不产出报告
func (l *EvidenceLinker) Run(ctx context.Context, runID string, rc registry.ReportContext) ([]types.ReportRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	report, gen, ok, err := runEvidence(rc.Artifacts)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	l.logger.Debug("evidence linked",
		zap.String("run_id", runID),
		zap.Int("citations", report.TotalCitations),
		zap.Int("unsupported", len(report.Unsupported)))

	return []types.ReportRecord{
		types.NewReportRecord(runID, types.SchemaRAGEvidence, report),
		types.NewReportRecord(runID, types.SchemaRAGCitations, CitationsReport{Alignments: report.Alignments(gen.Sentences)}),
	}, nil
}
