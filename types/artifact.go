package types

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Artifact / report schema ids. 这些字符串是线上稳定的契约，
// 消费者遇到未知 schema 必须跳过而不是失败。
const (
	SchemaRAGRetrieved = "rag.retrieved"
	SchemaRAGReranked  = "rag.reranked"
	SchemaRAGGenerated = "rag.generated"
	SchemaRAGEvidence  = "rag.evidence"
	SchemaRAGCitations = "rag.citations"
)

// ArtifactRecord 管线步骤产生的带类型中间负载
type ArtifactRecord struct {
	Schema  string `json:"schema"`
	Step    string `json:"step"`
	Payload any    `json:"payload"`
}

// DecodePayload 将负载解码为目标结构。
// 负载可能是原始 Go 结构，也可能是从存储读回的 map，统一走 JSON。
func (a ArtifactRecord) DecodePayload(dst any) error {
	return DecodeInto(a.Payload, dst)
}

// ReportRecord 报告单元产生的派生分析
type ReportRecord struct {
	ID         string    `json:"id"`
	RunID      string    `json:"run_id"`
	Type       string    `json:"type"`
	Payload    any       `json:"payload"`
	ProducedAt time.Time `json:"produced_at"`
}

// NewReportRecord 创建报告记录
func NewReportRecord(runID, reportType string, payload any) ReportRecord {
	return ReportRecord{
		ID:         "rpt_" + uuid.NewString(),
		RunID:      runID,
		Type:       reportType,
		Payload:    payload,
		ProducedAt: time.Now(),
	}
}

// DecodePayload 将报告负载解码为目标结构
func (r ReportRecord) DecodePayload(dst any) error {
	return DecodeInto(r.Payload, dst)
}

// DecodeInto 通过 JSON 往返把任意值解码进 dst
func DecodeInto(src, dst any) error {
	data, err := json.Marshal(src)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dst)
}

// ToMap 把结构体转为 map[string]any（JSON 形态）
func ToMap(v any) (map[string]any, error) {
	if m, ok := v.(map[string]any); ok {
		return m, nil
	}
	out := map[string]any{}
	if err := DecodeInto(v, &out); err != nil {
		return nil, err
	}
	return out, nil
}
