package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/BaSui01/evalflow/types"
)

// Store 运行记录存储
type Store interface {
	// SaveRun 按 ID 插入或覆盖
	SaveRun(ctx context.Context, run *types.RunRecord) error
	// GetRun 不存在时返回 nil, nil
	GetRun(ctx context.Context, runID string) (*types.RunRecord, error)
	// ListRuns 按开始时间倒序
	ListRuns(ctx context.Context, filter Filter) ([]*types.RunRecord, error)
	// SaveScores 替换该运行已有的全部评分
	SaveScores(ctx context.Context, runID string, scores []types.ScoreRecord) error
	GetScores(ctx context.Context, runID string) ([]types.ScoreRecord, error)
	// DeleteRun 级联删除评分
	DeleteRun(ctx context.Context, runID string) error
	Close() error
}

// Filter ListRuns 的过滤条件，零值字段不参与过滤；Limit 为 0 表示不限制
type Filter struct {
	TaskID   string               `json:"task_id,omitempty"`
	TaskType types.CapabilityType `json:"task_type,omitempty"`
	Status   types.RunStatus      `json:"status,omitempty"`
	Limit    int                  `json:"limit,omitempty"`
	Offset   int                  `json:"offset,omitempty"`
}

// Validate 校验分页参数
func (f Filter) Validate() error {
	if f.Limit < 0 {
		return types.Errorf(types.ErrInvalidInput, "limit must be >= 0, got %d", f.Limit)
	}
	if f.Offset < 0 {
		return types.Errorf(types.ErrInvalidInput, "offset must be >= 0, got %d", f.Offset)
	}
	return nil
}

// Matches 判断记录是否满足过滤条件（不含分页）
func (f Filter) Matches(run *types.RunRecord) bool {
	if f.TaskID != "" && run.TaskID != f.TaskID {
		return false
	}
	if f.TaskType != "" && run.TaskType != f.TaskType {
		return false
	}
	if f.Status != "" && run.Status != f.Status {
		return false
	}
	return true
}

func validateRun(run *types.RunRecord) error {
	if run == nil {
		return types.NewError(types.ErrInvalidInput, "run record is nil")
	}
	if run.ID == "" {
		return types.NewError(types.ErrInvalidInput, "run record requires an id")
	}
	return nil
}

var errStoreClosed = types.NewError(types.ErrInternalError, "store is closed")

func runNotFound(runID string) error {
	return types.Errorf(types.ErrRunNotFound, "run %q not found", runID)
}

// =============================================================================
// 📦 编解码
// =============================================================================

func encodeRun(run *types.RunRecord) ([]byte, error) {
	data, err := json.Marshal(run)
	if err != nil {
		return nil, fmt.Errorf("encode run %s: %w", run.ID, err)
	}
	return data, nil
}

func decodeRun(data []byte) (*types.RunRecord, error) {
	var run types.RunRecord
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("decode run: %w", err)
	}
	return &run, nil
}

func encodeScore(score types.ScoreRecord) ([]byte, error) {
	data, err := json.Marshal(score)
	if err != nil {
		return nil, fmt.Errorf("encode score %s: %w", score.ID, err)
	}
	return data, nil
}

func decodeScore(data []byte) (types.ScoreRecord, error) {
	var score types.ScoreRecord
	if err := json.Unmarshal(data, &score); err != nil {
		return types.ScoreRecord{}, fmt.Errorf("decode score: %w", err)
	}
	return score, nil
}

// cloneRun 通过 JSON 往返得到独立副本
func cloneRun(run *types.RunRecord) (*types.RunRecord, error) {
	if run == nil {
		return nil, nil
	}
	data, err := encodeRun(run)
	if err != nil {
		return nil, err
	}
	return decodeRun(data)
}

func cloneScores(scores []types.ScoreRecord) ([]types.ScoreRecord, error) {
	out := make([]types.ScoreRecord, 0, len(scores))
	for _, s := range scores {
		data, err := encodeScore(s)
		if err != nil {
			return nil, err
		}
		c, err := decodeScore(data)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// prepareScores 校验并补齐 RunID，返回副本
func prepareScores(runID string, scores []types.ScoreRecord) ([]types.ScoreRecord, error) {
	out, err := cloneScores(scores)
	if err != nil {
		return nil, err
	}
	for i := range out {
		if out[i].ID == "" {
			return nil, types.Errorf(types.ErrInvalidInput, "score %d for run %s has no id", i, runID)
		}
		switch out[i].RunID {
		case "":
			out[i].RunID = runID
		case runID:
		default:
			return nil, types.Errorf(types.ErrInvalidInput,
				"score %s belongs to run %s, not %s", out[i].ID, out[i].RunID, runID)
		}
	}
	return out, nil
}

func paginate[T any](items []T, f Filter) []T {
	if f.Offset >= len(items) {
		return []T{}
	}
	items = items[f.Offset:]
	if f.Limit > 0 && f.Limit < len(items) {
		items = items[:f.Limit]
	}
	return items
}
