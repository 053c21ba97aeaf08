package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/BaSui01/evalflow/internal/database"
	"github.com/BaSui01/evalflow/types"
)

// =============================================================================
// 🗄️ GORM 存储
// =============================================================================

// runRow eval_runs 表；查询用的列单独存放，完整记录保存在 record 列
type runRow struct {
	ID          string    `gorm:"primaryKey;size:64"`
	TaskID      string    `gorm:"size:255;not null;default:'';index:idx_eval_runs_task_id"`
	TaskType    string    `gorm:"size:32;not null;default:''"`
	RunnerID    string    `gorm:"size:128;not null;default:''"`
	Status      string    `gorm:"size:16;not null;index:idx_eval_runs_status"`
	Fingerprint string    `gorm:"size:64;not null;default:''"`
	LatencyMs   int64     `gorm:"not null;default:0"`
	TokensUsed  int       `gorm:"not null;default:0"`
	Cost        float64   `gorm:"not null;default:0"`
	Record      string    `gorm:"type:text;not null"`
	StartedAt   time.Time `gorm:"not null;index:idx_eval_runs_started_at"`
	CompletedAt *time.Time
	CreatedAt   time.Time
}

func (runRow) TableName() string { return "eval_runs" }

// scoreRow eval_scores 表；Seq 保留评分的原始顺序
type scoreRow struct {
	ID        string `gorm:"primaryKey;size:64"`
	RunID     string `gorm:"size:64;not null;index:idx_eval_scores_run_id"`
	Seq       int    `gorm:"not null;default:0"`
	ScorerID  string `gorm:"size:128;not null;default:''"`
	Metric    string `gorm:"size:128;not null"`
	Target    string `gorm:"size:255;not null"`
	Record    string `gorm:"type:text;not null"`
	CreatedAt time.Time
}

func (scoreRow) TableName() string { return "eval_scores" }

// GormOptions GormStore 选项
type GormOptions struct {
	// AutoMigrate 启动时建表，生产环境使用 internal/migration
	AutoMigrate bool
}

// GormStore 基于 GORM 的关系型存储
type GormStore struct {
	pool   *database.PoolManager
	logger *zap.Logger
}

// NewGormStore 使用已打开的连接池创建存储
func NewGormStore(ctx context.Context, pool *database.PoolManager, opts GormOptions, logger *zap.Logger) (*GormStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("gorm store requires a database pool")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &GormStore{pool: pool, logger: logger.With(zap.String("component", "gorm_store"))}

	if opts.AutoMigrate {
		if err := pool.DB().WithContext(ctx).AutoMigrate(&runRow{}, &scoreRow{}); err != nil {
			return nil, fmt.Errorf("auto migrate eval tables: %w", err)
		}
		s.logger.Debug("eval tables migrated")
	}
	return s, nil
}

func (s *GormStore) db(ctx context.Context) *gorm.DB {
	return s.pool.DB().WithContext(ctx)
}

func toRunRow(run *types.RunRecord) (*runRow, error) {
	data, err := encodeRun(run)
	if err != nil {
		return nil, err
	}
	row := &runRow{
		ID:          run.ID,
		TaskID:      run.TaskID,
		TaskType:    string(run.TaskType),
		RunnerID:    run.Provenance.RunnerID,
		Status:      string(run.Status),
		Fingerprint: run.Provenance.RunFingerprint,
		LatencyMs:   run.Metrics.LatencyMs,
		TokensUsed:  run.Metrics.TokensUsed,
		Cost:        run.Metrics.Cost,
		Record:      string(data),
		StartedAt:   run.StartedAt,
	}
	if !run.CompletedAt.IsZero() {
		completed := run.CompletedAt
		row.CompletedAt = &completed
	}
	return row, nil
}

func (s *GormStore) SaveRun(ctx context.Context, run *types.RunRecord) error {
	if err := validateRun(run); err != nil {
		return err
	}
	row, err := toRunRow(run)
	if err != nil {
		return err
	}
	if err := s.db(ctx).Save(row).Error; err != nil {
		return fmt.Errorf("save run %s: %w", run.ID, err)
	}
	return nil
}

func (s *GormStore) GetRun(ctx context.Context, runID string) (*types.RunRecord, error) {
	var row runRow
	err := s.db(ctx).Where("id = ?", runID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", runID, err)
	}
	return decodeRun([]byte(row.Record))
}

func (s *GormStore) ListRuns(ctx context.Context, filter Filter) ([]*types.RunRecord, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	q := s.db(ctx).Model(&runRow{})
	if filter.TaskID != "" {
		q = q.Where("task_id = ?", filter.TaskID)
	}
	if filter.TaskType != "" {
		q = q.Where("task_type = ?", string(filter.TaskType))
	}
	if filter.Status != "" {
		q = q.Where("status = ?", string(filter.Status))
	}
	q = q.Order("started_at DESC").Order("id DESC")
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}

	var rows []runRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}

	out := make([]*types.RunRecord, 0, len(rows))
	for _, row := range rows {
		run, err := decodeRun([]byte(row.Record))
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, nil
}

func (s *GormStore) SaveScores(ctx context.Context, runID string, scores []types.ScoreRecord) error {
	prepared, err := prepareScores(runID, scores)
	if err != nil {
		return err
	}
	rows := make([]scoreRow, 0, len(prepared))
	for i, sc := range prepared {
		data, err := encodeScore(sc)
		if err != nil {
			return err
		}
		rows = append(rows, scoreRow{
			ID:       sc.ID,
			RunID:    runID,
			Seq:      i,
			ScorerID: sc.ScorerID,
			Metric:   sc.Metric,
			Target:   sc.Target,
			Record:   string(data),
		})
	}

	return s.pool.WithTransaction(ctx, func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&runRow{}).Where("id = ?", runID).Count(&count).Error; err != nil {
			return fmt.Errorf("check run %s: %w", runID, err)
		}
		if count == 0 {
			return runNotFound(runID)
		}
		if err := tx.Where("run_id = ?", runID).Delete(&scoreRow{}).Error; err != nil {
			return fmt.Errorf("clear scores of run %s: %w", runID, err)
		}
		if len(rows) == 0 {
			return nil
		}
		if err := tx.Create(&rows).Error; err != nil {
			return fmt.Errorf("save scores of run %s: %w", runID, err)
		}
		return nil
	})
}

func (s *GormStore) GetScores(ctx context.Context, runID string) ([]types.ScoreRecord, error) {
	var rows []scoreRow
	if err := s.db(ctx).Where("run_id = ?", runID).Order("seq ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("get scores of run %s: %w", runID, err)
	}
	out := make([]types.ScoreRecord, 0, len(rows))
	for _, row := range rows {
		sc, err := decodeScore([]byte(row.Record))
		if err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, nil
}

func (s *GormStore) DeleteRun(ctx context.Context, runID string) error {
	return s.pool.WithTransaction(ctx, func(tx *gorm.DB) error {
		if err := tx.Where("run_id = ?", runID).Delete(&scoreRow{}).Error; err != nil {
			return fmt.Errorf("delete scores of run %s: %w", runID, err)
		}
		res := tx.Where("id = ?", runID).Delete(&runRow{})
		if res.Error != nil {
			return fmt.Errorf("delete run %s: %w", runID, res.Error)
		}
		if res.RowsAffected == 0 {
			return runNotFound(runID)
		}
		return nil
	})
}

// Close 关闭底层连接池
func (s *GormStore) Close() error {
	return s.pool.Close()
}
