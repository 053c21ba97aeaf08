package store

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/BaSui01/evalflow/internal/cache"
	"github.com/BaSui01/evalflow/types"
)

// =============================================================================
// ⚡ Redis 读缓存
// =============================================================================

// CachedStore 为 GetRun/GetScores 提供读穿缓存，写操作后失效。
// 缓存故障只记录日志，不影响读写结果。
type CachedStore struct {
	inner  Store
	cache  *cache.Manager
	ttl    time.Duration
	group  singleflight.Group
	stats  CacheRecorder
	logger *zap.Logger
}

// CacheRecorder 缓存命中统计，metrics.Collector 实现了该接口
type CacheRecorder interface {
	RecordCacheHit(cache string)
	RecordCacheMiss(cache string)
}

type noopCacheRecorder struct{}

func (noopCacheRecorder) RecordCacheHit(string)  {}
func (noopCacheRecorder) RecordCacheMiss(string) {}

// NewCachedStore ttl 为 0 时使用缓存管理器的默认 TTL
func NewCachedStore(inner Store, manager *cache.Manager, ttl time.Duration, logger *zap.Logger) *CachedStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedStore{
		inner:  inner,
		cache:  manager,
		ttl:    ttl,
		stats:  noopCacheRecorder{},
		logger: logger.With(zap.String("component", "cached_store")),
	}
}

// WithMetrics 设置命中统计
func (s *CachedStore) WithMetrics(rec CacheRecorder) *CachedStore {
	if rec != nil {
		s.stats = rec
	}
	return s
}

func (s *CachedStore) runKey(runID string) string   { return s.cache.Key("run", runID) }
func (s *CachedStore) scoreKey(runID string) string { return s.cache.Key("scores", runID) }

// lookup 读缓存并记录命中；缓存故障按未命中处理
func (s *CachedStore) lookup(ctx context.Context, kind, key string, dest any) bool {
	hit, err := s.cache.Load(ctx, key, dest)
	if err != nil {
		s.logger.Warn("cache read failed", zap.String("key", key), zap.Error(err))
	}
	if hit {
		s.stats.RecordCacheHit(kind)
	} else {
		s.stats.RecordCacheMiss(kind)
	}
	return hit
}

func (s *CachedStore) SaveRun(ctx context.Context, run *types.RunRecord) error {
	if err := s.inner.SaveRun(ctx, run); err != nil {
		return err
	}
	s.invalidate(ctx, s.runKey(run.ID))
	return nil
}

func (s *CachedStore) GetRun(ctx context.Context, runID string) (*types.RunRecord, error) {
	key := s.runKey(runID)

	var cached types.RunRecord
	if s.lookup(ctx, "run", key, &cached) {
		return &cached, nil
	}

	v, err, shared := s.group.Do(key, func() (any, error) {
		run, err := s.inner.GetRun(ctx, runID)
		if err != nil || run == nil {
			return run, err
		}
		if err := s.cache.Save(ctx, key, run, s.ttl); err != nil {
			s.logger.Warn("cache write failed", zap.String("key", key), zap.Error(err))
		}
		return run, nil
	})
	if err != nil {
		return nil, err
	}
	run, _ := v.(*types.RunRecord)
	if shared {
		// 合并的调用共享同一指针，各自返回副本
		return cloneRun(run)
	}
	return run, nil
}

func (s *CachedStore) ListRuns(ctx context.Context, filter Filter) ([]*types.RunRecord, error) {
	return s.inner.ListRuns(ctx, filter)
}

func (s *CachedStore) SaveScores(ctx context.Context, runID string, scores []types.ScoreRecord) error {
	if err := s.inner.SaveScores(ctx, runID, scores); err != nil {
		return err
	}
	s.invalidate(ctx, s.scoreKey(runID))
	return nil
}

func (s *CachedStore) GetScores(ctx context.Context, runID string) ([]types.ScoreRecord, error) {
	key := s.scoreKey(runID)

	var cached []types.ScoreRecord
	if s.lookup(ctx, "scores", key, &cached) {
		return cached, nil
	}

	v, err, shared := s.group.Do(key, func() (any, error) {
		scores, err := s.inner.GetScores(ctx, runID)
		if err != nil {
			return nil, err
		}
		// 没有评分可能只是尚未写入，不缓存
		if len(scores) > 0 {
			if err := s.cache.Save(ctx, key, scores, s.ttl); err != nil {
				s.logger.Warn("cache write failed", zap.String("key", key), zap.Error(err))
			}
		}
		return scores, nil
	})
	if err != nil {
		return nil, err
	}
	scores, _ := v.([]types.ScoreRecord)
	if shared {
		return cloneScores(scores)
	}
	return scores, nil
}

func (s *CachedStore) DeleteRun(ctx context.Context, runID string) error {
	if err := s.inner.DeleteRun(ctx, runID); err != nil {
		return err
	}
	s.invalidate(ctx, s.runKey(runID), s.scoreKey(runID))
	return nil
}

// Close 关闭内部存储与缓存连接
func (s *CachedStore) Close() error {
	innerErr := s.inner.Close()
	cacheErr := s.cache.Close()
	if innerErr != nil {
		return innerErr
	}
	return cacheErr
}

func (s *CachedStore) invalidate(ctx context.Context, keys ...string) {
	if err := s.cache.Invalidate(ctx, keys...); err != nil {
		s.logger.Warn("cache invalidation failed", zap.Strings("keys", keys), zap.Error(err))
	}
}
