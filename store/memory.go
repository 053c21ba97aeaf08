package store

import (
	"context"
	"sort"
	"sync"

	"github.com/BaSui01/evalflow/types"
)

type memoryRun struct {
	data []byte
	run  *types.RunRecord
	seq  uint64
}

// MemoryStore 进程内存储，保存的是编码后的副本
type MemoryStore struct {
	mu     sync.RWMutex
	runs   map[string]memoryRun
	scores map[string][][]byte
	seq    uint64
	closed bool
}

// NewMemoryStore 创建内存存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		runs:   make(map[string]memoryRun),
		scores: make(map[string][][]byte),
	}
}

func (s *MemoryStore) SaveRun(ctx context.Context, run *types.RunRecord) error {
	if err := validateRun(run); err != nil {
		return err
	}
	data, err := encodeRun(run)
	if err != nil {
		return err
	}
	// 列表排序需要的字段来自解码后的副本
	snapshot, err := decodeRun(data)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errStoreClosed
	}
	entry := memoryRun{data: data, run: snapshot}
	if prev, ok := s.runs[run.ID]; ok {
		entry.seq = prev.seq
	} else {
		s.seq++
		entry.seq = s.seq
	}
	s.runs[run.ID] = entry
	return nil
}

func (s *MemoryStore) GetRun(ctx context.Context, runID string) (*types.RunRecord, error) {
	s.mu.RLock()
	entry, ok := s.runs[runID]
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return nil, errStoreClosed
	}
	if !ok {
		return nil, nil
	}
	return decodeRun(entry.data)
}

func (s *MemoryStore) ListRuns(ctx context.Context, filter Filter) ([]*types.RunRecord, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, errStoreClosed
	}
	matched := make([]memoryRun, 0, len(s.runs))
	for _, entry := range s.runs {
		if filter.Matches(entry.run) {
			matched = append(matched, entry)
		}
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if !a.run.StartedAt.Equal(b.run.StartedAt) {
			return a.run.StartedAt.After(b.run.StartedAt)
		}
		return a.seq > b.seq
	})

	page := paginate(matched, filter)
	out := make([]*types.RunRecord, 0, len(page))
	for _, entry := range page {
		run, err := decodeRun(entry.data)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, nil
}

func (s *MemoryStore) SaveScores(ctx context.Context, runID string, scores []types.ScoreRecord) error {
	prepared, err := prepareScores(runID, scores)
	if err != nil {
		return err
	}
	encoded := make([][]byte, 0, len(prepared))
	for _, sc := range prepared {
		data, err := encodeScore(sc)
		if err != nil {
			return err
		}
		encoded = append(encoded, data)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errStoreClosed
	}
	if _, ok := s.runs[runID]; !ok {
		return runNotFound(runID)
	}
	s.scores[runID] = encoded
	return nil
}

func (s *MemoryStore) GetScores(ctx context.Context, runID string) ([]types.ScoreRecord, error) {
	s.mu.RLock()
	encoded := s.scores[runID]
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return nil, errStoreClosed
	}

	out := make([]types.ScoreRecord, 0, len(encoded))
	for _, data := range encoded {
		sc, err := decodeScore(data)
		if err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, nil
}

func (s *MemoryStore) DeleteRun(ctx context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errStoreClosed
	}
	if _, ok := s.runs[runID]; !ok {
		return runNotFound(runID)
	}
	delete(s.runs, runID)
	delete(s.scores, runID)
	return nil
}

// Close 之后所有操作返回错误
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.runs = nil
	s.scores = nil
	return nil
}
