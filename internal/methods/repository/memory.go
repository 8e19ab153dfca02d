package repository

import (
	"context"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/paymatrix/internal/clock"
	"github.com/smallbiznis/paymatrix/internal/methods/domain"
)

type memoryEntry struct {
	result    *domain.LoadResult
	expiresAt time.Time
}

// MemoryStore is the single-process run store used when no redis is
// configured and in tests.
type MemoryStore struct {
	mu     sync.Mutex
	clock  clock.Clock
	ttl    time.Duration
	runs   map[snowflake.ID]memoryEntry
	latest map[string]snowflake.ID
}

func NewMemoryStore(clk clock.Clock, ttl time.Duration) *MemoryStore {
	if clk == nil {
		clk = clock.New()
	}
	return &MemoryStore{
		clock:  clk,
		ttl:    ttl,
		runs:   make(map[snowflake.ID]memoryEntry),
		latest: make(map[string]snowflake.ID),
	}
}

func (s *MemoryStore) Publish(ctx context.Context, result *domain.LoadResult) error {
	if result == nil || result.RunID == 0 {
		return domain.ErrRunNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.evictLocked()

	if cur, ok := s.latest[result.Scope]; ok && cur > result.RunID {
		return domain.ErrStaleRun
	}

	entry := memoryEntry{result: result}
	if s.ttl > 0 {
		entry.expiresAt = s.clock.Now().Add(s.ttl)
	}
	s.runs[result.RunID] = entry
	s.latest[result.Scope] = result.RunID
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, runID snowflake.ID) (*domain.LoadResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evictLocked()

	entry, ok := s.runs[runID]
	if !ok {
		return nil, domain.ErrRunNotFound
	}
	return entry.result, nil
}

func (s *MemoryStore) Latest(ctx context.Context, scope string) (*domain.LoadResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evictLocked()

	id, ok := s.latest[scope]
	if !ok {
		return nil, domain.ErrRunNotFound
	}
	entry, ok := s.runs[id]
	if !ok {
		return nil, domain.ErrRunNotFound
	}
	return entry.result, nil
}

// evictLocked drops expired runs. The latest pointer of a scope is kept so
// an expired run still blocks older publishes.
func (s *MemoryStore) evictLocked() {
	if s.ttl <= 0 {
		return
	}
	now := s.clock.Now()
	for id, entry := range s.runs {
		if now.After(entry.expiresAt) {
			delete(s.runs, id)
		}
	}
}
