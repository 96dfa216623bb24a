package service

import (
	"context"
	"sync"
	"time"

	"github.com/noah-isme/room-assignment-api/internal/dto"
)

// importBatchStore keeps previewed batches until they are confirmed or expire.
type importBatchStore interface {
	Save(ctx context.Context, batch dto.ImportBatch) error
	Get(ctx context.Context, id string) (dto.ImportBatch, bool, error)
	Delete(ctx context.Context, id string) error
}

type storedBatch struct {
	batch   dto.ImportBatch
	savedAt time.Time
}

// memoryBatchStore holds batches in process memory.
type memoryBatchStore struct {
	ttl   time.Duration
	now   func() time.Time
	mu    sync.RWMutex
	items map[string]storedBatch
}

func newMemoryBatchStore(ttl time.Duration) *memoryBatchStore {
	return &memoryBatchStore{ttl: ttl, now: time.Now, items: make(map[string]storedBatch)}
}

// Save stores batch and drops every expired batch, so previews that are never confirmed do
// not accumulate.
func (s *memoryBatchStore) Save(_ context.Context, batch dto.ImportBatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for id, stored := range s.items {
		if now.Sub(stored.savedAt) > s.ttl {
			delete(s.items, id)
		}
	}
	s.items[batch.ID] = storedBatch{batch: batch, savedAt: now}
	return nil
}

func (s *memoryBatchStore) size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

func (s *memoryBatchStore) Get(ctx context.Context, id string) (dto.ImportBatch, bool, error) {
	s.mu.RLock()
	stored, ok := s.items[id]
	s.mu.RUnlock()
	if !ok {
		return dto.ImportBatch{}, false, nil
	}
	if s.now().Sub(stored.savedAt) > s.ttl {
		_ = s.Delete(ctx, id)
		return dto.ImportBatch{}, false, nil
	}
	return stored.batch, true, nil
}

func (s *memoryBatchStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	delete(s.items, id)
	s.mu.Unlock()
	return nil
}

// cacheBatchStore keeps batches in Redis so any replica can confirm them.
type cacheBatchStore struct {
	cache *CacheService
	ttl   time.Duration
}

func (s *cacheBatchStore) Save(ctx context.Context, batch dto.ImportBatch) error {
	return s.cache.Set(ctx, importBatchKey(batch.ID), batch, s.ttl)
}

func (s *cacheBatchStore) Get(ctx context.Context, id string) (dto.ImportBatch, bool, error) {
	var batch dto.ImportBatch
	hit, err := s.cache.Get(ctx, importBatchKey(id), &batch)
	if err != nil || !hit {
		return dto.ImportBatch{}, false, err
	}
	return batch, true, nil
}

func (s *cacheBatchStore) Delete(ctx context.Context, id string) error {
	return s.cache.Delete(ctx, importBatchKey(id))
}
