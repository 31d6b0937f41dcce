package vector

import (
	"context"
	"sync"

	"docminer/internal/models"
)

// MemoryStore is a brute-force in-process store, used for tests and ephemeral runs.
type MemoryStore struct {
	mu      sync.RWMutex
	dim     int
	records []Record
}

func NewMemoryStore(dim int) *MemoryStore {
	return &MemoryStore{dim: dim}
}

func (s *MemoryStore) AddBatch(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	if err := validate(records, s.dim); err != nil {
		return err
	}
	copied := make([]Record, len(records))
	for i, r := range records {
		meta, err := normalizeMetadata(r.Metadata)
		if err != nil {
			return err
		}
		r.Metadata = meta
		copied[i] = r
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, copied...)
	return nil
}

func (s *MemoryStore) Search(ctx context.Context, query []float32, k int) ([]models.ScoredSegment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	hits := make([]models.ScoredSegment, 0, len(s.records))
	for _, r := range s.records {
		hits = append(hits, models.ScoredSegment{
			Segment: models.Segment{ID: r.ID, Text: r.Text, Metadata: r.Metadata.Clone()},
			Score:   cosine(query, r.Embedding),
		})
	}
	return topK(hits, k), nil
}

func (s *MemoryStore) DeleteByDocID(ctx context.Context, docID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.records[:0]
	removed := 0
	for _, r := range s.records {
		if docIDOf(r.Metadata) == docID {
			removed++
			continue
		}
		kept = append(kept, r)
	}
	s.records = kept
	return removed, nil
}

func (s *MemoryStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records), nil
}

func (s *MemoryStore) Close() error {
	return nil
}
