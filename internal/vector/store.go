// Package vector persists embedded segments and answers nearest-neighbour queries.
package vector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"

	"docminer/internal/models"
)

// Record is one segment ready for persistence.
type Record struct {
	ID        string
	Text      string
	Metadata  models.Metadata
	Embedding []float32
}

// Store is a collection of embedded segments. AddBatch is all-or-nothing.
// Search returns at most k segments ordered by descending cosine similarity;
// ties keep insertion order.
type Store interface {
	AddBatch(ctx context.Context, records []Record) error
	Search(ctx context.Context, query []float32, k int) ([]models.ScoredSegment, error)
	DeleteByDocID(ctx context.Context, docID string) (int, error)
	Count(ctx context.Context) (int, error)
	Close() error
}

var ErrDimensionMismatch = errors.New("vector dimension mismatch")

func validate(records []Record, dim int) error {
	for _, r := range records {
		if r.ID == "" {
			return errors.New("record without id")
		}
		if dim > 0 && len(r.Embedding) != dim {
			return ErrDimensionMismatch
		}
	}
	return nil
}

func cosine(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// topK sorts hits by score, keeping the incoming order for equal scores.
func topK(hits []models.ScoredSegment, k int) []models.ScoredSegment {
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if k > 0 && len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

// normalizeMetadata passes metadata through the same JSON encoding the SQL
// backends store, so every backend returns numbers as json.Number.
func normalizeMetadata(m models.Metadata) (models.Metadata, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	return decodeMetadata(b)
}

func docIDOf(m models.Metadata) string {
	if v, ok := m[models.MetaDocID].(string); ok {
		return v
	}
	return ""
}
