package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docminer/internal/extract"
	"docminer/internal/index"
	"docminer/internal/models"
	"docminer/internal/providers"
	"docminer/internal/storage"
	"docminer/internal/util"
	"docminer/internal/vector"
)

const dim = 32

type fixture struct {
	ingestor *Ingestor
	docs     *storage.SQLiteStore
	store    *vector.MemoryStore
	dir      string
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	docs, err := storage.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "app.db"))
	require.NoError(t, err)
	t.Cleanup(func() { docs.Close() })
	store := vector.NewMemoryStore(dim)
	ix := index.New(providers.NewMockProvider(dim), store, index.Options{Dimension: dim}, nil)
	return fixture{
		ingestor: New(extract.New(), ix, docs, DefaultWorkers, nil),
		docs:     docs,
		store:    store,
		dir:      t.TempDir(),
	}
}

func (f fixture) write(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(f.dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestBatchIsolatesFailures(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	png := f.write(t, "scan.png", "definitely not a png")
	csv := f.write(t, "sales.csv", "region,total\nnorth,10\nsouth,20\n")

	results, err := f.ingestor.IngestPaths(ctx, []string{png, csv})
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, models.StatusFailed, results[0].Status)
	assert.Contains(t, results[0].Error, util.ErrImageProcessingFailed.Error())
	assert.Equal(t, models.StatusCompleted, results[1].Status)
	assert.Equal(t, 1, results[1].Chunks)
	assert.Equal(t, 1, results[1].Segments)

	failed, err := f.docs.GetDocument(ctx, results[0].DocID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, failed.Status)
	assert.NotEmpty(t, failed.Error)

	done, err := f.docs.GetDocument(ctx, results[1].DocID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, done.Status)
	var summary models.IngestSummary
	require.NoError(t, json.Unmarshal([]byte(done.ExtractedData), &summary))
	assert.Equal(t, 1, summary.Segments)
	assert.Len(t, summary.SHA256, 64)

	n, err := f.store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	removed, err := f.store.DeleteByDocID(ctx, strconv.FormatInt(results[1].DocID, 10))
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
}

func TestUnsupportedFileFails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := f.write(t, "notes.txt", "hello")
	job, err := f.ingestor.Register(ctx, "", p)
	require.NoError(t, err)
	assert.Equal(t, "notes.txt", job.Filename)

	res := f.ingestor.IngestFile(ctx, job)
	assert.Equal(t, models.StatusFailed, res.Status)
	assert.Contains(t, res.Error, util.ErrUnsupportedFormat.Error())
}

func TestEmptySourceCompletesWithNoSegments(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := f.write(t, "empty.csv", "")
	results, err := f.ingestor.IngestPaths(ctx, []string{p})
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, results[0].Status)
	assert.Zero(t, results[0].Segments)
}

type slowExtractor struct {
	inFlight atomic.Int32
	peak     atomic.Int32
}

func (s *slowExtractor) ProcessFile(ctx context.Context, path string) ([]models.ExtractedChunk, error) {
	n := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		p := s.peak.Load()
		if n <= p || s.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(20 * time.Millisecond)
	return []models.ExtractedChunk{{Content: path, Metadata: models.Metadata{models.MetaSource: path}}}, nil
}

type countingIndexer struct {
	mu   sync.Mutex
	docs []string
}

func (c *countingIndexer) Index(ctx context.Context, chunks []models.ExtractedChunk, docID string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.docs = append(c.docs, docID)
	return len(chunks), nil
}

func TestBatchConcurrencyIsBounded(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ex := &slowExtractor{}
	ix := &countingIndexer{}
	in := New(ex, ix, f.docs, 5, nil)

	paths := make([]string, 12)
	for i := range paths {
		paths[i] = filepath.Join(f.dir, "f"+strconv.Itoa(i)+".csv")
	}
	results, err := in.IngestPaths(ctx, paths)
	require.NoError(t, err)
	require.Len(t, results, 12)
	for i, r := range results {
		assert.Equal(t, models.StatusCompleted, r.Status)
		assert.Equal(t, "f"+strconv.Itoa(i)+".csv", r.Filename)
	}
	assert.LessOrEqual(t, ex.peak.Load(), int32(5))
	assert.Len(t, ix.docs, 12)
}

type failingIndexer struct{}

func (failingIndexer) Index(ctx context.Context, chunks []models.ExtractedChunk, docID string) (int, error) {
	return 0, errors.Join(util.ErrEmbeddingFailed, errors.New("provider down"))
}

func TestIndexFailureMarksDocumentFailed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	in := New(extract.New(), failingIndexer{}, f.docs, 1, nil)
	p := f.write(t, "a.csv", "x\n1\n")
	results, err := in.IngestPaths(ctx, []string{p})
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, results[0].Status)

	doc, err := f.docs.GetDocument(ctx, results[0].DocID)
	require.NoError(t, err)
	assert.Contains(t, doc.Error, "provider down")
}
