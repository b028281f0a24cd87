package embeddings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/panjf2000/ants/v2"
	"github.com/tmc/langchaingo/embeddings"

	"StoryIndexer/internal/domain"
	"StoryIndexer/internal/ports"
	"StoryIndexer/pkg/logger"
)

const (
	// Dir is the index directory name inside the output path.
	Dir = "embeddings"

	defaultBatch   = 32
	defaultWorkers = 2
)

// IndexDir returns the index location for an output path.
func IndexDir(path string) string {
	return filepath.Join(path, Dir)
}

// Builder rebuilds the title embedding index after every run.
type Builder struct {
	embedder embeddings.Embedder
	batch    int
	workers  int
	now      func() time.Time
	logger   *slog.Logger
}

var _ ports.IndexBuilder = (*Builder)(nil)

// NewBuilder creates a builder embedding batch titles per request on
// workers goroutines.
func NewBuilder(embedder embeddings.Embedder, batch, workers int, logger *slog.Logger) *Builder {
	if batch <= 0 {
		batch = defaultBatch
	}
	if workers <= 0 {
		workers = defaultWorkers
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{
		embedder: embedder,
		batch:    batch,
		workers:  workers,
		now:      time.Now,
		logger:   logger.With("component", "index"),
	}
}

// Build replaces the index under path with vectors for entries. An empty
// entry list still produces an (empty) index. The new index is written to
// a staging directory and swapped in only once complete, so a failed build
// leaves the previous index readable.
func (b *Builder) Build(ctx context.Context, path string, entries []domain.IndexEntry) error {
	dir := IndexDir(path)
	staging := dir + ".tmp"
	if err := os.RemoveAll(staging); err != nil {
		return fmt.Errorf("remove stale staging index: %w", err)
	}

	if err := b.write(ctx, staging, entries); err != nil {
		if rmErr := os.RemoveAll(staging); rmErr != nil {
			b.logger.Warn("remove staging index", "path", staging, "error", rmErr)
		}
		return err
	}

	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("remove previous index: %w", err)
	}
	if err := os.Rename(staging, dir); err != nil {
		return fmt.Errorf("install index: %w", err)
	}

	b.logger.Info("embeddings index saved", "path", dir, "entries", len(entries))
	return nil
}

func (b *Builder) write(ctx context.Context, dir string, entries []domain.IndexEntry) (err error) {
	db, err := openDB(dir, b.logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close index: %w", closeErr)
		}
	}()

	b.logger.Info("building embeddings index", "entries", len(entries), "batch", b.batch, "workers", b.workers)

	pool, err := ants.NewPool(b.workers)
	if err != nil {
		return fmt.Errorf("create worker pool: %w", err)
	}
	defer pool.Release()

	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		errs       []error
		dimensions int
	)
	fail := func(err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	}

	for start := 0; start < len(entries); start += b.batch {
		batch := entries[start:min(start+b.batch, len(entries))]

		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()
			dims, err := b.embedBatch(ctx, db, batch)
			if err != nil {
				fail(err)
				return
			}
			mu.Lock()
			dimensions = max(dimensions, dims)
			mu.Unlock()
		})
		if submitErr != nil {
			wg.Done()
			fail(fmt.Errorf("submit batch: %w", submitErr))
			break
		}
	}
	wg.Wait()

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("embed titles: %w", err)
	}

	info, err := encMode.Marshal(meta{Count: len(entries), Dimensions: dimensions, Built: b.now().Unix()})
	if err != nil {
		return fmt.Errorf("encode index meta: %w", err)
	}
	if err := db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(metaKey), info)
	}); err != nil {
		return fmt.Errorf("write index meta: %w", err)
	}
	return nil
}

func (b *Builder) embedBatch(ctx context.Context, db *badger.DB, batch []domain.IndexEntry) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	titles := make([]string, len(batch))
	for i, entry := range batch {
		titles[i] = entry.Title
	}

	vectors, err := b.embedder.EmbedDocuments(ctx, titles)
	if err != nil {
		return 0, err
	}
	if len(vectors) != len(batch) {
		return 0, fmt.Errorf("embedder returned %d vectors for %d titles", len(vectors), len(batch))
	}

	wb := db.NewWriteBatch()

	dims := 0
	for i, entry := range batch {
		value, err := encMode.Marshal(record{UID: entry.UID, Title: entry.Title, Vector: vectors[i]})
		if err != nil {
			wb.Cancel()
			return 0, fmt.Errorf("encode entry %s: %w", entry.UID, err)
		}
		if err := wb.Set(entryKey(entry.UID), value); err != nil {
			wb.Cancel()
			return 0, fmt.Errorf("write entry %s: %w", entry.UID, err)
		}
		dims = max(dims, len(vectors[i]))
	}

	if err := wb.Flush(); err != nil {
		return 0, fmt.Errorf("flush batch: %w", err)
	}
	return dims, nil
}

// Match is one search hit.
type Match struct {
	UID   string
	Title string
	Score float64
}

// Index is a read handle over a built index.
type Index struct {
	db       *badger.DB
	embedder embeddings.Embedder
}

// Open opens the index built under path.
func Open(path string, embedder embeddings.Embedder, logger *slog.Logger) (*Index, error) {
	dir := IndexDir(path)
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}
	db, err := openDB(dir, logger)
	if err != nil {
		return nil, err
	}
	return &Index{db: db, embedder: embedder}, nil
}

// Count returns the number of entries recorded by the last build.
func (i *Index) Count() (int, error) {
	var m meta
	err := i.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(metaKey))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return decMode.Unmarshal(val, &m)
		})
	})
	if err != nil {
		return 0, fmt.Errorf("read index meta: %w", err)
	}
	return m.Count, nil
}

// Search returns the k titles closest to query by cosine similarity.
func (i *Index) Search(ctx context.Context, query string, k int) ([]Match, error) {
	if k <= 0 {
		return nil, nil
	}

	vector, err := i.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	var matches []Match
	err = i.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(entryPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var rec record
				if err := decMode.Unmarshal(val, &rec); err != nil {
					return err
				}
				matches = append(matches, Match{UID: rec.UID, Title: rec.Title, Score: cosine(vector, rec.Vector)})
				return nil
			})
			if err != nil {
				return fmt.Errorf("decode entry: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan index: %w", err)
	}

	sort.SliceStable(matches, func(a, b int) bool {
		if matches[a].Score != matches[b].Score {
			return matches[a].Score > matches[b].Score
		}
		return matches[a].UID < matches[b].UID
	})
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

// Close releases the underlying store.
func (i *Index) Close() error {
	return i.db.Close()
}

func openDB(dir string, log *slog.Logger) (*badger.DB, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create index directory: %w", err)
	}

	opts := badger.DefaultOptions(dir).WithLogger(logger.New(log, "badger"))
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open index store: %w", err)
	}
	return db, nil
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
