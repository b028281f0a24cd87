package embeddings

import (
	"context"
	"errors"
	"hash/fnv"
	"os"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"StoryIndexer/internal/domain"
	"StoryIndexer/internal/logging"
)

const testDims = 64

// hashEmbedder maps each word to a bucket so equal titles embed equally.
type hashEmbedder struct {
	calls atomic.Int32
	err   error
}

func (h *hashEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	h.calls.Add(1)
	if h.err != nil {
		return nil, h.err
	}
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = hashVector(text)
	}
	return vectors, nil
}

func (h *hashEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	return hashVector(text), nil
}

func hashVector(text string) []float32 {
	v := make([]float32, testDims)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		f := fnv.New32a()
		_, _ = f.Write([]byte(word))
		v[f.Sum32()%testDims]++
	}
	return v
}

func testEntries() []domain.IndexEntry {
	return []domain.IndexEntry{
		{UID: "1", Title: "Rust compiler release brings faster builds"},
		{UID: "2", Title: "Local team wins championship final"},
		{UID: "3", Title: "Central bank raises interest rates"},
		{UID: "4", Title: "New telescope captures distant galaxy"},
		{UID: "5", Title: "Election results announced overnight"},
	}
}

func TestBuildAndSearch(t *testing.T) {
	t.Parallel()

	path := t.TempDir()
	embedder := &hashEmbedder{}
	builder := NewBuilder(embedder, 2, 2, logging.Discard())

	require.NoError(t, builder.Build(context.Background(), path, testEntries()))
	assert.Equal(t, int32(3), embedder.calls.Load())

	index, err := Open(path, embedder, logging.Discard())
	require.NoError(t, err)
	defer index.Close()

	count, err := index.Count()
	require.NoError(t, err)
	assert.Equal(t, 5, count)

	matches, err := index.Search(context.Background(), "Rust compiler release brings faster builds", 2)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "1", matches[0].UID)
	assert.InDelta(t, 1.0, matches[0].Score, 1e-6)
	assert.GreaterOrEqual(t, matches[0].Score, matches[1].Score)
}

func TestBuildEmptyIndex(t *testing.T) {
	t.Parallel()

	path := t.TempDir()
	embedder := &hashEmbedder{}
	require.NoError(t, NewBuilder(embedder, 0, 0, logging.Discard()).Build(context.Background(), path, nil))
	assert.Zero(t, embedder.calls.Load())

	index, err := Open(path, embedder, logging.Discard())
	require.NoError(t, err)
	defer index.Close()

	count, err := index.Count()
	require.NoError(t, err)
	assert.Zero(t, count)

	matches, err := index.Search(context.Background(), "anything", 5)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestBuildReplacesPreviousIndex(t *testing.T) {
	t.Parallel()

	path := t.TempDir()
	embedder := &hashEmbedder{}
	builder := NewBuilder(embedder, 10, 1, logging.Discard())

	require.NoError(t, builder.Build(context.Background(), path, testEntries()))
	require.NoError(t, builder.Build(context.Background(), path, testEntries()[:1]))

	index, err := Open(path, embedder, logging.Discard())
	require.NoError(t, err)
	defer index.Close()

	matches, err := index.Search(context.Background(), "galaxy", 10)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "1", matches[0].UID)
}

func TestBuildPropagatesEmbedderError(t *testing.T) {
	t.Parallel()

	boom := errors.New("embedding service down")
	builder := NewBuilder(&hashEmbedder{err: boom}, 2, 2, logging.Discard())

	err := builder.Build(context.Background(), t.TempDir(), testEntries())
	assert.ErrorIs(t, err, boom)
}

func TestFailedRebuildKeepsPreviousIndex(t *testing.T) {
	t.Parallel()

	path := t.TempDir()
	require.NoError(t, NewBuilder(&hashEmbedder{}, 2, 2, logging.Discard()).Build(context.Background(), path, testEntries()))

	boom := errors.New("embedding service down")
	err := NewBuilder(&hashEmbedder{err: boom}, 2, 2, logging.Discard()).Build(context.Background(), path, testEntries())
	require.ErrorIs(t, err, boom)

	_, statErr := os.Stat(IndexDir(path) + ".tmp")
	assert.True(t, os.IsNotExist(statErr), "staging directory is removed")

	index, err := Open(path, &hashEmbedder{}, logging.Discard())
	require.NoError(t, err)
	defer index.Close()

	count, err := index.Count()
	require.NoError(t, err)
	assert.Equal(t, 5, count)

	matches, err := index.Search(context.Background(), "Rust compiler release brings faster builds", 10)
	require.NoError(t, err)
	require.Len(t, matches, 5)
	assert.Equal(t, "1", matches[0].UID)
}

func TestOpenMissingIndex(t *testing.T) {
	t.Parallel()

	_, err := Open(t.TempDir(), &hashEmbedder{}, logging.Discard())
	assert.Error(t, err)
}

func TestCosine(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 1.0, cosine([]float32{1, 2}, []float32{2, 4}), 1e-9)
	assert.InDelta(t, 0.0, cosine([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.Zero(t, cosine([]float32{1}, []float32{1, 2}))
	assert.Zero(t, cosine([]float32{0, 0}, []float32{1, 1}))
}
