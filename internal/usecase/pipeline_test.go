package usecase

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"StoryIndexer/internal/config"
	"StoryIndexer/internal/domain"
	"StoryIndexer/internal/infrastructure/storage"
	"StoryIndexer/internal/logging"
	"StoryIndexer/internal/ports"
	"StoryIndexer/internal/source"
)

type stubClassifier struct {
	scores []domain.LabelScore
	err    error
	calls  int
}

func (s *stubClassifier) Classify(_ context.Context, _ string, _ []string) ([]domain.LabelScore, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.scores, nil
}

type recordingIndex struct {
	mu      sync.Mutex
	calls   int
	path    string
	entries []domain.IndexEntry
}

func (r *recordingIndex) Build(_ context.Context, path string, entries []domain.IndexEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	r.path = path
	r.entries = entries
	return nil
}

type recordingNotifier struct {
	digests []string
	err     error
}

func (r *recordingNotifier) PublishDigest(_ context.Context, digest string) error {
	r.digests = append(r.digests, digest)
	return r.err
}

func openStore(_ context.Context, dir string) (ports.ArticleStore, error) {
	return storage.Open(context.Background(), dir, logging.Discard())
}

func registryWith(articles []domain.Article, err error) *source.Registry {
	reg := source.NewRegistry()
	reg.Register("static", func(config.Config) (ports.Source, error) {
		return &source.Static{Articles: articles, Err: err}, nil
	})
	return reg
}

func pipelineConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		Name:   "test run",
		Source: "static",
		Path:   t.TempDir(),
	}
}

func countTable(t *testing.T, dir, table string) int {
	t.Helper()

	db, err := sql.Open("sqlite", storage.DatabaseFile(dir))
	require.NoError(t, err)
	defer db.Close()

	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}

func article(uid, title, url string) domain.Article {
	ts := time.Date(2024, time.May, 2, 8, 0, 0, 0, time.UTC)
	return domain.Article{UID: uid, Source: "feed", Date: ts, Title: title, URL: url, Entry: ts}
}

func TestRunnerDeduplicatesAndAggregatesLabels(t *testing.T) {
	t.Parallel()

	cfg := pipelineConfig(t)
	cfg.Labels = map[string]config.Category{
		"topic": {Values: []string{"tech", "sports"}, Aggregate: []string{"tech"}},
	}

	articles := []domain.Article{
		article("a1", "Same Title", "https://example.com/a"),
		article("a1", "Same Title", "https://other.example.com/a"),
	}
	classifier := &stubClassifier{scores: []domain.LabelScore{{Name: "tech", Score: 0.8}, {Name: "sports", Score: 0.1}}}
	index := &recordingIndex{}

	runner := NewRunner(RunnerDeps{
		Sources:    registryWith(articles, nil),
		OpenStore:  openStore,
		Classifier: classifier,
		Index:      index,
		Logger:     logging.Discard(),
	})

	report, err := runner.Execute(context.Background(), cfg)
	require.NoError(t, err)

	assert.Equal(t, 2, report.Fetched)
	assert.Equal(t, 1, report.Saved)
	assert.Equal(t, 1, report.Labels)
	assert.Equal(t, 1, report.Rejected[VerdictDuplicate])
	assert.Equal(t, 1, classifier.calls)

	assert.Equal(t, 1, countTable(t, cfg.Path, "articles"))
	assert.Equal(t, 1, countTable(t, cfg.Path, "labels"))

	db, err := sql.Open("sqlite", storage.DatabaseFile(cfg.Path))
	require.NoError(t, err)
	defer db.Close()

	var category, name string
	var value float64
	require.NoError(t, db.QueryRow("SELECT Category, Name, Value FROM labels").Scan(&category, &name, &value))
	assert.Equal(t, "topic", category)
	assert.Equal(t, "topic", name)
	assert.InDelta(t, 0.8, value, 1e-9)

	require.Equal(t, 1, index.calls)
	assert.Equal(t, cfg.Path, index.path)
	assert.Equal(t, []domain.IndexEntry{{UID: "a1", Title: "Same Title"}}, index.entries)
}

func TestRunnerBuildsIndexWithoutNewArticles(t *testing.T) {
	t.Parallel()

	cfg := pipelineConfig(t)
	index := &recordingIndex{}

	runner := NewRunner(RunnerDeps{
		Sources:   registryWith(nil, nil),
		OpenStore: openStore,
		Index:     index,
		Logger:    logging.Discard(),
	})

	report, err := runner.Execute(context.Background(), cfg)
	require.NoError(t, err)

	assert.Equal(t, 0, report.Saved)
	assert.Equal(t, 1, index.calls)
	assert.Empty(t, index.entries)
	assert.FileExists(t, storage.DatabaseFile(cfg.Path))
}

func TestRunnerRejectsSchemeAndIgnored(t *testing.T) {
	t.Parallel()

	cfg := pipelineConfig(t)
	cfg.Ignore = []string{`/sponsored/`}

	articles := []domain.Article{
		article("ok", "Fine", "https://example.com/fine"),
		article("ftp", "Ftp", "ftp://example.com/file"),
		article("ad", "Ad", "https://example.com/sponsored/deal"),
	}

	runner := NewRunner(RunnerDeps{
		Sources:   registryWith(articles, nil),
		OpenStore: openStore,
		Logger:    logging.Discard(),
	})

	report, err := runner.Execute(context.Background(), cfg)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Saved)
	assert.Equal(t, 1, report.Rejected[VerdictScheme])
	assert.Equal(t, 1, report.Rejected[VerdictIgnored])
	assert.Equal(t, 1, countTable(t, cfg.Path, "articles"))
}

func TestRunnerSourceErrorKeepsSavedRows(t *testing.T) {
	t.Parallel()

	cfg := pipelineConfig(t)
	boom := errors.New("feed unavailable")
	index := &recordingIndex{}
	notifier := &recordingNotifier{}

	runner := NewRunner(RunnerDeps{
		Sources:   registryWith([]domain.Article{article("a1", "One", "https://example.com/1")}, boom),
		OpenStore: openStore,
		Index:     index,
		Notifier:  notifier,
		Logger:    logging.Discard(),
	})

	_, err := runner.Execute(context.Background(), cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "test run")

	assert.Zero(t, index.calls)
	assert.Empty(t, notifier.digests)
	assert.Equal(t, 1, countTable(t, cfg.Path, "articles"))
}

func TestRunnerClassifierErrorAborts(t *testing.T) {
	t.Parallel()

	cfg := pipelineConfig(t)
	cfg.Labels = map[string]config.Category{"topic": {Values: []string{"tech"}}}
	boom := errors.New("model offline")

	runner := NewRunner(RunnerDeps{
		Sources:    registryWith([]domain.Article{article("a1", "One", "https://example.com/1")}, nil),
		OpenStore:  openStore,
		Classifier: &stubClassifier{err: boom},
		Logger:     logging.Discard(),
	})

	_, err := runner.Execute(context.Background(), cfg)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, countTable(t, cfg.Path, "articles"))
}

func TestRunnerUnknownSource(t *testing.T) {
	t.Parallel()

	cfg := pipelineConfig(t)
	cfg.Source = "missing"

	runner := NewRunner(RunnerDeps{
		Sources:   source.NewRegistry(),
		OpenStore: openStore,
		Logger:    logging.Discard(),
	})

	_, err := runner.Execute(context.Background(), cfg)
	assert.ErrorIs(t, err, source.ErrUnknownSource)
	assert.NoFileExists(t, storage.DatabaseFile(cfg.Path))
}

func TestRunnerPublishesSummary(t *testing.T) {
	t.Parallel()

	cfg := pipelineConfig(t)
	notifier := &recordingNotifier{err: errors.New("telegram down")}

	runner := NewRunner(RunnerDeps{
		Sources:   registryWith([]domain.Article{article("a1", "One", "https://example.com/1")}, nil),
		OpenStore: openStore,
		Notifier:  notifier,
		Logger:    logging.Discard(),
	})

	report, err := runner.Execute(context.Background(), cfg)
	require.NoError(t, err)

	require.Len(t, notifier.digests, 1)
	assert.True(t, strings.HasPrefix(notifier.digests[0], "test run\n"))
	assert.Contains(t, notifier.digests[0], "saved: 1")
	assert.Equal(t, report.Summary(), notifier.digests[0])
}

func TestSortedCategories(t *testing.T) {
	t.Parallel()

	got := sortedCategories(map[string]config.Category{"b": {}, "a": {}, "c": {}})
	names := make([]string, 0, len(got))
	for _, c := range got {
		names = append(names, c.name)
	}
	assert.Equal(t, []string{"a", "b", "c"}, names)
}
