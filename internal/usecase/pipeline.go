package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"StoryIndexer/internal/config"
	"StoryIndexer/internal/domain"
	"StoryIndexer/internal/ports"
	"StoryIndexer/internal/source"
)

// RunnerDeps wires all driven adapters into the pipeline runner.
type RunnerDeps struct {
	Sources    *source.Registry
	OpenStore  ports.StoreOpener
	Classifier ports.Classifier
	Index      ports.IndexBuilder
	Notifier   ports.Notifier
	Logger     *slog.Logger
	Now        func() time.Time
}

// Runner executes one ingestion run: fetch, filter, classify, store, index.
type Runner struct {
	sources    *source.Registry
	openStore  ports.StoreOpener
	classifier ports.Classifier
	index      ports.IndexBuilder
	notifier   ports.Notifier
	logger     *slog.Logger
	now        func() time.Time
}

// NewRunner constructs the orchestration component.
func NewRunner(deps RunnerDeps) *Runner {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}

	return &Runner{
		sources:    deps.Sources,
		openStore:  deps.OpenStore,
		classifier: deps.Classifier,
		index:      deps.Index,
		notifier:   deps.Notifier,
		logger:     logger,
		now:        now,
	}
}

type category struct {
	name string
	cfg  config.Category
}

// Execute runs the pipeline once for cfg. A source or classifier failure
// aborts the run after committing what was already saved; no index is
// built in that case.
func (r *Runner) Execute(ctx context.Context, cfg config.Config) (Report, error) {
	report := newReport(cfg.Name, r.now())
	r.logger.Info("refreshing index", "name", cfg.Name, "source", cfg.SourceName())

	if r.sources == nil || r.openStore == nil {
		return report, fmt.Errorf("run %s: runner is not configured", cfg.Name)
	}
	if len(cfg.Labels) > 0 && r.classifier == nil {
		return report, fmt.Errorf("run %s: labels configured without a classifier", cfg.Name)
	}

	filter, err := NewFilter(cfg.Ignore)
	if err != nil {
		return report, fmt.Errorf("run %s: %w", cfg.Name, err)
	}

	src, err := r.sources.Create(cfg)
	if err != nil {
		return report, fmt.Errorf("run %s: %w", cfg.Name, err)
	}

	store, err := r.openStore(ctx, cfg.Path)
	if err != nil {
		return report, fmt.Errorf("run %s: open storage: %w", cfg.Name, err)
	}

	if err := r.ingest(ctx, cfg, src, store, filter, &report); err != nil {
		report.Commits = store.Commits()
		report.Finished = r.now()
		return report, errors.Join(fmt.Errorf("run %s: %w", cfg.Name, err), store.Close())
	}

	if err := r.finish(ctx, cfg, store, &report); err != nil {
		report.Finished = r.now()
		return report, errors.Join(fmt.Errorf("run %s: %w", cfg.Name, err), store.Close())
	}

	if err := store.Close(); err != nil {
		return report, fmt.Errorf("run %s: close storage: %w", cfg.Name, err)
	}
	report.Finished = r.now()

	r.logger.Info("indexing complete",
		"name", cfg.Name,
		"fetched", report.Fetched,
		"saved", report.Saved,
		"failures", len(report.Failures),
		"duration", report.Duration())

	r.notify(ctx, report)
	return report, nil
}

func (r *Runner) ingest(ctx context.Context, cfg config.Config, src ports.Source, store ports.ArticleStore, filter *Filter, report *Report) error {
	categories := sortedCategories(cfg.Labels)

	for article, err := range src.Run(ctx) {
		if err != nil {
			return fmt.Errorf("fetch articles: %w", err)
		}
		report.Fetched++

		verdict, err := filter.Check(ctx, store, article)
		if err != nil {
			return err
		}
		if !verdict.Accepted() {
			report.Rejected[verdict]++
			r.logger.Debug("article rejected", "uid", article.UID, "url", article.URL, "reason", verdict)
			continue
		}
		report.Accepted++

		labels, err := r.classify(ctx, article, categories)
		if err != nil {
			return err
		}

		result, err := store.Save(ctx, article, labels)
		if err != nil {
			return fmt.Errorf("save article %s: %w", article.UID, err)
		}
		report.add(result)
	}

	return nil
}

func (r *Runner) classify(ctx context.Context, article domain.Article, categories []category) ([]domain.Label, error) {
	var labels []domain.Label
	for _, c := range categories {
		result, err := r.classifier.Classify(ctx, article.Title, c.cfg.Values)
		if err != nil {
			return nil, fmt.Errorf("classify article %s (%s): %w", article.UID, c.name, err)
		}

		scores, err := Labels(c.name, c.cfg, result)
		if err != nil {
			return nil, err
		}

		for _, score := range scores {
			labels = append(labels, domain.Label{
				Article:  article.UID,
				Category: c.name,
				Name:     score.Name,
				Value:    score.Score,
			})
		}
	}
	return labels, nil
}

func (r *Runner) finish(ctx context.Context, cfg config.Config, store ports.ArticleStore, report *Report) error {
	if _, err := store.Complete(ctx); err != nil {
		return fmt.Errorf("complete storage: %w", err)
	}
	report.Commits = store.Commits()

	entries, err := store.Entries(ctx)
	if err != nil {
		return fmt.Errorf("load index entries: %w", err)
	}

	if r.index != nil {
		if err := r.index.Build(ctx, cfg.Path, entries); err != nil {
			return fmt.Errorf("build embeddings index: %w", err)
		}
	}
	report.Indexed = len(entries)

	return nil
}

func (r *Runner) notify(ctx context.Context, report Report) {
	if r.notifier == nil {
		return
	}
	if err := r.notifier.PublishDigest(ctx, report.Summary()); err != nil {
		r.logger.Warn("publish run report", "name", report.Name, "error", err)
	}
}

func sortedCategories(labels map[string]config.Category) []category {
	categories := make([]category, 0, len(labels))
	for name, cfg := range labels {
		categories = append(categories, category{name: name, cfg: cfg})
	}
	sort.Slice(categories, func(i, j int) bool {
		return categories[i].name < categories[j].name
	})
	return categories
}
