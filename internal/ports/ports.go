package ports

import (
	"context"
	"iter"
	"time"

	"StoryIndexer/internal/domain"
)

// Source produces articles from one external origin. Articles are yielded
// lazily in source order; a non-nil error ends the sequence.
type Source interface {
	Run(ctx context.Context) iter.Seq2[domain.Article, error]
}

// ArticleLookup reports whether an article is already stored, either by uid
// or by a stored reference containing baseURL.
type ArticleLookup interface {
	Exists(ctx context.Context, uid, baseURL string) (bool, error)
}

// ArticleStore is the transactional writer owned by a single run.
type ArticleStore interface {
	ArticleLookup
	Save(ctx context.Context, article domain.Article, labels []domain.Label) (domain.SaveResult, error)
	Complete(ctx context.Context) (int, error)
	Entries(ctx context.Context) ([]domain.IndexEntry, error)
	Commits() int
	Close() error
}

// StoreOpener opens the article store for an output directory.
type StoreOpener func(ctx context.Context, dir string) (ArticleStore, error)

// Classifier scores text against a label vocabulary.
type Classifier interface {
	Classify(ctx context.Context, text string, labels []string) ([]domain.LabelScore, error)
}

// IndexBuilder builds and persists a searchable index over stored titles.
type IndexBuilder interface {
	Build(ctx context.Context, path string, entries []domain.IndexEntry) error
}

// Notifier streams run summaries to Telegram or other channels.
type Notifier interface {
	PublishDigest(ctx context.Context, digest string) error
}

// Scheduler drives a job on a recurring cadence until ctx is cancelled.
// It logs each upcoming fire time itself.
type Scheduler interface {
	Run(ctx context.Context, job func(ctx context.Context, fire time.Time)) error
}
