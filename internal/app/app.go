package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	langembeddings "github.com/tmc/langchaingo/embeddings"

	"StoryIndexer/internal/config"
	"StoryIndexer/internal/infrastructure/embeddings"
	"StoryIndexer/internal/infrastructure/llm"
	"StoryIndexer/internal/infrastructure/ml"
	"StoryIndexer/internal/infrastructure/parser"
	"StoryIndexer/internal/infrastructure/scheduler"
	"StoryIndexer/internal/infrastructure/storage"
	"StoryIndexer/internal/infrastructure/telegram"
	"StoryIndexer/internal/logging"
	"StoryIndexer/internal/ports"
	"StoryIndexer/internal/source"
	"StoryIndexer/internal/usecase"
)

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg       config.Config
	runner    *usecase.Runner
	scheduler *usecase.Scheduler
	embedder  langembeddings.Embedder
	logger    *slog.Logger
}

// Option overrides a collaborator, mostly for tests.
type Option func(*options)

type options struct {
	httpClient *http.Client
	classifier ports.Classifier
	embedder   langembeddings.Embedder
	notifier   ports.Notifier
	clock      clockwork.Clock
	register   []func(*source.Registry)
}

// WithHTTPClient sets the client used by network sources.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) { o.httpClient = client }
}

// WithClassifier replaces the configured classifier.
func WithClassifier(c ports.Classifier) Option {
	return func(o *options) { o.classifier = c }
}

// WithEmbedder replaces the configured embeddings client.
func WithEmbedder(e langembeddings.Embedder) Option {
	return func(o *options) { o.embedder = e }
}

// WithNotifier replaces the Telegram notifier.
func WithNotifier(n ports.Notifier) Option {
	return func(o *options) { o.notifier = n }
}

// WithClock sets the clock driving the cron loop.
func WithClock(c clockwork.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithSource registers an additional custom source.
func WithSource(name string, factory source.Factory) Option {
	return func(o *options) {
		o.register = append(o.register, func(r *source.Registry) { r.Register(name, factory) })
	}
}

// New builds the application for one run configuration.
func New(cfg config.Config, baseLogger *slog.Logger, opts ...Option) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	registry := source.NewRegistry()
	parser.Register(registry, o.httpClient, baseLogger)
	for _, register := range o.register {
		register(registry)
	}

	classifier, err := newClassifier(cfg, o.classifier, baseLogger)
	if err != nil {
		return nil, err
	}

	embedder := o.embedder
	if embedder == nil {
		embedder, err = embeddings.NewEmbedder(cfg.Embeddings)
		if err != nil {
			return nil, err
		}
	}

	notifier := o.notifier
	if notifier == nil && cfg.Notifications.Telegram.Enabled() {
		notifier = telegram.NewNotifier(cfg.Notifications.Telegram.BotToken, cfg.Notifications.Telegram.ChatID)
	}

	storeLogger := baseLogger.With("component", "storage")
	runner := usecase.NewRunner(usecase.RunnerDeps{
		Sources: registry,
		OpenStore: func(ctx context.Context, dir string) (ports.ArticleStore, error) {
			return storage.Open(ctx, dir, storeLogger)
		},
		Classifier: classifier,
		Index:      embeddings.NewBuilder(embedder, cfg.Embeddings.Batch, cfg.Embeddings.Workers, baseLogger),
		Notifier:   notifier,
		Logger:     baseLogger.With("component", "runner"),
	})

	clock := o.clock
	driverLogger := baseLogger.With("component", "cron")
	newDriver := func(cfg config.Config) (ports.Scheduler, error) {
		return scheduler.NewCronScheduler(cfg.Schedule,
			scheduler.WithLocation(cfg.Location()),
			scheduler.WithClock(clock),
			scheduler.WithLogger(driverLogger))
	}

	return &Application{
		cfg:       cfg,
		runner:    runner,
		scheduler: usecase.NewScheduler(runner, newDriver, baseLogger.With("component", "scheduler")),
		embedder:  embedder,
		logger:    baseLogger,
	}, nil
}

func newClassifier(cfg config.Config, override ports.Classifier, logger *slog.Logger) (ports.Classifier, error) {
	if override != nil {
		return override, nil
	}
	if len(cfg.Labels) == 0 {
		return nil, nil
	}

	switch cfg.Classifier.Type {
	case config.ClassifierLLM:
		return llm.NewClassifier(cfg.Classifier, logger)
	case config.ClassifierHTTP, "":
		return ml.NewClient(cfg.Classifier.Endpoint, cfg.Classifier.APIKey, &http.Client{Timeout: 30 * time.Second}), nil
	default:
		return nil, fmt.Errorf("unknown classifier type %q", cfg.Classifier.Type)
	}
}

// Run executes the configuration once, or keeps running on its schedule
// until ctx is cancelled.
func (a *Application) Run(ctx context.Context) error {
	return a.scheduler.Run(ctx, a.cfg)
}

// RunOnce executes a single pipeline run and returns its report.
func (a *Application) RunOnce(ctx context.Context) (usecase.Report, error) {
	return a.runner.Execute(ctx, a.cfg)
}

// Search queries the embeddings index built by previous runs.
func (a *Application) Search(ctx context.Context, query string, k int) ([]embeddings.Match, error) {
	index, err := embeddings.Open(a.cfg.Path, a.embedder, a.logger)
	if err != nil {
		return nil, err
	}
	defer index.Close()

	return index.Search(ctx, query, k)
}
