package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

const (
	defaultPath            = "data"
	defaultLogLevel        = "info"
	defaultClassifierType  = ClassifierHTTP
	defaultClassifierURL   = "http://localhost:8000"
	defaultEmbeddingsHost  = "http://localhost:11434/v1"
	defaultEmbeddingsModel = "nomic-embed-text"
	defaultEmbeddingsBatch = 32
	defaultWorkers         = 2
	defaultRedditSort      = "new"
	defaultRedditTime      = "day"

	logLevelEnv         = "STORYINDEXER_LOG_LEVEL"
	classifierAPIKeyEnv = "CLASSIFIER_API_KEY"
	embeddingsAPIKeyEnv = "EMBEDDINGS_API_KEY"
	telegramTokenEnv    = "TELEGRAM_BOT_TOKEN"
	telegramChatIDEnv   = "TELEGRAM_CHAT_ID"
)

// Classifier backends.
const (
	ClassifierHTTP = "http"
	ClassifierLLM  = "llm"
)

// Source selector names resolved from the configuration.
const (
	SourceRSS    = "rss"
	SourceReddit = "reddit"
)

var (
	// ErrNameRequired is returned when the run configuration has no name.
	ErrNameRequired = errors.New("name is required")
	// ErrNoSource is returned when no source selector is configured.
	ErrNoSource = errors.New("no source configured: set rss, reddit or source")
	// ErrInvalidNormalize is returned for a normalize range with zero width.
	ErrInvalidNormalize = errors.New("normalize range has zero width")
)

// Config is a single run configuration loaded from YAML.
type Config struct {
	Name          string              `yaml:"name"`
	RSS           []string            `yaml:"rss"`
	Reddit        *RedditConfig       `yaml:"reddit"`
	Source        string              `yaml:"source"`
	Custom        CustomConfig        `yaml:"custom"`
	Labels        map[string]Category `yaml:"labels"`
	Ignore        []string            `yaml:"ignore"`
	Path          string              `yaml:"path"`
	Schedule      string              `yaml:"schedule"`
	Timezone      string              `yaml:"timezone"`
	Embeddings    EmbeddingsConfig    `yaml:"embeddings"`
	Classifier    ClassifierConfig    `yaml:"classifier"`
	Notifications NotificationConfig  `yaml:"notifications"`
	Logging       LoggingConfig       `yaml:"logging"`

	location *time.Location
}

// RedditConfig lists the search queries run against one subreddit.
type RedditConfig struct {
	Subreddit string   `yaml:"subreddit"`
	Queries   []string `yaml:"queries"`
	Sort      string   `yaml:"sort"`
	Time      string   `yaml:"time"`
	Limit     int      `yaml:"limit"`
	UserAgent string   `yaml:"userAgent"`
}

// CustomConfig carries parameters for sources registered by name.
type CustomConfig struct {
	Categories []CategoryURL     `yaml:"categories"`
	URLs       []string          `yaml:"urls"`
	Options    map[string]string `yaml:"options"`
}

// CategoryURL is a named listing endpoint (e.g., an arXiv category page).
type CategoryURL struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// Category configures one label group.
type Category struct {
	Values    []string `yaml:"values"`
	Aggregate []string `yaml:"aggregate"`
	Normalize *Range   `yaml:"normalize"`
}

// Aggregated reports whether the category collapses scores into one value.
func (c Category) Aggregated() bool {
	return len(c.Aggregate) > 0
}

// Range is a [min, max] pair written as a two element YAML list.
type Range struct {
	Min float64
	Max float64
}

// UnmarshalYAML decodes a range from a two element sequence.
func (r *Range) UnmarshalYAML(node *yaml.Node) error {
	var values []float64
	if err := node.Decode(&values); err != nil {
		return fmt.Errorf("normalize: %w", err)
	}
	if len(values) != 2 {
		return fmt.Errorf("normalize: expected [min, max], got %d values", len(values))
	}
	r.Min, r.Max = values[0], values[1]
	return nil
}

// Width returns max - min.
func (r Range) Width() float64 {
	return r.Max - r.Min
}

// EmbeddingsConfig describes the embedding service used for the index build.
type EmbeddingsConfig struct {
	Host    string `yaml:"host"`
	Model   string `yaml:"model"`
	APIKey  string `yaml:"apiKey"`
	Batch   int    `yaml:"batch"`
	Workers int    `yaml:"workers"`
}

// ClassifierConfig selects and configures the zero-shot classifier.
type ClassifierConfig struct {
	Type         string `yaml:"type"`
	Endpoint     string `yaml:"endpoint"`
	Model        string `yaml:"model"`
	APIKey       string `yaml:"apiKey"`
	SystemPrompt string `yaml:"systemPrompt"`
}

// NotificationConfig encapsulates outbound channels (Telegram, etc.).
type NotificationConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
}

// TelegramConfig wires all data required to send messages.
type TelegramConfig struct {
	BotToken string `yaml:"botToken"`
	ChatID   int64  `yaml:"chatId"`
}

// Enabled reports whether both the token and the chat are set.
func (t TelegramConfig) Enabled() bool {
	return t.BotToken != "" && t.ChatID != 0
}

// LoggingConfig holds the log level.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Load reads the YAML run configuration at path, applies defaults and
// environment overrides, and validates the result.
func Load(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	return Parse(raw)
}

// Parse decodes and validates a YAML run configuration.
func Parse(raw []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// SourceName resolves the source selector: reddit, then rss, then a custom name.
func (c Config) SourceName() string {
	switch {
	case c.Reddit != nil:
		return SourceReddit
	case len(c.RSS) > 0:
		return SourceRSS
	default:
		return strings.TrimSpace(c.Source)
	}
}

// Scheduled reports whether the run should be driven by the cron loop.
func (c Config) Scheduled() bool {
	return strings.TrimSpace(c.Schedule) != ""
}

// Location resolves the timezone used to evaluate the schedule.
func (c Config) Location() *time.Location {
	if c.location != nil {
		return c.location
	}
	return time.Local
}

// Validate checks the configuration before any source or storage is touched.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return ErrNameRequired
	}
	if c.SourceName() == "" {
		return ErrNoSource
	}
	if c.Reddit != nil && strings.TrimSpace(c.Reddit.Subreddit) == "" {
		return fmt.Errorf("reddit: subreddit is required")
	}

	for name, category := range c.Labels {
		if len(category.Values) == 0 {
			return fmt.Errorf("labels %s: values are required", name)
		}
		if category.Normalize != nil && category.Normalize.Width() == 0 {
			return fmt.Errorf("labels %s: %w", name, ErrInvalidNormalize)
		}
	}

	for _, pattern := range c.Ignore {
		if _, err := regexp.Compile(pattern); err != nil {
			return fmt.Errorf("ignore pattern %q: %w", pattern, err)
		}
	}

	if c.Timezone != "" {
		loc, err := time.LoadLocation(c.Timezone)
		if err != nil {
			return fmt.Errorf("timezone %s: %w", c.Timezone, err)
		}
		c.location = loc
	}

	if c.Scheduled() {
		if _, err := cron.ParseStandard(c.Schedule); err != nil {
			return fmt.Errorf("schedule %q: %w", c.Schedule, err)
		}
	}

	switch c.Classifier.Type {
	case ClassifierHTTP, ClassifierLLM:
	default:
		return fmt.Errorf("classifier type %q is not supported", c.Classifier.Type)
	}

	return nil
}

func (c *Config) applyDefaults() {
	if c.Path == "" {
		c.Path = defaultPath
	}
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Classifier.Type == "" {
		c.Classifier.Type = defaultClassifierType
	}
	if c.Classifier.Endpoint == "" && c.Classifier.Type == ClassifierHTTP {
		c.Classifier.Endpoint = defaultClassifierURL
	}
	if c.Embeddings.Host == "" {
		c.Embeddings.Host = defaultEmbeddingsHost
	}
	if c.Embeddings.Model == "" {
		c.Embeddings.Model = defaultEmbeddingsModel
	}
	if c.Embeddings.Batch <= 0 {
		c.Embeddings.Batch = defaultEmbeddingsBatch
	}
	if c.Embeddings.Workers <= 0 {
		c.Embeddings.Workers = defaultWorkers
	}
	if c.Reddit != nil {
		if c.Reddit.Sort == "" {
			c.Reddit.Sort = defaultRedditSort
		}
		if c.Reddit.Time == "" {
			c.Reddit.Time = defaultRedditTime
		}
	}
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}

	if v := os.Getenv(classifierAPIKeyEnv); v != "" {
		c.Classifier.APIKey = v
	}

	if v := os.Getenv(embeddingsAPIKeyEnv); v != "" {
		c.Embeddings.APIKey = v
	}

	if v := os.Getenv(telegramTokenEnv); v != "" {
		c.Notifications.Telegram.BotToken = v
	}

	if v := os.Getenv(telegramChatIDEnv); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Notifications.Telegram.ChatID = id
		}
	}
}
