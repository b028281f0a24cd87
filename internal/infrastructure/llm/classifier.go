package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"StoryIndexer/internal/config"
	"StoryIndexer/internal/domain"
	"StoryIndexer/internal/ports"
)

const (
	maxAttempts   = 3
	defaultPrompt = `You are a zero-shot text classifier. You receive a headline and a list of candidate labels.
Score how well each label describes the headline with a number between 0 and 1.
Answer with JSON only, in the form {"scores": {"<label>": <score>, ...}}, using every label exactly once.`
)

// ErrMalformedResponse is returned when the model never produces parseable JSON.
var ErrMalformedResponse = errors.New("malformed classifier response")

type generator interface {
	GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error)
}

// Classifier scores headlines with a chat model through an OpenAI-compatible API.
type Classifier struct {
	client       generator
	systemPrompt string
	logger       *slog.Logger
}

var _ ports.Classifier = (*Classifier)(nil)

// NewClassifier builds a classifier from configuration.
func NewClassifier(cfg config.ClassifierConfig, logger *slog.Logger) (*Classifier, error) {
	token := cfg.APIKey
	if token == "" {
		token = "none"
	}

	opts := []openai.Option{openai.WithToken(token), openai.WithModel(cfg.Model)}
	if cfg.Endpoint != "" {
		opts = append(opts, openai.WithBaseURL(cfg.Endpoint))
	}

	client, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create llm client: %w", err)
	}
	return newClassifier(client, cfg.SystemPrompt, logger), nil
}

func newClassifier(client generator, prompt string, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		prompt = defaultPrompt
	}
	return &Classifier{
		client:       client,
		systemPrompt: prompt,
		logger:       logger.With("component", "llm-classifier"),
	}
}

type classification struct {
	Scores map[string]float64 `json:"scores"`
}

// Classify returns one score per label, in vocabulary order.
func (c *Classifier) Classify(ctx context.Context, text string, labels []string) ([]domain.LabelScore, error) {
	if len(labels) == 0 {
		return nil, nil
	}

	user, err := json.Marshal(map[string]any{"text": text, "labels": labels})
	if err != nil {
		return nil, fmt.Errorf("marshal prompt: %w", err)
	}

	content := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, c.systemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, string(user)),
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		response, err := c.client.GenerateContent(ctx, content, llms.WithTemperature(0.0), llms.WithJSONMode())
		if err != nil {
			return nil, fmt.Errorf("generate content: %w", err)
		}
		if len(response.Choices) == 0 {
			lastErr = fmt.Errorf("%w: no choices", ErrMalformedResponse)
			continue
		}

		scores, err := parseScores(response.Choices[0].Content, labels)
		if err != nil {
			lastErr = err
			c.logger.Warn("parse classifier response", "attempt", attempt, "error", err)
			continue
		}
		return scores, nil
	}

	return nil, lastErr
}

func parseScores(raw string, labels []string) ([]domain.LabelScore, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)

	var result classification
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if result.Scores == nil {
		return nil, fmt.Errorf("%w: missing scores", ErrMalformedResponse)
	}

	scores := make([]domain.LabelScore, 0, len(labels))
	for _, label := range labels {
		score := result.Scores[label]
		scores = append(scores, domain.LabelScore{Name: label, Score: min(max(score, 0), 1)})
	}
	return scores, nil
}
