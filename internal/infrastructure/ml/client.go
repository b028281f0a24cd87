package ml

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"StoryIndexer/internal/domain"
	"StoryIndexer/internal/ports"
)

// Client talks to an external zero-shot labels service. The service takes
// {"text", "labels"} on POST /label and answers with [{"id", "score"}],
// where id indexes the submitted labels.
type Client struct {
	endpoint string
	apiKey   string
	http     *http.Client
}

var _ ports.Classifier = (*Client)(nil)

// NewClient creates a reusable HTTP client.
func NewClient(endpoint, apiKey string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		endpoint: strings.TrimRight(endpoint, "/"),
		apiKey:   apiKey,
		http:     httpClient,
	}
}

type labelRequest struct {
	Text   string   `json:"text"`
	Labels []string `json:"labels"`
}

type labelScore struct {
	ID    int     `json:"id"`
	Score float64 `json:"score"`
}

// Classify scores text against labels, in the order the service returns.
func (c *Client) Classify(ctx context.Context, text string, labels []string) ([]domain.LabelScore, error) {
	if len(labels) == 0 {
		return nil, nil
	}

	var scores []labelScore
	if err := c.post(ctx, "/label", labelRequest{Text: text, Labels: labels}, &scores); err != nil {
		return nil, err
	}

	result := make([]domain.LabelScore, 0, len(scores))
	for _, s := range scores {
		if s.ID < 0 || s.ID >= len(labels) {
			return nil, fmt.Errorf("label id %d out of range for %d labels", s.ID, len(labels))
		}
		result = append(result, domain.LabelScore{Name: labels[s.ID], Score: s.Score})
	}
	return result, nil
}

func (c *Client) post(ctx context.Context, path string, payload any, v any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		closeErr := resp.Body.Close()
		if closeErr != nil {
			return fmt.Errorf("unexpected status %s, close body: %v", resp.Status, closeErr)
		}
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		_ = resp.Body.Close()
		return fmt.Errorf("decode response: %w", err)
	}

	if err := resp.Body.Close(); err != nil {
		return fmt.Errorf("close response body: %w", err)
	}

	return nil
}
