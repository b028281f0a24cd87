package usecase

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"StoryIndexer/internal/domain"
	"StoryIndexer/internal/ports"
)

var (
	schemePrefix = regexp.MustCompile(`(?i)^https?://(www\.)?`)
	indexSuffix  = regexp.MustCompile(`index\.html?$`)
)

// Verdict is the outcome of the acceptance check for one article.
type Verdict string

const (
	VerdictAccepted  Verdict = "accepted"
	VerdictDuplicate Verdict = "duplicate"
	VerdictScheme    Verdict = "scheme"
	VerdictIgnored   Verdict = "ignored"
)

// Accepted reports whether the article should be persisted.
func (v Verdict) Accepted() bool {
	return v == VerdictAccepted
}

// BaseURL canonicalizes url for duplicate detection: query parameters,
// scheme, www prefix, index page suffix and trailing slashes are removed.
func BaseURL(url string) string {
	url, _, _ = strings.Cut(url, "?")
	url = schemePrefix.ReplaceAllString(url, "")
	url = indexSuffix.ReplaceAllString(url, "")
	return strings.TrimRight(url, "/")
}

// Filter decides whether fetched articles are new content worth persisting.
type Filter struct {
	ignore []*regexp.Regexp
}

// NewFilter compiles the ignore patterns once per run.
func NewFilter(ignore []string) (*Filter, error) {
	compiled := make([]*regexp.Regexp, 0, len(ignore))
	for _, pattern := range ignore {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("compile ignore pattern %q: %w", pattern, err)
		}
		compiled = append(compiled, re)
	}
	return &Filter{ignore: compiled}, nil
}

// Check runs the duplicate, scheme and ignore-list rules in that order.
// The lookup must see rows saved earlier in the same run.
func (f *Filter) Check(ctx context.Context, lookup ports.ArticleLookup, article domain.Article) (Verdict, error) {
	exists, err := lookup.Exists(ctx, article.UID, BaseURL(article.URL))
	if err != nil {
		return "", fmt.Errorf("lookup article %s: %w", article.UID, err)
	}
	if exists {
		return VerdictDuplicate, nil
	}

	if !hasHTTPScheme(article.URL) {
		return VerdictScheme, nil
	}

	for _, re := range f.ignore {
		if re.MatchString(article.URL) {
			return VerdictIgnored, nil
		}
	}

	return VerdictAccepted, nil
}

// Accept is the boolean form of Check.
func (f *Filter) Accept(ctx context.Context, lookup ports.ArticleLookup, article domain.Article) (bool, error) {
	verdict, err := f.Check(ctx, lookup, article)
	if err != nil {
		return false, err
	}
	return verdict.Accepted(), nil
}

func hasHTTPScheme(url string) bool {
	lower := strings.ToLower(url)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}
