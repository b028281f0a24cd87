package parser

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"

	"StoryIndexer/internal/config"
	"StoryIndexer/internal/domain"
	"StoryIndexer/internal/logging"
)

func TestBuildPageURL(t *testing.T) {
	t.Parallel()

	base := "https://export.arxiv.org/list/cs.AI/pastweek"
	u, err := buildPageURL(base, 200, 100)
	if err != nil {
		t.Fatalf("buildPageURL returned error: %v", err)
	}

	parsed, err := url.Parse(u)
	if err != nil {
		t.Fatalf("parse result: %v", err)
	}

	if parsed.Scheme != "https" || parsed.Host != "export.arxiv.org" {
		t.Fatalf("unexpected host: %s", parsed.Host)
	}

	q := parsed.Query()
	if q.Get("skip") != "200" {
		t.Fatalf("expected skip=200, got %s", q.Get("skip"))
	}
	if q.Get("show") != "100" {
		t.Fatalf("expected show=100, got %s", q.Get("show"))
	}
}

func TestParseEntry(t *testing.T) {
	t.Parallel()

	html := `
	<dl>
	  <dt>
	    <span class="list-identifier"><a href="/abs/1234.56789">arXiv:1234.56789</a></span>
	  </dt>
	  <dd>
	    <div class="list-date">Date: 8 Nov 2025</div>
	    <div class="list-title mathjax">Title: Sample Title</div>
	    <p class="mathjax">Abstract: Sample abstract text.</p>
	  </dd>
	</dl>`

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		t.Fatalf("new document: %v", err)
	}

	now := time.Date(2025, time.November, 9, 10, 0, 0, 0, time.UTC)
	article, ok := parseEntry(doc.Find("dt").First(), doc.Find("dd").First(), "cs.AI", now)
	if !ok {
		t.Fatal("parseEntry rejected a valid entry")
	}

	if article.UID != "arXiv:1234.56789" {
		t.Fatalf("unexpected id: %s", article.UID)
	}
	if article.Title != "Sample Title" {
		t.Fatalf("unexpected title: %s", article.Title)
	}
	if article.URL != "https://arxiv.org/abs/1234.56789" {
		t.Fatalf("unexpected url: %s", article.URL)
	}
	if article.Source != "arxiv/cs.AI" {
		t.Fatalf("unexpected source: %s", article.Source)
	}
	if article.Date.Format("2006-01-02") != "2025-11-08" {
		t.Fatalf("unexpected published date: %v", article.Date)
	}
	if !article.Entry.Equal(now) {
		t.Fatalf("unexpected entry time: %v", article.Entry)
	}
}

func TestParseEntrySkipsMissingLink(t *testing.T) {
	t.Parallel()

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(`<dl><dt></dt><dd><div class="list-title">Title: X</div></dd></dl>`))
	if err != nil {
		t.Fatalf("new document: %v", err)
	}

	if _, ok := parseEntry(doc.Find("dt").First(), doc.Find("dd").First(), "", time.Now()); ok {
		t.Fatal("expected entry without link to be skipped")
	}
}

func TestArxivSourceRun(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`
		<dl>
		  <dt>
		    <span class="list-identifier"><a href="/abs/2501.00001">arXiv:2501.00001</a></span>
		  </dt>
		  <dd>
		    <div class="list-date">Date: 8 Nov 2025</div>
		    <div class="list-title mathjax">Title: Fresh Article</div>
		  </dd>
		  <dt>
		    <span class="list-identifier"><a href="/abs/2501.00002">arXiv:2501.00002</a></span>
		  </dt>
		  <dd>
		    <div class="list-date">Date: 7 Nov 2025</div>
		    <div class="list-title mathjax">Title: Old Article</div>
		  </dd>
		</dl>`))
	}))
	defer server.Close()

	cfg := config.Config{Custom: config.CustomConfig{
		Categories: []config.CategoryURL{{Name: "cs.AI", URL: server.URL + "/list/cs.AI"}},
	}}

	src, err := NewArxivSource(cfg, server.Client(), logging.Discard())
	if err != nil {
		t.Fatalf("NewArxivSource error: %v", err)
	}
	src.pageSize = 10
	src.now = func() time.Time { return time.Date(2025, time.November, 8, 18, 0, 0, 0, time.UTC) }

	var articles []domain.Article
	for article, err := range src.Run(context.Background()) {
		if err != nil {
			t.Fatalf("Run error: %v", err)
		}
		articles = append(articles, article)
	}

	if len(articles) != 1 {
		t.Fatalf("expected 1 article, got %d", len(articles))
	}
	if articles[0].UID != "arXiv:2501.00001" {
		t.Fatalf("unexpected article id: %s", articles[0].UID)
	}
}

func TestArxivSourceLookback(t *testing.T) {
	t.Parallel()

	cfg := config.Config{Custom: config.CustomConfig{
		Categories: []config.CategoryURL{{Name: "cs.AI", URL: "https://export.arxiv.org/list/cs.AI/pastweek"}},
		Options:    map[string]string{"lookback": "3"},
	}}

	src, err := NewArxivSource(cfg, nil, nil)
	if err != nil {
		t.Fatalf("NewArxivSource error: %v", err)
	}
	if src.lookback != 3 {
		t.Fatalf("expected lookback 3, got %d", src.lookback)
	}

	cfg.Custom.Options["lookback"] = "zero"
	if _, err := NewArxivSource(cfg, nil, nil); err == nil {
		t.Fatal("expected invalid lookback error")
	}

	if _, err := NewArxivSource(config.Config{}, nil, nil); err == nil {
		t.Fatal("expected missing categories error")
	}
}
