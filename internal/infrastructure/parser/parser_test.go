package parser

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"DecideInbox/internal/config"
	"DecideInbox/internal/domain"
	"DecideInbox/internal/scanner"
)

const rssFixture = `<?xml version="1.0"?>
<rss version="2.0" xmlns:dc="http://purl.org/dc/elements/1.1/">
  <channel>
    <title>Example</title>
    <item>
      <guid>urn:1</guid>
      <title>First post</title>
      <link>https://example.org/1</link>
      <description><![CDATA[<p>Hello <b>world</b></p>]]></description>
      <pubDate>Sat, 08 Nov 2025 10:00:00 +0000</pubDate>
      <dc:creator>alice</dc:creator>
      <category>go</category>
    </item>
    <item>
      <title>Second post</title>
      <link>https://example.org/2</link>
    </item>
    <item>
      <title>Third post</title>
      <link>https://example.org/3</link>
    </item>
  </channel>
</rss>`

const atomFixture = `<?xml version="1.0" encoding="utf-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>Atom</title>
  <entry>
    <id>tag:example.org,2025:1</id>
    <title>Atom entry</title>
    <link rel="alternate" href="https://example.org/a1"/>
    <summary>Plain summary</summary>
    <updated>2025-11-08T10:00:00Z</updated>
    <author><name>bob</name></author>
    <category term="release"/>
  </entry>
</feed>`

func TestFeedScannerRSS(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != userAgent {
			t.Errorf("missing user agent")
		}
		_, _ = w.Write([]byte(rssFixture))
	}))
	defer server.Close()

	sc := NewFeedScanner(server.Client())
	items, err := sc.Scan(context.Background(), scanner.Request{Source: "blog", URL: server.URL, Limit: 2})
	if err != nil {
		t.Fatalf("Scan error: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected limit to cap items at 2, got %d", len(items))
	}

	first := items[0]
	if first.ExternalID != "urn:1" || first.Title != "First post" {
		t.Fatalf("unexpected first item: %+v", first)
	}
	if first.Summary != "Hello world" {
		t.Fatalf("description should be reduced to text, got %q", first.Summary)
	}
	if first.Author != "alice" || first.SourceName != "blog" || first.SourceType != "feed" {
		t.Fatalf("unexpected metadata: %+v", first)
	}
	if len(first.Tags) != 1 || first.Tags[0] != "go" {
		t.Fatalf("unexpected tags: %v", first.Tags)
	}
	if first.PublishedAt.Format("2006-01-02") != "2025-11-08" {
		t.Fatalf("unexpected date: %v", first.PublishedAt)
	}
	if items[1].ExternalID != "https://example.org/2" {
		t.Fatalf("missing guid should fall back to link, got %q", items[1].ExternalID)
	}
}

func TestFeedScannerAtom(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(atomFixture))
	}))
	defer server.Close()

	items, err := NewFeedScanner(server.Client()).Scan(context.Background(), scanner.Request{URL: server.URL})
	if err != nil {
		t.Fatalf("Scan error: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
	if items[0].URL != "https://example.org/a1" || items[0].Author != "bob" {
		t.Fatalf("unexpected atom item: %+v", items[0])
	}
	if items[0].PublishedAt.IsZero() {
		t.Fatalf("updated should be used when published is missing")
	}
}

func TestFeedScannerRejectsUnknownDocument(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><body>nope</body></html>`))
	}))
	defer server.Close()

	if _, err := NewFeedScanner(server.Client()).Scan(context.Background(), scanner.Request{URL: server.URL}); err == nil {
		t.Fatalf("expected an error for a non-feed document")
	}
}

func TestParseGitHubURL(t *testing.T) {
	t.Parallel()

	owner, repo, resource := parseGitHubURL("https://github.com/golang/go/releases")
	if owner != "golang" || repo != "go" || resource != "releases" {
		t.Fatalf("unexpected parse: %s %s %s", owner, repo, resource)
	}
	if owner, _, _ := parseGitHubURL("https://gitlab.com/a/b"); owner != "" {
		t.Fatalf("non-github URL should not parse")
	}
}

func TestGitHubScannerReleases(t *testing.T) {
	t.Parallel()

	var gotAuth, gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		_, _ = w.Write([]byte(`[
			{"id": 7, "tag_name": "v1.2.0", "name": "Spring", "body": "notes\n\nmore", "html_url": "https://github.com/o/r/releases/7", "author": {"login": "carol"}, "prerelease": true, "published_at": "2025-11-08T10:00:00Z"}
		]`))
	}))
	defer server.Close()

	sc := NewGitHubScanner(server.Client(), server.URL, "secret", 0)
	items, err := sc.Scan(context.Background(), scanner.Request{Source: "o-r", URL: "https://github.com/o/r/releases", Limit: 5})
	if err != nil {
		t.Fatalf("Scan error: %v", err)
	}
	if gotAuth != "Bearer secret" {
		t.Fatalf("token not sent: %q", gotAuth)
	}
	if gotPath != "/repos/o/r/releases" {
		t.Fatalf("unexpected api path: %s", gotPath)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
	it := items[0]
	if it.ExternalID != "o/r#releases:7" || it.Title != "Spring (v1.2.0)" {
		t.Fatalf("unexpected release item: %+v", it)
	}
	if it.Summary != "notes more" || it.SourceType != "github" {
		t.Fatalf("unexpected summary/source: %+v", it)
	}
}

func TestGitHubScannerIssuesSkipPullRequests(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("state") != "closed" {
			t.Errorf("state option not forwarded: %s", r.URL.RawQuery)
		}
		_, _ = w.Write([]byte(`[
			{"number": 1, "title": "Bug", "body": "crash", "html_url": "u1", "labels": [{"name": "bug"}]},
			{"number": 2, "title": "PR", "html_url": "u2", "pull_request": {}}
		]`))
	}))
	defer server.Close()

	sc := NewGitHubScanner(server.Client(), server.URL, "", 600)
	items, err := sc.Scan(context.Background(), scanner.Request{
		URL:     "github.com/o/r",
		Options: map[string]string{"resource": "issues", "state": "closed"},
	})
	if err != nil {
		t.Fatalf("Scan error: %v", err)
	}
	if len(items) != 1 || items[0].Title != "Bug" || items[0].Tags[0] != "bug" {
		t.Fatalf("unexpected issues: %+v", items)
	}
}

func TestBuildPageURL(t *testing.T) {
	t.Parallel()

	u, err := buildPageURL("https://example.org/list?sort=new", "p", 3)
	if err != nil {
		t.Fatalf("buildPageURL returned error: %v", err)
	}
	parsed, err := url.Parse(u)
	if err != nil {
		t.Fatalf("parse result: %v", err)
	}
	if parsed.Query().Get("p") != "3" || parsed.Query().Get("sort") != "new" {
		t.Fatalf("unexpected query: %s", parsed.RawQuery)
	}
}

func TestPageScannerScan(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "2" {
			_, _ = w.Write([]byte(`<div class="post"><h2>Older</h2><a href="/posts/3">x</a></div>`))
			return
		}
		_, _ = w.Write([]byte(`
		<div class="post">
		  <h2>Fresh Article</h2>
		  <a href="/posts/1">read</a>
		  <p>brand   new.</p>
		  <span class="when">Date: 8 Nov 2025</span>
		</div>
		<div class="post">
		  <h2>Duplicate</h2>
		  <a href="/posts/1">read</a>
		</div>
		<div class="post"><p>no title or link</p></div>`))
	}))
	defer server.Close()

	sc := NewPageScanner(server.Client())
	items, err := sc.Scan(context.Background(), scanner.Request{
		Source: "blog",
		URL:    server.URL + "/list",
		Options: map[string]string{
			"item":  "div.post",
			"date":  ".when",
			"pages": "2",
		},
	})
	if err != nil {
		t.Fatalf("Scan error: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d: %+v", len(items), items)
	}
	if items[0].URL != server.URL+"/posts/1" || items[0].Summary != "brand new." {
		t.Fatalf("unexpected first item: %+v", items[0])
	}
	want := time.Date(2025, time.November, 8, 0, 0, 0, 0, time.UTC)
	if !items[0].PublishedAt.Equal(want) {
		t.Fatalf("unexpected date: %v", items[0].PublishedAt)
	}
	if items[1].Title != "Older" {
		t.Fatalf("second page not walked: %+v", items[1])
	}
}

type stubScanner struct {
	name  string
	items []domain.RawItem
	err   error
}

func (s stubScanner) Name() string { return s.name }

func (s stubScanner) Scan(_ context.Context, req scanner.Request) ([]domain.RawItem, error) {
	return s.items, s.err
}

func TestStrategySourceSkipsFailingSource(t *testing.T) {
	t.Parallel()

	reg := scanner.NewRegistry()
	reg.Register(stubScanner{name: "ok", items: []domain.RawItem{
		{ExternalID: "1", Title: "a"},
		{ExternalID: "2", Title: "b"},
		{ExternalID: "3", Title: "c"},
	}})
	reg.Register(stubScanner{name: "broken", err: errors.New("boom")})

	src := NewStrategySource(reg, []config.SourceConfig{
		{Name: "down", Scanner: "broken", URL: "x"},
		{Name: "up", Scanner: "ok", URL: "y"},
		{Name: "missing", Scanner: "nope", URL: "z"},
	}, 2, nil)

	items, err := src.Fetch(context.Background())
	if err == nil {
		t.Fatalf("expected joined error for failing sources")
	}
	if !strings.Contains(err.Error(), "down") || !strings.Contains(err.Error(), "missing") {
		t.Fatalf("error should name failing sources: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected per-source cap of 2, got %d", len(items))
	}
	for _, it := range items {
		if it.SourceName != "up" || it.SourceType != "ok" {
			t.Fatalf("source not stamped: %+v", it)
		}
		if it.ContentHash != domain.ContentHash("ok", it.ExternalID) {
			t.Fatalf("content hash not computed: %+v", it)
		}
	}
}
