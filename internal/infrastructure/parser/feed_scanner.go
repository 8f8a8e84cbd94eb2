package parser

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"strings"
	"time"

	"DecideInbox/internal/domain"
	"DecideInbox/internal/scanner"
)

const (
	feedSourceType   = "feed"
	feedSummaryRunes = 1200
)

var feedDateLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	time.RFC3339,
	time.RFC3339Nano,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// FeedScanner reads RSS 2.0 and Atom 1.0 feeds.
type FeedScanner struct {
	client *http.Client
}

// NewFeedScanner wires an HTTP client; nil gets a client with a 20s timeout.
func NewFeedScanner(client *http.Client) *FeedScanner {
	return &FeedScanner{client: defaultClient(client)}
}

// Name identifies the strategy inside the registry.
func (f *FeedScanner) Name() string {
	return "feed"
}

// Scan downloads the feed and maps its newest entries to raw items.
func (f *FeedScanner) Scan(ctx context.Context, req scanner.Request) ([]domain.RawItem, error) {
	body, err := fetchBody(ctx, f.client, req.URL, http.Header{
		"Accept": []string{"application/rss+xml, application/atom+xml, application/xml;q=0.9, */*;q=0.5"},
	})
	if err != nil {
		return nil, err
	}

	entries, err := parseFeed(body)
	if err != nil {
		return nil, err
	}

	items := make([]domain.RawItem, 0, len(entries))
	for _, e := range entries {
		if req.Limit > 0 && len(items) >= req.Limit {
			break
		}
		id := e.guid
		if id == "" {
			id = e.link
		}
		if id == "" || e.title == "" {
			continue
		}

		summary := e.description
		if summary == "" {
			summary = e.content
		}

		items = append(items, domain.RawItem{
			ExternalID:  id,
			Title:       htmlText(e.title),
			Summary:     truncate(htmlText(summary), feedSummaryRunes),
			URL:         e.link,
			Author:      e.author,
			SourceName:  req.Source,
			SourceType:  feedSourceType,
			Tags:        e.categories,
			PublishedAt: parseFeedDate(e.published),
		})
	}
	return items, nil
}

type feedEntry struct {
	guid        string
	title       string
	link        string
	description string
	content     string
	published   string
	author      string
	categories  []string
}

func parseFeed(data []byte) ([]feedEntry, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("feed: empty document")
	}
	switch detectFeedFormat(data) {
	case "rss":
		return parseRSS(data)
	case "atom":
		return parseAtom(data)
	default:
		return nil, fmt.Errorf("feed: unknown format (expected <rss> or <feed>)")
	}
}

func detectFeedFormat(data []byte) string {
	d := xml.NewDecoder(bytes.NewReader(data))
	d.Strict = false
	for {
		tok, err := d.Token()
		if err != nil {
			return ""
		}
		if se, ok := tok.(xml.StartElement); ok {
			switch strings.ToLower(se.Name.Local) {
			case "rss", "rdf":
				return "rss"
			case "feed":
				return "atom"
			default:
				return ""
			}
		}
	}
}

type rssDocument struct {
	Channel struct {
		Items []rssItem `xml:"item"`
	} `xml:"channel"`
	// RSS 1.0 (RDF) places items beside the channel.
	Items []rssItem `xml:"item"`
}

type rssItem struct {
	GUID        string   `xml:"guid"`
	Title       string   `xml:"title"`
	Link        string   `xml:"link"`
	Description string   `xml:"description"`
	Content     string   `xml:"encoded"`
	PubDate     string   `xml:"pubDate"`
	Date        string   `xml:"date"`
	Author      string   `xml:"author"`
	Creator     string   `xml:"creator"`
	Categories  []string `xml:"category"`
}

func parseRSS(data []byte) ([]feedEntry, error) {
	var doc rssDocument
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("feed: parse rss: %w", err)
	}

	items := append(doc.Channel.Items, doc.Items...)
	entries := make([]feedEntry, 0, len(items))
	for _, it := range items {
		author := strings.TrimSpace(it.Author)
		if author == "" {
			author = strings.TrimSpace(it.Creator)
		}
		published := strings.TrimSpace(it.PubDate)
		if published == "" {
			published = strings.TrimSpace(it.Date)
		}
		entries = append(entries, feedEntry{
			guid:        strings.TrimSpace(it.GUID),
			title:       strings.TrimSpace(it.Title),
			link:        strings.TrimSpace(it.Link),
			description: strings.TrimSpace(it.Description),
			content:     strings.TrimSpace(it.Content),
			published:   published,
			author:      author,
			categories:  trimAll(it.Categories),
		})
	}
	return entries, nil
}

type atomDocument struct {
	Entries []atomEntry `xml:"entry"`
}

type atomLink struct {
	Href string `xml:"href,attr"`
	Rel  string `xml:"rel,attr"`
}

type atomEntry struct {
	ID        string     `xml:"id"`
	Title     string     `xml:"title"`
	Links     []atomLink `xml:"link"`
	Summary   string     `xml:"summary"`
	Content   string     `xml:"content"`
	Published string     `xml:"published"`
	Updated   string     `xml:"updated"`
	Authors   []struct {
		Name string `xml:"name"`
	} `xml:"author"`
	Categories []struct {
		Term string `xml:"term,attr"`
	} `xml:"category"`
}

func parseAtom(data []byte) ([]feedEntry, error) {
	var doc atomDocument
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("feed: parse atom: %w", err)
	}

	entries := make([]feedEntry, 0, len(doc.Entries))
	for _, e := range doc.Entries {
		published := strings.TrimSpace(e.Published)
		if published == "" {
			published = strings.TrimSpace(e.Updated)
		}
		var author string
		if len(e.Authors) > 0 {
			author = strings.TrimSpace(e.Authors[0].Name)
		}
		var cats []string
		for _, c := range e.Categories {
			if term := strings.TrimSpace(c.Term); term != "" {
				cats = append(cats, term)
			}
		}
		entries = append(entries, feedEntry{
			guid:        strings.TrimSpace(e.ID),
			title:       strings.TrimSpace(e.Title),
			link:        atomEntryLink(e.Links),
			description: strings.TrimSpace(e.Summary),
			content:     strings.TrimSpace(e.Content),
			published:   published,
			author:      author,
			categories:  cats,
		})
	}
	return entries, nil
}

func atomEntryLink(links []atomLink) string {
	for _, l := range links {
		if l.Rel == "alternate" || l.Rel == "" {
			return strings.TrimSpace(l.Href)
		}
	}
	if len(links) > 0 {
		return strings.TrimSpace(links[0].Href)
	}
	return ""
}

func parseFeedDate(value string) time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}
	}
	for _, layout := range feedDateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func trimAll(values []string) []string {
	var out []string
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
