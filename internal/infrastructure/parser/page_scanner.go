package parser

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"DecideInbox/internal/domain"
	"DecideInbox/internal/scanner"
)

const pageSourceType = "page"

var dateExpr = regexp.MustCompile(`\d{1,2} [A-Za-z]{3} \d{4}`)

// PageScanner extracts entries from an HTML listing page using CSS selectors
// supplied in the source options:
//
//	item     selector of one entry (default "article")
//	title    selector of the title inside an entry (default "h1, h2, h3")
//	link     selector of the anchor inside an entry (default "a[href]")
//	summary  selector of the teaser text (default "p")
//	date     selector holding a "2 Jan 2006" style date (optional)
//	pages    how many pages to walk (default 1)
//	pageParam query parameter carrying the page number (default "page")
type PageScanner struct {
	client *http.Client
}

// NewPageScanner wires an HTTP client; nil gets a client with a 20s timeout.
func NewPageScanner(client *http.Client) *PageScanner {
	return &PageScanner{client: defaultClient(client)}
}

// Name identifies the strategy inside the registry.
func (p *PageScanner) Name() string {
	return "page"
}

// Scan walks the configured pages and returns entries in page order.
func (p *PageScanner) Scan(ctx context.Context, req scanner.Request) ([]domain.RawItem, error) {
	base, err := url.Parse(req.URL)
	if err != nil {
		return nil, fmt.Errorf("page: invalid url %s: %w", req.URL, err)
	}

	pages, err := strconv.Atoi(req.Option("pages", "1"))
	if err != nil || pages < 1 {
		pages = 1
	}
	param := req.Option("pageParam", "page")

	var (
		results []domain.RawItem
		seen    = map[string]struct{}{}
	)
	for page := 1; page <= pages; page++ {
		pageURL := req.URL
		if page > 1 {
			if pageURL, err = buildPageURL(req.URL, param, page); err != nil {
				return nil, err
			}
		}

		doc, err := p.fetchDocument(ctx, pageURL)
		if err != nil {
			if page > 1 && len(results) > 0 {
				break
			}
			return nil, err
		}

		found := 0
		doc.Find(req.Option("item", "article")).Each(func(_ int, sel *goquery.Selection) {
			item, ok := parseEntry(sel, base, req)
			if !ok {
				return
			}
			found++
			if _, dup := seen[item.ExternalID]; dup {
				return
			}
			seen[item.ExternalID] = struct{}{}
			results = append(results, item)
		})

		if found == 0 || (req.Limit > 0 && len(results) >= req.Limit) {
			break
		}
	}

	if req.Limit > 0 && len(results) > req.Limit {
		results = results[:req.Limit]
	}
	return results, nil
}

func (p *PageScanner) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	body, err := fetchBody(ctx, p.client, pageURL, http.Header{"Accept": []string{"text/html"}})
	if err != nil {
		return nil, fmt.Errorf("page: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("page: parse document: %w", err)
	}
	return doc, nil
}

func parseEntry(sel *goquery.Selection, base *url.URL, req scanner.Request) (domain.RawItem, bool) {
	anchor := sel.Find(req.Option("link", "a[href]")).First()
	if goquery.NodeName(sel) == "a" {
		anchor = sel
	}
	href, _ := anchor.Attr("href")
	href = strings.TrimSpace(href)
	if href != "" {
		if ref, err := url.Parse(href); err == nil {
			href = base.ResolveReference(ref).String()
		}
	}

	title := collapse(sel.Find(req.Option("title", "h1, h2, h3")).First().Text())
	if title == "" {
		title = collapse(anchor.Text())
	}
	if title == "" || href == "" {
		return domain.RawItem{}, false
	}

	summary := collapse(sel.Find(req.Option("summary", "p")).First().Text())

	var publishedAt time.Time
	if dateSel := req.Option("date", ""); dateSel != "" {
		if match := dateExpr.FindString(sel.Find(dateSel).First().Text()); match != "" {
			if parsed, err := time.Parse("2 Jan 2006", match); err == nil {
				publishedAt = parsed
			}
		}
	}

	return domain.RawItem{
		ExternalID:  href,
		Title:       title,
		Summary:     truncate(summary, feedSummaryRunes),
		URL:         href,
		SourceName:  req.Source,
		SourceType:  pageSourceType,
		PublishedAt: publishedAt,
	}, true
}

func buildPageURL(base, param string, page int) (string, error) {
	parsed, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("page: invalid url %s: %w", base, err)
	}

	query := parsed.Query()
	query.Set(param, strconv.Itoa(page))
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}
