package parser

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"DecideInbox/internal/domain"
	"DecideInbox/internal/scanner"
)

const (
	githubSourceType = "github"
	defaultGitHubAPI = "https://api.github.com"
	githubBodyRunes  = 1500
)

// GitHubScanner reads repository activity (commits, issues, pulls, releases)
// through the GitHub REST API.
type GitHubScanner struct {
	client  *http.Client
	apiBase string
	token   string
	limiter *rate.Limiter
}

// NewGitHubScanner builds a scanner. apiBase may be empty for the public API;
// requestsPerMin <= 0 disables pacing.
func NewGitHubScanner(client *http.Client, apiBase, token string, requestsPerMin float64) *GitHubScanner {
	if apiBase == "" {
		apiBase = defaultGitHubAPI
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if requestsPerMin > 0 {
		limiter = rate.NewLimiter(rate.Limit(requestsPerMin/60), 1)
	}
	return &GitHubScanner{
		client:  defaultClient(client),
		apiBase: strings.TrimRight(apiBase, "/"),
		token:   token,
		limiter: limiter,
	}
}

// Name identifies the strategy inside the registry.
func (g *GitHubScanner) Name() string {
	return "github"
}

// Scan lists the newest activity of the repository named by req.URL.
// The resource comes from the URL path (github.com/o/r/issues) or the
// "resource" option and defaults to commits.
func (g *GitHubScanner) Scan(ctx context.Context, req scanner.Request) ([]domain.RawItem, error) {
	owner, repo, resource := parseGitHubURL(req.URL)
	if owner == "" || repo == "" {
		return nil, fmt.Errorf("github: cannot parse %q (expected github.com/owner/repo)", req.URL)
	}
	resource = req.Option("resource", resource)
	if resource == "" {
		resource = "commits"
	}

	perPage := req.Limit
	if perPage <= 0 || perPage > 100 {
		perPage = 30
	}

	apiURL, err := g.buildAPIURL(owner, repo, resource, req.Option("state", "open"), perPage)
	if err != nil {
		return nil, err
	}

	if err := g.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("github: wait for rate limiter: %w", err)
	}

	header := http.Header{
		"Accept":               []string{"application/vnd.github+json"},
		"X-Github-Api-Version": []string{"2022-11-28"},
	}
	if g.token != "" {
		header.Set("Authorization", "Bearer "+g.token)
	}

	body, err := fetchBody(ctx, g.client, apiURL, header)
	if err != nil {
		return nil, fmt.Errorf("github: %w", err)
	}

	items, err := parseGitHubItems(body, resource)
	if err != nil {
		return nil, fmt.Errorf("github: parse %s: %w", resource, err)
	}

	slug := owner + "/" + repo
	out := make([]domain.RawItem, 0, len(items))
	for _, it := range items {
		if req.Limit > 0 && len(out) >= req.Limit {
			break
		}
		it.ExternalID = slug + "#" + resource + ":" + it.ExternalID
		it.SourceName = req.Source
		it.SourceType = githubSourceType
		it.Summary = truncate(it.Summary, githubBodyRunes)
		it.Tags = append(it.Tags, slug)
		out = append(out, it)
	}
	return out, nil
}

func (g *GitHubScanner) buildAPIURL(owner, repo, resource, state string, perPage int) (string, error) {
	base, err := url.Parse(fmt.Sprintf("%s/repos/%s/%s/%s", g.apiBase, url.PathEscape(owner), url.PathEscape(repo), resource))
	if err != nil {
		return "", fmt.Errorf("github: build url: %w", err)
	}
	q := base.Query()
	q.Set("per_page", strconv.Itoa(perPage))
	switch resource {
	case "issues", "pulls":
		q.Set("state", state)
		q.Set("sort", "updated")
		q.Set("direction", "desc")
	case "releases", "commits":
	default:
		return "", fmt.Errorf("github: unsupported resource %q", resource)
	}
	base.RawQuery = q.Encode()
	return base.String(), nil
}

// parseGitHubURL extracts owner, repo and resource from a github.com URL.
func parseGitHubURL(rawURL string) (owner, repo, resource string) {
	u := rawURL
	matched := false
	for _, prefix := range []string{"https://github.com/", "http://github.com/", "github.com/"} {
		if strings.HasPrefix(u, prefix) {
			u = strings.TrimPrefix(u, prefix)
			matched = true
			break
		}
	}
	if !matched {
		return "", "", ""
	}
	u = strings.TrimRight(u, "/")

	parts := strings.SplitN(u, "/", 4)
	if len(parts) < 2 {
		return "", "", ""
	}
	owner, repo = parts[0], strings.TrimSuffix(parts[1], ".git")
	if len(parts) >= 3 {
		resource = parts[2]
	}
	return owner, repo, resource
}

type githubUser struct {
	Login string `json:"login"`
}

type githubCommit struct {
	SHA     string `json:"sha"`
	HTMLURL string `json:"html_url"`
	Commit  struct {
		Message string `json:"message"`
		Author  struct {
			Name string    `json:"name"`
			Date time.Time `json:"date"`
		} `json:"author"`
	} `json:"commit"`
}

type githubIssue struct {
	Number    int        `json:"number"`
	Title     string     `json:"title"`
	Body      string     `json:"body"`
	HTMLURL   string     `json:"html_url"`
	User      githubUser `json:"user"`
	UpdatedAt time.Time  `json:"updated_at"`
	Labels    []struct {
		Name string `json:"name"`
	} `json:"labels"`
	PullRequest *struct{} `json:"pull_request"`
}

type githubRelease struct {
	ID          int64      `json:"id"`
	TagName     string     `json:"tag_name"`
	Name        string     `json:"name"`
	Body        string     `json:"body"`
	HTMLURL     string     `json:"html_url"`
	Author      githubUser `json:"author"`
	Prerelease  bool       `json:"prerelease"`
	PublishedAt time.Time  `json:"published_at"`
}

func parseGitHubItems(body []byte, resource string) ([]domain.RawItem, error) {
	switch resource {
	case "issues", "pulls":
		var issues []githubIssue
		if err := json.Unmarshal(body, &issues); err != nil {
			return nil, err
		}
		items := make([]domain.RawItem, 0, len(issues))
		for _, is := range issues {
			// The issues endpoint also lists pull requests.
			if resource == "issues" && is.PullRequest != nil {
				continue
			}
			tags := make([]string, 0, len(is.Labels))
			for _, l := range is.Labels {
				tags = append(tags, l.Name)
			}
			items = append(items, domain.RawItem{
				ExternalID:  strconv.Itoa(is.Number),
				Title:       is.Title,
				Summary:     collapse(is.Body),
				URL:         is.HTMLURL,
				Author:      is.User.Login,
				Tags:        tags,
				PublishedAt: is.UpdatedAt,
			})
		}
		return items, nil

	case "releases":
		var releases []githubRelease
		if err := json.Unmarshal(body, &releases); err != nil {
			return nil, err
		}
		items := make([]domain.RawItem, 0, len(releases))
		for _, r := range releases {
			title := r.Name
			if title == "" {
				title = r.TagName
			} else if r.TagName != "" && r.TagName != title {
				title += " (" + r.TagName + ")"
			}
			var tags []string
			if r.Prerelease {
				tags = append(tags, "prerelease")
			}
			items = append(items, domain.RawItem{
				ExternalID:  strconv.FormatInt(r.ID, 10),
				Title:       title,
				Summary:     collapse(r.Body),
				URL:         r.HTMLURL,
				Author:      r.Author.Login,
				Tags:        tags,
				PublishedAt: r.PublishedAt,
			})
		}
		return items, nil

	default:
		var commits []githubCommit
		if err := json.Unmarshal(body, &commits); err != nil {
			return nil, err
		}
		items := make([]domain.RawItem, 0, len(commits))
		for _, c := range commits {
			if c.SHA == "" {
				continue
			}
			title, rest, _ := strings.Cut(c.Commit.Message, "\n")
			items = append(items, domain.RawItem{
				ExternalID:  c.SHA,
				Title:       strings.TrimSpace(title),
				Summary:     collapse(rest),
				URL:         c.HTMLURL,
				Author:      c.Commit.Author.Name,
				PublishedAt: c.Commit.Author.Date,
			})
		}
		return items, nil
	}
}
