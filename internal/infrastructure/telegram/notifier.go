package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"DecideInbox/internal/domain"
	"DecideInbox/internal/ports"
)

// DefaultAPIBase is the public bot API.
const DefaultAPIBase = "https://api.telegram.org"

// Notifier sends inbox-routed items to a Telegram chat via bot API.
type Notifier struct {
	apiBase  string
	botToken string
	chatID   string
	client   *http.Client
}

var _ ports.Notifier = (*Notifier)(nil)

// NewNotifier registers bot token and chat identifier. An empty apiBase uses
// DefaultAPIBase.
func NewNotifier(apiBase, botToken, chatID string) *Notifier {
	if apiBase == "" {
		apiBase = DefaultAPIBase
	}
	return &Notifier{
		apiBase:  strings.TrimRight(apiBase, "/"),
		botToken: botToken,
		chatID:   chatID,
		client:   &http.Client{Timeout: 5 * time.Second},
	}
}

// NotifyRouted posts one routed item as an HTML message.
func (n *Notifier) NotifyRouted(ctx context.Context, item domain.RoutedItem) error {
	return n.send(ctx, formatItem(item))
}

func (n *Notifier) send(ctx context.Context, text string) error {
	if n.botToken == "" || n.chatID == "" || n.client == nil {
		return fmt.Errorf("telegram notifier misconfigured")
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", n.apiBase, n.botToken)
	form := url.Values{}
	form.Set("chat_id", n.chatID)
	form.Set("text", text)
	form.Set("parse_mode", "HTML")
	form.Set("disable_web_page_preview", "true")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var body struct {
			Description string `json:"description"`
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(raw, &body) == nil && body.Description != "" {
			return fmt.Errorf("telegram error: %s: %s", resp.Status, body.Description)
		}
		return fmt.Errorf("telegram error: %s", resp.Status)
	}

	return nil
}

func formatItem(item domain.RoutedItem) string {
	c := item.Candidate
	var b strings.Builder
	fmt.Fprintf(&b, "<b>[%s] %s</b>\n", strings.ToUpper(string(c.Urgency)), html.EscapeString(string(c.Category)))
	b.WriteString(html.EscapeString(c.Title))
	if c.Summary != "" {
		b.WriteString("\n\n")
		b.WriteString(html.EscapeString(c.Summary))
	}
	if c.SuggestedAction != "" {
		fmt.Fprintf(&b, "\n\n<i>%s</i>", html.EscapeString(c.SuggestedAction))
	}
	if c.SourceURL != "" {
		fmt.Fprintf(&b, "\n%s", html.EscapeString(c.SourceURL))
	}
	fmt.Fprintf(&b, "\n<code>%s</code> · %.0f%%", html.EscapeString(c.SourceName), c.Confidence*100)
	return b.String()
}
