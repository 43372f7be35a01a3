// Package discord posts commit reports and cycle digests to a Discord
// webhook. Commit reports become embeds; digests are sent as plain
// message content.
package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dustin/go-humanize"

	"github.com/gitreporter/git-reporter/internal/notify"
	"github.com/gitreporter/git-reporter/internal/report"
)

// Compile-time interface conformance check.
var _ notify.Notifier = (*Webhook)(nil)

// DefaultTimeout bounds a single webhook POST.
const DefaultTimeout = 10 * time.Second

// Message limits from the Discord developer documentation. Anything
// longer is truncated before sending.
const (
	maxContentLength     = 2000
	maxTitleLength       = 256
	maxDescriptionLength = 4096
	maxFieldLength       = 1024
	maxFields            = 25
)

const (
	colorGreen = 0x00ff00
	colorRed   = 0xff0000
)

const timestampLayout = "2006-01-02 15:04:05"

// RateLimitError reports a 429 response with the advised wait.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("discord: rate limited, retry after %s", e.RetryAfter)
}

// StatusError reports any other non-2xx webhook response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("discord: webhook returned %d: %s", e.Code, e.Body)
}

// Options configures a Webhook.
type Options struct {
	URL      string
	Username string        // overrides the webhook's display name when set
	Timeout  time.Duration // ignored when Client is set
	Client   *http.Client
}

// Webhook posts messages to a single Discord webhook URL. It performs
// no retries; rate limits and failures surface as typed errors for the
// caller to handle.
type Webhook struct {
	url      string
	username string
	client   *http.Client
}

// NewWebhook creates a webhook client.
func NewWebhook(opts Options) (*Webhook, error) {
	if opts.URL == "" {
		return nil, errors.New("discord: webhook URL is required")
	}
	client := opts.Client
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	return &Webhook{url: opts.URL, username: opts.Username, client: client}, nil
}

type payload struct {
	Username string  `json:"username,omitempty"`
	Content  string  `json:"content,omitempty"`
	Embeds   []embed `json:"embeds,omitempty"`
}

type embed struct {
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
	Color       int          `json:"color,omitempty"`
	Fields      []embedField `json:"fields,omitempty"`
}

type embedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

// Notify posts one commit report as an embed.
func (w *Webhook) Notify(ctx context.Context, rep *report.CommitReport) error {
	return w.post(ctx, payload{
		Username: w.username,
		Embeds:   []embed{buildEmbed(rep)},
	})
}

// NotifyDigest posts a cycle digest as plain message content.
func (w *Webhook) NotifyDigest(ctx context.Context, d *report.Digest) error {
	return w.post(ctx, payload{
		Username: w.username,
		Content:  truncate(renderDigest(d), maxContentLength),
	})
}

func buildEmbed(rep *report.CommitReport) embed {
	color := colorGreen
	if rep.Bugfix {
		color = colorRed
	}

	e := embed{
		Title:       truncate("New Commit: "+rep.Commit.ShortSHA(), maxTitleLength),
		Description: truncate(rep.Commit.Message, maxDescriptionLength),
		Color:       color,
	}
	e.Fields = append(e.Fields,
		embedField{Name: "Author", Value: truncate(rep.Commit.Author.String(), maxFieldLength), Inline: true},
		embedField{Name: "Date", Value: rep.Commit.When.Format(timestampLayout), Inline: true},
	)

	for _, cat := range rep.Categories {
		if len(e.Fields) == maxFields {
			break
		}
		e.Fields = append(e.Fields, embedField{
			Name:  cat.Name + " Changes",
			Value: truncate(categoryValue(cat), maxFieldLength),
		})
	}
	return e
}

func categoryValue(cat report.CategoryChanges) string {
	var b strings.Builder
	for i, f := range cat.Files {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "• [%s] %s", f.Kind.Letter(), f.Path)
	}
	if cat.More > 0 {
		fmt.Fprintf(&b, "\n... and %d more", cat.More)
	}
	return b.String()
}

func renderDigest(d *report.Digest) string {
	lines := []string{
		fmt.Sprintf("**🎮 %s Update**", d.Project),
		fmt.Sprintf("*Report Time: %s*\n", d.When.Format(timestampLayout)),
	}

	if len(d.Uncommitted) > 0 {
		entries := make([]string, 0, len(d.Uncommitted))
		for _, e := range d.Uncommitted {
			entries = append(entries, e.Line())
		}
		lines = append(lines, "**📝 Uncommitted Changes:**", "```", strings.Join(entries, "\n"), "```\n")
	}

	if len(d.Recent) > 0 {
		commits := make([]string, 0, len(d.Recent))
		for _, c := range d.Recent {
			commits = append(commits, fmt.Sprintf("%s - %s - by %s (%s)",
				c.ShortSHA(), c.Message, c.Author.Name, humanize.Time(c.When)))
		}
		lines = append(lines, "**🔄 Recent Commits:**", "```", strings.Join(commits, "\n"), "```")
	}

	return strings.Join(lines, "\n")
}

func (w *Webhook) post(ctx context.Context, p payload) error {
	var body bytes.Buffer
	enc := json.NewEncoder(&body)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(p); err != nil {
		return fmt.Errorf("discord: encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, &body)
	if err != nil {
		return fmt.Errorf("discord: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("discord: post webhook: %w", err)
	}
	defer resp.Body.Close()

	// The webhook endpoint answers 204 No Content on success.
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	if resp.StatusCode == http.StatusTooManyRequests {
		return &RateLimitError{RetryAfter: retryAfter(snippet)}
	}
	return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
}

// retryAfter pulls the advised wait out of a 429 body. Discord reports
// it in seconds, as a float.
func retryAfter(body []byte) time.Duration {
	var rl struct {
		RetryAfter float64 `json:"retry_after"`
	}
	if err := json.Unmarshal(body, &rl); err != nil {
		return 0
	}
	return time.Duration(rl.RetryAfter * float64(time.Second))
}

// truncate shortens s to at most max bytes without splitting a rune.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max - 3
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
