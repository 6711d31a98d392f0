package feed

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"newsdigest/internal/domain"
	"newsdigest/internal/ports"
)

const (
	userAgent = "Mozilla/5.0 (compatible; NewsBot/1.0)"

	maxItems       = 15
	maxTitleLen    = 200
	maxDescLen     = 500
	maxDocumentLen = 4 << 20
)

// Feeds in the wild are frequently malformed, so items are carved out with
// tolerant expressions instead of a strict XML parser. An unreadable item is
// dropped; it never fails the document.
var (
	itemExpr  = regexp.MustCompile(`(?is)<item[^>]*>(.*?)</item>`)
	titleExpr = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
	descExpr  = regexp.MustCompile(`(?is)<description[^>]*>(.*?)</description>`)
	linkExpr  = regexp.MustCompile(`(?is)<link[^>]*>(.*?)</link>`)
	dateExpr  = regexp.MustCompile(`(?is)<pubDate[^>]*>(.*?)</pubDate>`)
	cdataExpr = regexp.MustCompile(`(?s)<!\[CDATA\[(.*?)\]\]>`)
)

// Fetcher retrieves feed documents over HTTP and extracts candidate items.
type Fetcher struct {
	client *http.Client
	logger *slog.Logger
}

var _ ports.FeedFetcher = (*Fetcher)(nil)

// NewFetcher wires an HTTP client; a nil client gets a 20s timeout default.
func NewFetcher(client *http.Client, logger *slog.Logger) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &Fetcher{client: client, logger: logger}
}

// Fetch performs a single GET against the feed URL and returns up to 15
// candidate items in document order. Transport errors and non-success
// statuses yield an empty slice.
func (f *Fetcher) Fetch(ctx context.Context, feedURL string) []domain.Item {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		f.warn("build feed request", feedURL, err)
		return nil
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		f.warn("fetch feed", feedURL, err)
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		f.warn("fetch feed", feedURL, nil, slog.String("status", resp.Status))
		return nil
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentLen))
	if err != nil {
		f.warn("read feed body", feedURL, err)
		return nil
	}

	items := extractItems(string(raw))
	if f.logger != nil {
		f.logger.Debug("feed fetched", "url", feedURL, "items", len(items))
	}
	return items
}

func (f *Fetcher) warn(msg, feedURL string, err error, extra ...any) {
	if f.logger == nil {
		return
	}
	args := append([]any{"url", feedURL}, extra...)
	if err != nil {
		args = append(args, "error", err)
	}
	f.logger.Warn(msg, args...)
}

func extractItems(doc string) []domain.Item {
	blocks := itemExpr.FindAllStringSubmatch(doc, maxItems)

	items := make([]domain.Item, 0, len(blocks))
	for _, block := range blocks {
		body := block[1]

		title := truncateRunes(cleanText(firstMatch(titleExpr, body)), maxTitleLen)
		desc := truncateRunes(cleanText(firstMatch(descExpr, body)), maxDescLen)
		link := strings.TrimSpace(unwrapCDATA(firstMatch(linkExpr, body)))
		pubDate := strings.TrimSpace(firstMatch(dateExpr, body))

		if title == "" || link == "" {
			continue
		}

		items = append(items, domain.Item{
			Title:       title,
			Description: desc,
			Link:        link,
			PubDate:     pubDate,
		})
	}

	return items
}

func firstMatch(expr *regexp.Regexp, body string) string {
	if m := expr.FindStringSubmatch(body); m != nil {
		return m[1]
	}
	return ""
}

func unwrapCDATA(s string) string {
	if m := cdataExpr.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	return s
}

// cleanText unwraps CDATA, strips embedded markup and unescapes entities.
// goquery tolerates arbitrarily broken fragments, which is exactly what
// feed titles and descriptions tend to be.
func cleanText(s string) string {
	s = unwrapCDATA(s)
	if strings.ContainsAny(s, "<&") {
		if frag, err := goquery.NewDocumentFromReader(strings.NewReader(s)); err == nil {
			s = frag.Text()
		}
	}
	return strings.TrimSpace(s)
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
