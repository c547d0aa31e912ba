package feeds

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"AdvisoryScanner/internal/domain"
	"AdvisoryScanner/internal/scanner"
)

// THNCollector reads The Hacker News RSS feed.
type THNCollector struct {
	url    string
	client *http.Client
	now    func() time.Time
	logger *slog.Logger
}

var _ scanner.Collector = (*THNCollector)(nil)

// NewTHNCollector wires an HTTP client; nil uses a 30s-timeout client.
func NewTHNCollector(url string, client *http.Client, logger *slog.Logger) *THNCollector {
	return &THNCollector{url: url, client: defaultClient(client), now: time.Now, logger: logger}
}

// Name identifies the collector inside the registry.
func (c *THNCollector) Name() string {
	return domain.SourceTHN
}

// Collect converts feed entries into items with HTML-free descriptions.
func (c *THNCollector) Collect(ctx context.Context) ([]domain.Item, error) {
	feed, err := fetchFeed(ctx, c.client, c.url)
	if err != nil {
		return nil, err
	}

	now := c.now()
	items := make([]domain.Item, 0, len(feed.Items))
	for _, entry := range feed.Items {
		localID := entryLocalID(entry)
		if localID == "" {
			c.debug("skip entry without id", "title", entry.Title)
			continue
		}

		items = append(items, domain.Item{
			ID:          domain.MakeID(domain.SourceTHN, localID),
			Source:      domain.SourceTHN,
			Title:       strings.TrimSpace(entry.Title),
			Description: CleanHTML(entryText(entry)),
			URL:         entry.Link,
			PublishedAt: entryTime(entry, now),
		})
	}

	c.debug("thehackernews collected", "count", len(items))
	return items, nil
}

func (c *THNCollector) debug(msg string, args ...interface{}) {
	if c.logger != nil {
		c.logger.Debug(msg, args...)
	}
}
