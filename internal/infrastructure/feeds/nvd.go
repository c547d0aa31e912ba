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

// NVDCollector reads the National Vulnerability Database RSS feed.
type NVDCollector struct {
	url    string
	client *http.Client
	now    func() time.Time
	logger *slog.Logger
}

var _ scanner.Collector = (*NVDCollector)(nil)

// NewNVDCollector wires an HTTP client; nil uses a 30s-timeout client.
func NewNVDCollector(url string, client *http.Client, logger *slog.Logger) *NVDCollector {
	return &NVDCollector{url: url, client: defaultClient(client), now: time.Now, logger: logger}
}

// Name identifies the collector inside the registry.
func (c *NVDCollector) Name() string {
	return domain.SourceNVD
}

// Collect converts feed entries into items. The CVE id in the title is the
// local id; entries without one use their GUID.
func (c *NVDCollector) Collect(ctx context.Context) ([]domain.Item, error) {
	feed, err := fetchFeed(ctx, c.client, c.url)
	if err != nil {
		return nil, err
	}

	now := c.now()
	items := make([]domain.Item, 0, len(feed.Items))
	for _, entry := range feed.Items {
		localID := strings.ToUpper(cveID.FindString(entry.Title))
		if localID == "" {
			localID = entryLocalID(entry)
		}
		if localID == "" {
			c.debug("skip entry without id", "title", entry.Title)
			continue
		}

		items = append(items, domain.Item{
			ID:          domain.MakeID(domain.SourceNVD, localID),
			Source:      domain.SourceNVD,
			Title:       strings.TrimSpace(entry.Title),
			Description: strings.TrimSpace(entryText(entry)),
			URL:         entry.Link,
			PublishedAt: entryTime(entry, now),
		})
	}

	c.debug("nvd collected", "count", len(items))
	return items, nil
}

func (c *NVDCollector) debug(msg string, args ...interface{}) {
	if c.logger != nil {
		c.logger.Debug(msg, args...)
	}
}
