package feeds

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
)

const userAgent = "AdvisoryScanner/1.0"

var cveID = regexp.MustCompile(`(?i)cve-\d{4}-\d+`)

func defaultClient(client *http.Client) *http.Client {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return client
}

func fetchFeed(ctx context.Context, client *http.Client, url string) (*gofeed.Feed, error) {
	parser := gofeed.NewParser()
	parser.Client = client
	parser.UserAgent = userAgent

	feed, err := parser.ParseURLWithContext(url, ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch feed %s: %w", url, err)
	}
	return feed, nil
}

// entryTime prefers the published date, then the updated date, then now.
func entryTime(entry *gofeed.Item, now time.Time) time.Time {
	if entry.PublishedParsed != nil {
		return *entry.PublishedParsed
	}
	if entry.UpdatedParsed != nil {
		return *entry.UpdatedParsed
	}
	return now
}

// entryText returns the description, falling back to the full content.
func entryText(entry *gofeed.Item) string {
	if strings.TrimSpace(entry.Description) != "" {
		return entry.Description
	}
	return entry.Content
}

// entryLocalID returns the GUID, or a hash of the link when there is none.
func entryLocalID(entry *gofeed.Item) string {
	if id := strings.TrimSpace(entry.GUID); id != "" {
		return id
	}
	if link := strings.TrimSpace(entry.Link); link != "" {
		return linkHash(link)
	}
	return ""
}
