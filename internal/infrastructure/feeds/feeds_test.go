package feeds

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"AdvisoryScanner/internal/domain"
	"AdvisoryScanner/internal/scanner"
)

const nvdFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>NVD</title>
    <item>
      <title>cve-2025-12345 (spring-boot)</title>
      <link>https://nvd.nist.gov/vuln/detail/CVE-2025-12345</link>
      <description>Remote code execution in Spring Boot Actuator.</description>
      <guid>https://nvd.nist.gov/vuln/detail/CVE-2025-12345</guid>
      <pubDate>Mon, 03 Mar 2025 10:00:00 GMT</pubDate>
    </item>
    <item>
      <title>Advisory without identifier</title>
      <link>https://nvd.nist.gov/x</link>
      <description>Something</description>
      <guid>nvd-guid-7</guid>
    </item>
  </channel>
</rss>`

const thnFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>The Hacker News</title>
    <item>
      <title>Critical Next.js Flaw</title>
      <link>https://thehackernews.com/2025/03/nextjs.html</link>
      <description><![CDATA[<p>Attackers   bypass <b>middleware</b> auth.</p><img src="x.png"/>]]></description>
      <guid>https://thehackernews.com/2025/03/nextjs.html#guid</guid>
      <pubDate>Tue, 04 Mar 2025 08:00:00 GMT</pubDate>
    </item>
    <item>
      <title>No guid here</title>
      <link>https://thehackernews.com/2025/03/other.html</link>
      <description>plain</description>
    </item>
  </channel>
</rss>`

func serve(t *testing.T, body string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestNVDCollector(t *testing.T) {
	t.Parallel()

	server := serve(t, nvdFeed)
	now := time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC)
	c := NewNVDCollector(server.URL, server.Client(), nil)
	c.now = func() time.Time { return now }

	items, err := c.Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, "nvd:CVE-2025-12345", items[0].ID)
	assert.Equal(t, domain.SourceNVD, items[0].Source)
	assert.Equal(t, "Remote code execution in Spring Boot Actuator.", items[0].Description)
	assert.True(t, items[0].PublishedAt.Equal(time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC)))

	assert.Equal(t, "nvd:nvd-guid-7", items[1].ID)
	assert.True(t, items[1].PublishedAt.Equal(now))
}

func TestTHNCollector(t *testing.T) {
	t.Parallel()

	server := serve(t, thnFeed)
	items, err := NewTHNCollector(server.URL, server.Client(), nil).Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, "thehackernews:https://thehackernews.com/2025/03/nextjs.html#guid", items[0].ID)
	assert.Equal(t, "Attackers bypass middleware auth.", items[0].Description)

	assert.Equal(t, "thehackernews:"+linkHash("https://thehackernews.com/2025/03/other.html"), items[1].ID)
	assert.Len(t, strings.TrimPrefix(items[1].ID, "thehackernews:"), 12)
}

func TestCollectorFetchError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := NewNVDCollector(server.URL, server.Client(), nil).Collect(context.Background())
	assert.Error(t, err)
}

func TestCleanHTML(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "a b c", CleanHTML("a \n b\t c"))
	assert.Equal(t, "Tom & Jerry bold", CleanHTML("<p>Tom &amp; Jerry</p> <b>bold</b>"))
	assert.Equal(t, "", CleanHTML("   "))
}

func TestGitHubCollector(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer gh-token", r.Header.Get("Authorization"))

		var req struct {
			Query     string         `json:"query"`
			Variables map[string]int `json:"variables"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Contains(t, req.Query, "securityAdvisories")
		assert.Equal(t, 5, req.Variables["first"])

		_, _ = w.Write([]byte(`{"data": {"securityAdvisories": {"nodes": [
			{
				"ghsaId": "GHSA-aaaa-bbbb-cccc",
				"summary": "Prototype pollution in lodash",
				"description": "Details here.",
				"severity": "HIGH",
				"publishedAt": "2025-03-01T12:00:00Z",
				"permalink": "https://github.com/advisories/GHSA-aaaa-bbbb-cccc",
				"vulnerabilities": {"nodes": [
					{"package": {"name": "lodash", "ecosystem": "NPM"}},
					{"package": {"name": "lodash-es", "ecosystem": ""}}
				]},
				"identifiers": [{"type": "GHSA", "value": "GHSA-aaaa-bbbb-cccc"}, {"type": "CVE", "value": "CVE-2025-1000"}]
			},
			{
				"ghsaId": "GHSA-dddd-eeee-ffff",
				"summary": "CVE-2025-2000 already in title",
				"description": "",
				"publishedAt": "not a date",
				"permalink": "",
				"vulnerabilities": {"nodes": []},
				"identifiers": [{"type": "CVE", "value": "CVE-2025-2000"}]
			}
		]}}}`))
	}))
	defer server.Close()

	now := time.Date(2025, 3, 9, 0, 0, 0, 0, time.UTC)
	c := NewGitHubCollector(server.URL, "gh-token", 5, server.Client(), nil)
	c.now = func() time.Time { return now }

	items, err := c.Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, "github:GHSA-aaaa-bbbb-cccc", items[0].ID)
	assert.Equal(t, "CVE-2025-1000: Prototype pollution in lodash", items[0].Title)
	assert.Equal(t, "Details here.\n\nAffected packages: NPM/lodash, lodash-es", items[0].Description)
	assert.True(t, items[0].PublishedAt.Equal(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)))

	assert.Equal(t, "CVE-2025-2000 already in title", items[1].Title)
	assert.Equal(t, "CVE-2025-2000 already in title", items[1].Description)
	assert.Equal(t, "https://github.com/advisories/GHSA-dddd-eeee-ffff", items[1].URL)
	assert.True(t, items[1].PublishedAt.Equal(now))
}

func TestGitHubCollectorWithoutToken(t *testing.T) {
	t.Parallel()

	items, err := NewGitHubCollector("http://127.0.0.1:1", "", 0, nil, nil).Collect(context.Background())
	require.NoError(t, err)
	assert.Empty(t, items)
}

type fakeCollector struct {
	name  string
	items []domain.Item
	err   error
	delay time.Duration
}

func (f fakeCollector) Name() string { return f.name }

func (f fakeCollector) Collect(ctx context.Context) ([]domain.Item, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return f.items, f.err
}

func TestSourceMergesInCollectorOrder(t *testing.T) {
	t.Parallel()

	reg := scanner.NewRegistry()
	reg.Register(fakeCollector{name: "slow", delay: 20 * time.Millisecond, items: []domain.Item{{ID: "slow:1"}, {ID: "slow:2"}}})
	reg.Register(fakeCollector{name: "broken", err: errors.New("boom")})
	reg.Register(fakeCollector{name: "fast", items: []domain.Item{{ID: "fast:1"}}})

	items, err := NewSource(reg, nil, nil).Fetch(context.Background())
	require.NoError(t, err)

	ids := make([]string, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ID)
	}
	assert.Equal(t, []string{"slow:1", "slow:2", "fast:1"}, ids)
}

func TestSourceUnknownCollector(t *testing.T) {
	t.Parallel()

	_, err := NewSource(scanner.NewRegistry(), []string{"arxiv"}, nil).Fetch(context.Background())
	assert.Error(t, err)
}
