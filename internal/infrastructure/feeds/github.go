package feeds

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"AdvisoryScanner/internal/domain"
	"AdvisoryScanner/internal/scanner"
)

const advisoriesQuery = `query($first: Int!) {
  securityAdvisories(first: $first, orderBy: {field: PUBLISHED_AT, direction: DESC}) {
    nodes {
      ghsaId
      summary
      description
      severity
      publishedAt
      permalink
      vulnerabilities(first: 10) {
        nodes {
          package { name ecosystem }
          vulnerableVersionRange
        }
      }
      identifiers { type value }
    }
  }
}`

type advisoriesResponse struct {
	Data struct {
		SecurityAdvisories struct {
			Nodes []advisory `json:"nodes"`
		} `json:"securityAdvisories"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

type advisory struct {
	GHSAID          string `json:"ghsaId"`
	Summary         string `json:"summary"`
	Description     string `json:"description"`
	Severity        string `json:"severity"`
	PublishedAt     string `json:"publishedAt"`
	Permalink       string `json:"permalink"`
	Vulnerabilities struct {
		Nodes []struct {
			Package struct {
				Name      string `json:"name"`
				Ecosystem string `json:"ecosystem"`
			} `json:"package"`
		} `json:"nodes"`
	} `json:"vulnerabilities"`
	Identifiers []struct {
		Type  string `json:"type"`
		Value string `json:"value"`
	} `json:"identifiers"`
}

// GitHubCollector queries the GitHub Security Advisory GraphQL API.
type GitHubCollector struct {
	endpoint string
	token    string
	limit    int
	client   *http.Client
	now      func() time.Time
	logger   *slog.Logger
}

var _ scanner.Collector = (*GitHubCollector)(nil)

// NewGitHubCollector wires the API token; limit defaults to 20.
func NewGitHubCollector(endpoint, token string, limit int, client *http.Client, logger *slog.Logger) *GitHubCollector {
	if limit <= 0 {
		limit = 20
	}
	return &GitHubCollector{
		endpoint: endpoint,
		token:    token,
		limit:    limit,
		client:   defaultClient(client),
		now:      time.Now,
		logger:   logger,
	}
}

// Name identifies the collector inside the registry.
func (c *GitHubCollector) Name() string {
	return domain.SourceGitHub
}

// Collect returns the most recently published advisories. Without a token
// the source is skipped.
func (c *GitHubCollector) Collect(ctx context.Context) ([]domain.Item, error) {
	if c.token == "" {
		if c.logger != nil {
			c.logger.Warn("github token not set, skipping github advisories")
		}
		return nil, nil
	}

	resp, err := c.query(ctx)
	if err != nil {
		return nil, err
	}

	now := c.now()
	nodes := resp.Data.SecurityAdvisories.Nodes
	items := make([]domain.Item, 0, len(nodes))
	for _, adv := range nodes {
		if adv.GHSAID == "" {
			continue
		}
		items = append(items, c.toItem(adv, now))
	}

	if c.logger != nil {
		c.logger.Debug("github collected", "count", len(items))
	}
	return items, nil
}

func (c *GitHubCollector) query(ctx context.Context) (*advisoriesResponse, error) {
	body, err := json.Marshal(map[string]any{
		"query":     advisoriesQuery,
		"variables": map[string]int{"first": c.limit},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal graphql query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("github graphql request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("github graphql returned %s: %s", resp.Status, strings.TrimSpace(string(snippet)))
	}

	var out advisoriesResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode graphql response: %w", err)
	}
	if len(out.Errors) > 0 {
		return nil, fmt.Errorf("github graphql error: %s", out.Errors[0].Message)
	}
	return &out, nil
}

// toItem prefixes the title with the CVE id and lists affected packages
// at the end of the description.
func (c *GitHubCollector) toItem(adv advisory, now time.Time) domain.Item {
	title := adv.Summary
	for _, ident := range adv.Identifiers {
		if ident.Type == "CVE" {
			if !strings.Contains(title, ident.Value) {
				title = ident.Value + ": " + title
			}
			break
		}
	}

	description := adv.Description
	if description == "" {
		description = adv.Summary
	}
	var packages []string
	for _, vuln := range adv.Vulnerabilities.Nodes {
		name := vuln.Package.Name
		if name == "" {
			continue
		}
		if eco := vuln.Package.Ecosystem; eco != "" {
			name = eco + "/" + name
		}
		packages = append(packages, name)
	}
	if len(packages) > 0 {
		description += "\n\nAffected packages: " + strings.Join(packages, ", ")
	}

	url := adv.Permalink
	if url == "" {
		url = "https://github.com/advisories/" + adv.GHSAID
	}

	published := now
	if ts, err := time.Parse(time.RFC3339, adv.PublishedAt); err == nil {
		published = ts
	}

	return domain.Item{
		ID:          domain.MakeID(domain.SourceGitHub, adv.GHSAID),
		Source:      domain.SourceGitHub,
		Title:       strings.TrimSpace(title),
		Description: strings.TrimSpace(description),
		URL:         url,
		PublishedAt: published,
	}
}
