package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrMalformedItem marks an item that lacks the fields required for evaluation.
var ErrMalformedItem = errors.New("malformed item")

// Source names used as the prefix of item identifiers.
const (
	SourceNVD    = "nvd"
	SourceTHN    = "thehackernews"
	SourceGitHub = "github"
)

// Item is a single advisory or article normalized from any feed.
// Two items with the same ID are the same logical item.
type Item struct {
	ID          string
	Source      string
	Title       string
	Description string
	URL         string
	PublishedAt time.Time
}

// MakeID builds the "<source>:<source-local-id>" identifier.
func MakeID(source, localID string) string {
	return source + ":" + localID
}

// Validate reports missing fields.
func (i Item) Validate() error {
	var missing []string
	if strings.TrimSpace(i.ID) == "" {
		missing = append(missing, "id")
	}
	if strings.TrimSpace(i.Source) == "" {
		missing = append(missing, "source")
	}
	if strings.TrimSpace(i.Title) == "" {
		missing = append(missing, "title")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrMalformedItem, strings.Join(missing, ", "))
	}
	return nil
}

// Haystack is the lowercase text every keyword rule runs against.
func (i Item) Haystack() string {
	return strings.ToLower(i.Title + " " + i.Description)
}
