package scanner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"AdvisoryScanner/internal/domain"
)

type namedCollector struct {
	name string
	tag  string
}

func (c namedCollector) Name() string { return c.name }

func (c namedCollector) Collect(context.Context) ([]domain.Item, error) {
	return []domain.Item{{ID: c.name + ":" + c.tag}}, nil
}

func TestRegistryKeepsRegistrationOrder(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	reg.Register(namedCollector{name: "nvd", tag: "v1"})
	reg.Register(namedCollector{name: "github"})
	reg.Register(namedCollector{name: "nvd", tag: "v2"})

	assert.Equal(t, []string{"nvd", "github"}, reg.Names())

	c, err := reg.Resolve("nvd")
	require.NoError(t, err)
	items, err := c.Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "nvd:v2", items[0].ID)

	_, err = reg.Resolve("thehackernews")
	assert.Error(t, err)
}

func TestZeroRegistry(t *testing.T) {
	t.Parallel()

	var reg Registry
	reg.Register(namedCollector{name: "nvd"})
	assert.Equal(t, []string{"nvd"}, reg.Names())
}
