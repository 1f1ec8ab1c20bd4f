package source

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const packYAML = `- id: nz_herald
  name: NZ Herald Top Stories
  url: https://www.nzherald.co.nz/arc/outboundfeeds/rss/curated/78/
  tags: [news, nz]
- id: rnz_national
  name: RNZ National
  url: https://www.rnz.co.nz/rss/national.xml
  poll_seconds: 600
  region: New Zealand
  enabled: false
`

func TestLoadFeedPacks(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pacific.yaml"), []byte(packYAML), 0o644))

	plugins, err := LoadFeedPacks(dir)
	require.NoError(t, err)
	require.Len(t, plugins, 2)

	herald := plugins[0]
	assert.Equal(t, "nz_herald", herald.ID)
	assert.Equal(t, "rss", herald.Type)
	assert.Equal(t, "news", herald.Category)
	assert.Equal(t, 3*time.Minute, herald.PollInterval)
	assert.True(t, herald.Enabled)
	assert.Equal(t, "pacific", herald.DefaultCountry, "pack id is the default region")
	require.NotNil(t, herald.Items)

	rnz := plugins[1]
	assert.Equal(t, 10*time.Minute, rnz.PollInterval)
	assert.False(t, rnz.Enabled)
	assert.Equal(t, "New Zealand", rnz.DefaultCountry)
}

func TestLoadFeedPacks_MissingDirAndEmpty(t *testing.T) {
	plugins, err := LoadFeedPacks("")
	require.NoError(t, err)
	assert.Empty(t, plugins)

	plugins, err = LoadFeedPacks(filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)
	assert.Empty(t, plugins)
}

func TestLoadFeedPacks_InvalidEntry(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.yaml"),
		[]byte("- name: missing id and url\n"), 0o644))

	_, err := LoadFeedPacks(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "id and url are required")
}

func TestFeedPackItems_Parse(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pacific.yaml"), []byte(packYAML), 0o644))

	plugins, err := LoadFeedPacks(dir)
	require.NoError(t, err)

	rss := `<?xml version="1.0"?><rss version="2.0"><channel>
	  <item><title>Flooding closes roads in Auckland</title>
	  <link>https://example.com/news/1</link><guid>n1</guid>
	  <description>Heavy rain overnight.</description></item>
	</channel></rss>`

	items, err := plugins[0].Items([]byte(rss), fetchedAt)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "news", items[0].Category)
	assert.Contains(t, items[0].Tags, "pack:pacific")
}
