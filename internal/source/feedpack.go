package source

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// feedPackEntry is one feed declaration in a YAML pack file.
type feedPackEntry struct {
	ID          string   `yaml:"id"`
	Name        string   `yaml:"name"`
	Type        string   `yaml:"type"`
	URL         string   `yaml:"url"`
	Region      string   `yaml:"region"`
	Category    string   `yaml:"category"`
	Tags        []string `yaml:"tags"`
	PollSeconds int      `yaml:"poll_seconds"`
	Enabled     *bool    `yaml:"enabled"`
}

// LoadFeedPacks reads every *.yaml file under dir into RSS plugins. The file
// stem becomes the pack ID and the default region. A missing directory is
// not an error, just an empty set.
func LoadFeedPacks(dir string) ([]Plugin, error) {
	if dir == "" {
		return nil, nil
	}
	matches, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, fmt.Errorf("listing feed packs: %w", err)
	}
	sort.Strings(matches)

	var plugins []Plugin
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading feed pack %s: %w", path, err)
		}

		var entries []feedPackEntry
		if err := yaml.Unmarshal(data, &entries); err != nil {
			return nil, fmt.Errorf("invalid feed pack %s: %w", path, err)
		}

		packID := strings.TrimSuffix(filepath.Base(path), ".yaml")
		for _, entry := range entries {
			if entry.ID == "" || entry.URL == "" {
				return nil, fmt.Errorf("invalid feed entry in %s: id and url are required", path)
			}

			pollSeconds := entry.PollSeconds
			if pollSeconds <= 0 {
				pollSeconds = 180
			}
			category := entry.Category
			if category == "" {
				category = "news"
			}
			region := entry.Region
			if region == "" {
				region = packID
			}
			enabled := true
			if entry.Enabled != nil {
				enabled = *entry.Enabled
			}

			tags := append([]string{"pack:" + packID, "region:" + region}, entry.Tags...)
			plugins = append(plugins, Plugin{
				ID:             entry.ID,
				Name:           entry.Name,
				Type:           firstNonEmpty(entry.Type, "rss"),
				URL:            entry.URL,
				PollInterval:   time.Duration(pollSeconds) * time.Second,
				Enabled:        enabled,
				Category:       category,
				DefaultCountry: region,
				Items:          genericRSSItems(entry.ID, category, tags...),
			})
		}
	}
	return plugins, nil
}
