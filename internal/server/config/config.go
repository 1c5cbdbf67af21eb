// Package config handles configuration for the record-store server,
// including defaults, JSON overlay, environment variables, and
// command-line flags.
package config

import (
	"strings"
	"time"
)

// Config holds runtime settings for the userdb server.
//
// Fields:
//   - SocketPath: unix socket the store listens on.
//   - StorageRoot: directory holding one log file per shard.
//   - ShardTags: shard set used for placement. Shards already present under
//     StorageRoot are always loaded, configured or not.
//   - CompactInterval: period of the background log compaction. Zero
//     disables it.
type Config struct {
	SocketPath      string
	StorageRoot     string
	ShardTags       []string
	CompactInterval time.Duration
}

// LoadDefaults populates Config with development defaults.
func (c *Config) LoadDefaults() {
	c.SocketPath = "/tmp/userdb.sock"
	c.StorageRoot = "shards"
	c.ShardTags = []string{"a0", "a1", "a2", "a3"}
	c.CompactInterval = 1 * time.Hour
}

// LoadConfig builds a Config by applying defaults, then overlaying values
// from an optional JSON file, the environment, and finally command-line
// flags.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseEnv(cfg)
	parseFlags(cfg)
	return cfg
}

// splitTags parses a comma-separated tag list, dropping empty items.
func splitTags(s string) []string {
	parts := strings.Split(s, ",")
	tags := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			tags = append(tags, p)
		}
	}
	return tags
}
