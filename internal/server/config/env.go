package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
)

// parseEnv overlays configuration from environment variables, loading an
// optional .env file first:
//
//	USERDB_SOCKET            unix socket path
//	USERDB_STORAGE_ROOT      shard storage directory
//	USERDB_SHARDS            comma-separated shard tags
//	USERDB_COMPACT_INTERVAL  compaction period, e.g. "1h"
func parseEnv(config *Config) {
	_ = godotenv.Load()

	if v := os.Getenv("USERDB_SOCKET"); v != "" {
		config.SocketPath = v
	}
	if v := os.Getenv("USERDB_STORAGE_ROOT"); v != "" {
		config.StorageRoot = v
	}
	if v := os.Getenv("USERDB_SHARDS"); v != "" {
		config.ShardTags = splitTags(v)
	}
	if v := os.Getenv("USERDB_COMPACT_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.CompactInterval = d
		}
	}
}
