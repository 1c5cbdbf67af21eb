package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/userdb/internal/flagx"
	"github.com/dmitrijs2005/userdb/internal/timex"
)

// JsonConfig is the DTO for the optional JSON configuration file. It uses
// timex.Duration for the interval field, which parses both string values
// such as "1h" and integer nanoseconds. After unmarshalling, its fields are
// copied into the runtime Config.
type JsonConfig struct {
	SocketPath      string         `json:"socket_path"`
	StorageRoot     string         `json:"storage_root"`
	ShardTags       []string       `json:"shard_tags"`
	CompactInterval timex.Duration `json:"compact_interval"`
}

// parseJson loads configuration values from the JSON file named by the
// -c/-config flags into the provided Config. Absent flags mean no overlay.
// An unreadable or invalid file panics, misconfiguration should not be
// survived silently.
func parseJson(config *Config) {

	jsonConfigFile := flagx.JsonConfigFlags()

	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	if c.SocketPath != "" {
		config.SocketPath = c.SocketPath
	}
	if c.StorageRoot != "" {
		config.StorageRoot = c.StorageRoot
	}
	if len(c.ShardTags) > 0 {
		config.ShardTags = c.ShardTags
	}
	if c.CompactInterval.Duration != 0 {
		config.CompactInterval = time.Duration(c.CompactInterval.Duration)
	}
}
