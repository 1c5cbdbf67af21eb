package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/userdb/internal/flagx"
)

// parseFlags populates selected server Config fields from command-line
// flags.
//
// Supported flags (short forms):
//
//	-s string   unix socket path
//	-r string   shard storage root directory
//	-t string   comma-separated shard tags (e.g. "a0,a1")
//	-i int      compaction interval, minutes (0 disables)
//
// The function first filters os.Args to only the flags it recognizes using
// flagx.FilterArgs, avoiding collisions with other components.
func parseFlags(config *Config) {
	applyFlags(config, os.Args[1:])
}

func applyFlags(config *Config, argv []string) {
	args := flagx.FilterArgs(argv, []string{"-s", "-r", "-t", "-i"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.SocketPath, "s", config.SocketPath, "unix socket path")
	fs.StringVar(&config.StorageRoot, "r", config.StorageRoot, "shard storage root")
	tags := fs.String("t", "", "comma-separated shard tags")
	interval := fs.Int("i", 0, "compaction interval in minutes, 0 disables")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	if *tags != "" {
		config.ShardTags = splitTags(*tags)
	}
	// the minute-granular flag overrides the interval only when actually
	// passed, so a sub-minute value from env or JSON survives
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "i" {
			config.CompactInterval = time.Duration(*interval) * time.Minute
		}
	})
}
