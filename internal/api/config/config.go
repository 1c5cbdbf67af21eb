// Package config handles configuration for the HTTP proxy binary.
package config

import (
	"errors"
)

// Config holds runtime settings for the userdb HTTP proxy.
//
// Fields:
//   - ListenAddr: bind address of the HTTP endpoint.
//   - SocketPath: unix socket of the record-store server.
//   - AdminLogin / AdminPassword: HTTP Basic credentials. Both are
//     mandatory, the proxy refuses to start without them.
type Config struct {
	ListenAddr    string
	SocketPath    string
	AdminLogin    string
	AdminPassword string
}

// LoadDefaults populates Config with development defaults. Credentials have
// no default on purpose.
func (c *Config) LoadDefaults() {
	c.ListenAddr = ":8080"
	c.SocketPath = "/tmp/userdb.sock"
}

// Validate checks that the mandatory settings are present.
func (c *Config) Validate() error {
	if c.AdminLogin == "" || c.AdminPassword == "" {
		return errors.New("admin login and password must be configured")
	}
	return nil
}

// LoadConfig builds a Config by applying defaults, then overlaying values
// from an optional JSON file, the environment, and finally command-line
// flags.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseEnv(cfg)
	parseFlags(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
