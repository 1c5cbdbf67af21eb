package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/userdb/internal/flagx"
)

// JsonConfig is the DTO for the optional JSON configuration file.
type JsonConfig struct {
	ListenAddr    string `json:"listen_addr"`
	SocketPath    string `json:"socket_path"`
	AdminLogin    string `json:"admin_login"`
	AdminPassword string `json:"admin_password"`
}

// parseJson loads configuration values from the JSON file named by the
// -c/-config flags into the provided Config. Absent flags mean no overlay.
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

	if c.ListenAddr != "" {
		config.ListenAddr = c.ListenAddr
	}
	if c.SocketPath != "" {
		config.SocketPath = c.SocketPath
	}
	if c.AdminLogin != "" {
		config.AdminLogin = c.AdminLogin
	}
	if c.AdminPassword != "" {
		config.AdminPassword = c.AdminPassword
	}
}
