package config

import (
	"os"

	"github.com/joho/godotenv"
)

// parseEnv overlays configuration from environment variables, loading an
// optional .env file first:
//
//	USERDB_API_ADDR  HTTP bind address
//	USERDB_SOCKET    unix socket of the store
//	ADMIN_LOGIN      basic-auth login
//	ADMIN_PASSWORD   basic-auth password
func parseEnv(config *Config) {
	_ = godotenv.Load()

	if v := os.Getenv("USERDB_API_ADDR"); v != "" {
		config.ListenAddr = v
	}
	if v := os.Getenv("USERDB_SOCKET"); v != "" {
		config.SocketPath = v
	}
	if v := os.Getenv("ADMIN_LOGIN"); v != "" {
		config.AdminLogin = v
	}
	if v := os.Getenv("ADMIN_PASSWORD"); v != "" {
		config.AdminPassword = v
	}
}
