package config

import (
	"flag"
	"os"

	"github.com/dmitrijs2005/userdb/internal/flagx"
)

// parseFlags populates selected proxy Config fields from command-line
// flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g., ":8080")
//	-s string   unix socket path of the store
//	-l string   basic-auth login
//	-p string   basic-auth password
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-s", "-l", "-p"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.ListenAddr, "a", config.ListenAddr, "address and port to run server")
	fs.StringVar(&config.SocketPath, "s", config.SocketPath, "unix socket path of the store")
	fs.StringVar(&config.AdminLogin, "l", config.AdminLogin, "basic-auth login")
	fs.StringVar(&config.AdminPassword, "p", config.AdminPassword, "basic-auth password")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}
}
