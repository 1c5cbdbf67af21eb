package main

import (
	"flag"
	"log"
	"os"

	"github.com/dmitrijs2005/userdb/internal/cli"
)

func main() {

	socket := flag.String("s", defaultSocket(), "unix socket path of the store")
	flag.Parse()

	app := cli.NewApp(*socket, os.Stdout)
	if err := app.Run(flag.Args()); err != nil {
		log.Fatalf("%v", err)
	}

}

func defaultSocket() string {
	if v := os.Getenv("USERDB_SOCKET"); v != "" {
		return v
	}
	return "/tmp/userdb.sock"
}
