package main

import (
	"context"
	"log"

	"github.com/dmitrijs2005/userdb/internal/api"
	"github.com/dmitrijs2005/userdb/internal/api/config"
	"github.com/dmitrijs2005/userdb/internal/logging"
)

func main() {

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("%v", err)
	}

	logger := logging.NewJSONLogger()
	router := api.NewRouter(cfg, logger)

	logger.Info(context.Background(), "Starting HTTP proxy", "address", cfg.ListenAddr)
	if err := router.Run(cfg.ListenAddr); err != nil {
		log.Fatalf("%v", err)
	}

}
