package main

import (
	"context"

	"github.com/mmayman666/Otouri-app-final-sub001/app"
	"github.com/mmayman666/Otouri-app-final-sub001/app/config"

	"github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("failed to load config: %v", err)
	}

	server, cleanup, err := app.Bootstrap(context.Background(), cfg)
	if err != nil {
		logrus.Fatalf("failed to initialize server: %v", err)
	}
	defer cleanup()

	if err := server.Router().Run(cfg.HTTP.Addr); err != nil {
		logrus.Errorf("server stopped: %v", err)
	}
}
