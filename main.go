package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/wfunc/roulette/config"
	"github.com/wfunc/roulette/logger"
	"github.com/wfunc/roulette/server"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig(".")
	if err != nil {
		logger.Init()
		logger.Log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	if cfg.Log.Development {
		logger.InitDevelopment()
	} else {
		logger.Init()
	}
	defer logger.Sync()

	// Initialize Game Server
	gameServer := server.NewGameServer(cfg)

	go func() {
		signals := make(chan os.Signal, 1)
		signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
		<-signals
		logger.Log.Info("Shutting down game server")
		gameServer.Shutdown()
	}()

	// Start Server
	logger.Log.Infof("Starting game server on %s", cfg.Server.HTTPAddress)
	if err := gameServer.Start(); err != nil {
		logger.Log.Fatalf("Failed to start server: %v", err)
	}
}
