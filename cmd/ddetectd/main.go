package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"datadetector/internal/config"
	"datadetector/internal/logging"
	"datadetector/internal/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "ddetectd failed: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfgPath, err := config.ConfigPath()
	if err != nil {
		return err
	}
	if err := config.EnsureConfigDir(cfgPath); err != nil {
		return err
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	logger, err := logging.New(logging.Options{File: cfg.Log.File, JSON: cfg.Log.Format == "json"})
	if err != nil {
		return err
	}
	defer logger.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("ddetectd starting", "addr", cfg.Server.Addr, "backend", cfg.Backend, "config", cfgPath)
	if err := server.Run(ctx, cfg, logger); err != nil {
		logger.Error("server stopped", "error", err)
		return err
	}
	logger.Info("ddetectd stopped")
	return nil
}
