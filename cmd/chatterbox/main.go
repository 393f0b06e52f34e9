package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chatterbox/pkg/config"
	"chatterbox/pkg/logger"
	"chatterbox/server"
)

func main() {
	addr := flag.String("addr", "", "server address (overrides config)")
	configPath := flag.String("config", "", "config file path (optional)")
	uploadDir := flag.String("upload-dir", "", "media upload directory (overrides config)")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	logFormat := flag.String("log-format", "text", "log format: text or json")
	flag.Parse()

	logger.Init(logger.LogLevel(*logLevel), *logFormat)
	log := logger.Get()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	if *addr != "" {
		cfg.Address = *addr
	}
	if *uploadDir != "" {
		cfg.Uploads.Dir = *uploadDir
	}

	log.Info("configuration loaded", "config", cfg.String())

	srv, err := server.NewServer(cfg)
	if err != nil {
		log.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)

	errorChan := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil {
			errorChan <- err
		}
	}()

	select {
	case sig := <-sigChan:
		log.Info("received signal, shutting down", "signal", sig.String())

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.Error("error during shutdown", "error", err)
		}
		log.Info("server stopped")

	case err := <-errorChan:
		log.Error("server error", "error", err)
		os.Exit(1)
	}
}
