package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/lanonasis/onasis-gateway/internal/config"
	"github.com/lanonasis/onasis-gateway/internal/gateway"
	"github.com/lanonasis/onasis-gateway/internal/logging"
	"github.com/lanonasis/onasis-gateway/internal/version"
)

func main() {
	configPath := flag.String("config", "config/gateway.yaml", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version information")
	validateOnly := flag.Bool("validate", false, "Validate configuration and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("onasis-gateway %s\n", version.Gateway)
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if *validateOnly {
		fmt.Println("Configuration is valid")
		os.Exit(0)
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logging.SetGlobal(logger)
	defer logging.Sync()

	logging.Info("Starting onasis-gateway",
		zap.String("version", version.Gateway),
		zap.String("config", *configPath),
		zap.String("tool_mode", cfg.ToolMode),
		zap.String("addr", cfg.Addr()),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := gateway.NewServer(cfg)
	if err := server.Run(ctx); err != nil {
		logging.Error("Server error", zap.Error(err))
		logging.Sync()
		os.Exit(1)
	}
}
