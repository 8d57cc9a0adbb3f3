// Command webbridge exposes the puck server to browsers over WebSocket.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/LemmyAI/puckserver/internal/config"
	"github.com/LemmyAI/puckserver/internal/lifecycle"
	"github.com/LemmyAI/puckserver/internal/observability"
	"github.com/LemmyAI/puckserver/internal/webbridge"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	addr := flag.String("addr", "", "HTTP listen address (overrides config)")
	upstream := flag.String("upstream", "", "game server address (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Bridge.Addr = *addr
	}
	if *upstream != "" {
		cfg.Bridge.Upstream = *upstream
	}

	logger, err := observability.SetupLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	bcfg := webbridge.DefaultConfig()
	bcfg.Addr = cfg.Bridge.Addr
	bcfg.Upstream = cfg.Bridge.Upstream
	bcfg.MaxFrameSize = cfg.Net.MaxFrameSize

	coord := lifecycle.New(lifecycle.WithLogger(logger), lifecycle.WithStopTimeout(5*time.Second))
	coord.Register("webbridge", webbridge.New(bcfg, logger))

	logger.Info("🌐 webbridge starting", zap.String("addr", bcfg.Addr), zap.String("upstream", bcfg.Upstream))
	if err := coord.Start(context.Background()); err != nil {
		logger.Error("start failed", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	logger.Info("🛑 shutting down")
	coord.StopAsync()
	<-coord.Done()
	logger.Info("👋 bye")
}
