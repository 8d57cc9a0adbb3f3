// Command server hosts one puck session over TCP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/LemmyAI/puckserver/internal/bus"
	"github.com/LemmyAI/puckserver/internal/config"
	"github.com/LemmyAI/puckserver/internal/game"
	"github.com/LemmyAI/puckserver/internal/lifecycle"
	"github.com/LemmyAI/puckserver/internal/observability"
	"github.com/LemmyAI/puckserver/internal/protocol"
	"github.com/LemmyAI/puckserver/internal/status"
	"github.com/LemmyAI/puckserver/internal/transport"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	port := flag.Int("port", 0, "listening port (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *port != 0 {
		cfg.Net.Port = *port
	}

	logger, err := observability.SetupLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Error("server failed", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	logger.Info("🎮 puckserver starting", zap.Int("port", cfg.Net.Port))

	coord := lifecycle.New(lifecycle.WithLogger(logger))

	srv := transport.NewServer(cfg.Transport(), protocol.DefaultRegistry(),
		transport.WithLogger(logger),
		transport.WithBus(bus.New(bus.WithLogger(logger))),
		transport.WithStopHook(coord.StopAsync),
	)

	engine := game.NewEngine(game.Config{
		TickRate:    cfg.Game.TickRate,
		SendRate:    cfg.Game.SendRate,
		TableWidth:  float32(cfg.Game.TableWidth),
		TableHeight: float32(cfg.Game.TableHeight),
	}, srv, logger)
	defer engine.Close()

	if cfg.Status.Addr != "" {
		src := status.Merge(
			func() map[string]any { return status.SessionFields(srv.Session()) },
			engine.Stats,
		)
		reg, err := observability.NewRegistry(observability.NewSessionMetrics(srv.Session))
		if err != nil {
			return err
		}
		mux := http.NewServeMux()
		mux.Handle("/status", status.Handler(src, logger))
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		coord.Register("status", status.NewServer(cfg.Status.Addr, mux, logger))
	}
	coord.Register("transport", srv)
	coord.Register("engine", engine)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		select {
		case <-ctx.Done():
			logger.Info("🛑 shutting down")
			coord.StopAsync()
		case <-coord.Done():
		}
	}()

	logger.Info("⏳ waiting for a player")
	if err := coord.Start(context.Background()); err != nil && !errors.Is(err, lifecycle.ErrStopped) {
		return err
	}
	if !coord.Stopping() {
		logger.Info("✅ player connected", zap.String("session", srv.Session().ID))
	}

	<-coord.Done()
	if err := coord.Err(); err != nil {
		return err
	}
	logger.Info("👋 bye")
	return nil
}
