package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"chatrelay/internal/server"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		slog.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := server.NewConfigFromEnv()
	if err != nil {
		return err
	}
	server.SetConfig(cfg)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	hub := server.NewHub(logger)
	go hub.Run()

	mux := server.SetupRoutes(hub)
	httpServer := server.CreateServer(cfg.Port, mux)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := server.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		// HTTP first so no new connections arrive while the hub drains.
		if err := server.ShutdownServer(httpServer, shutdownTimeout); err != nil {
			logger.Error("HTTP shutdown error", "error", err)
		}
		return hub.Shutdown(shutdownTimeout)
	})

	return g.Wait()
}
