package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/Jeff-Emmett/collective-boredom-dial/internal/bots"
	"github.com/Jeff-Emmett/collective-boredom-dial/internal/broadcast"
	"github.com/Jeff-Emmett/collective-boredom-dial/internal/config"
	"github.com/Jeff-Emmett/collective-boredom-dial/internal/logging"
	"github.com/Jeff-Emmett/collective-boredom-dial/internal/registry"
	"github.com/Jeff-Emmett/collective-boredom-dial/internal/router"
)

func main() {
	// Optional .env for local development; missing file is fine.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logging.Initialize(cfg.LoggingLevel, cfg.LogFile)

	reg := registry.New(cfg.GlobalRoomID, cfg.GlobalRoomName)
	dispatcher := broadcast.New(reg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.BotsEnabled {
		driver := bots.New(reg, dispatcher, bots.DefaultProfiles())
		driver.Start(ctx)
	}

	sweeper := registry.NewSweeper(reg, cfg.SweepInterval, cfg.RoomIdleTimeout)
	go sweeper.Run(ctx)

	addr := ":" + cfg.Port
	srv := &http.Server{Addr: addr, Handler: router.New(reg, dispatcher)}

	go func() {
		slog.Info("starting server",
			slog.String("addr", addr),
			slog.String("global_room", cfg.GlobalRoomID),
			slog.Bool("bots_enabled", cfg.BotsEnabled),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	slog.Info("shutting down")
	cancel()

	// Close live connections proactively so clients get a clean closure
	// signal instead of an abrupt severance.
	reg.CloseAll()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown failed", slog.Any("error", err))
	}
}
