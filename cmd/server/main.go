package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/werewolf-backend/internal/config"
	"github.com/DoyleJ11/werewolf-backend/internal/httpapi"
	"github.com/DoyleJ11/werewolf-backend/internal/hub"
	"github.com/DoyleJ11/werewolf-backend/internal/journal"
	"github.com/DoyleJ11/werewolf-backend/internal/logging"
	"github.com/DoyleJ11/werewolf-backend/internal/room"
	"github.com/DoyleJ11/werewolf-backend/internal/ws"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(".env", os.Args[1:])
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	log, err := logging.New(cfg.LogLevel, cfg.Dev)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The journal outlives the hub so closing rooms can still record.
	journalCtx, stopJournal := context.WithCancel(context.Background())
	defer stopJournal()

	g, gctx := errgroup.WithContext(ctx)

	var (
		recorder journal.Recorder = journal.Nop{}
		store    journal.Store
	)
	if cfg.DatabaseURL != "" {
		gs, err := journal.OpenPostgres(cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("journal: %w", err)
		}
		store = gs
		w := journal.NewWriter(gs, log.Named("journal"), 256)
		recorder = w
		g.Go(func() error { return w.Run(journalCtx) })
		log.Info("game journal enabled")
	}

	h := hub.NewHub(context.Background(), hub.Config{
		CodeLength: cfg.RoomCodeLength,
		Logger:     log,
		Room: room.Config{
			MinPlayers:    cfg.MinPlayers,
			PhaseDuration: cfg.PhaseDuration,
			Logger:        log.Named("room"),
			Journal:       recorder,
		},
	})

	handler := httpapi.SetupRoutes(h, ws.Config{
		OriginPatterns: cfg.AllowedOrigins,
		PingInterval:   cfg.PingInterval,
	}, log.Named("http"))

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		log.Info("listening", zap.String("addr", cfg.Addr), zap.Duration("phase", cfg.PhaseDuration))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")

		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := srv.Shutdown(sctx)
		h.Shutdown()
		stopJournal()
		return err
	})

	err = g.Wait()
	if store != nil {
		err = multierr.Append(err, store.Close())
	}
	return err
}
