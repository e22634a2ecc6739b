package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"pet-care-tracker/internal/adapters/alarm/local"
	authjwt "pet-care-tracker/internal/adapters/auth/jwt"
	"pet-care-tracker/internal/adapters/cache/lru"
	"pet-care-tracker/internal/config"
	"pet-care-tracker/internal/domain/history"
	"pet-care-tracker/internal/platform/logger"
	"pet-care-tracker/internal/router"

	"github.com/spf13/cobra"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Levanta la API HTTP, el migrador de historia y las alarmas",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}
}

func runServer(parent context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log := logger.New(logger.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, App: cfg.AppName})

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loc, _ := cfg.Location()

	opts := router.Options{
		Logger:              log,
		Location:            loc,
		Cache:               lru.NewAvailabilityCache(cfg.SlotsCacheSize, cfg.SlotsCacheTTL),
		HistoryPollInterval: cfg.HistorySweepInterval,
	}

	closeStorage, err := storage(ctx, cfg, log, &opts)
	if err != nil {
		return err
	}
	defer closeStorage()

	if cfg.AuthJWTSecret != "" {
		v, err := authjwt.NewVerifier(authjwt.Config{Secret: cfg.AuthJWTSecret, Issuer: cfg.AuthJWTIssuer, Leeway: 30 * time.Second})
		if err != nil {
			return err
		}
		opts.AuthVerifier = v
	} else {
		log.Warn().Msg("auth: dev mode, X-Debug-User-ID accepted")
	}

	n, closeNotifier, err := notifier(cfg, log)
	if err != nil {
		return err
	}
	defer closeNotifier()
	opts.Notifier = n

	alarmStore, err := local.OpenSQLite(cfg.AlarmDBPath)
	if err != nil {
		return err
	}
	defer alarmStore.Close()

	alarms := local.NewService(alarmStore, log)
	defer alarms.Close()
	opts.Alarms = alarms

	app := router.NewApp(opts)

	// el handler se registra antes de Restore para no perder disparos vencidos
	alarms.SetHandler(app.Receiver.OnFire)
	restored, err := alarms.Restore(ctx)
	if err != nil {
		return err
	}
	log.Info().Int("alarms", restored).Msg("alarms restored")

	go app.Migrator.Run(ctx, cfg.HistorySweepInterval)
	go func() {
		err := app.Migrator.Watch(ctx)
		switch {
		case errors.Is(err, history.ErrNoWatcher):
			log.Info().Msg("history: no change feed for this storage, periodic sweep only")
		case err != nil && ctx.Err() == nil:
			log.Warn().Err(err).Msg("history change watch stopped, periodic sweep only")
		}
	}()

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      app.Handler,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	log.Info().Msg("server stopped")
	return nil
}
