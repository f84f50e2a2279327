package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/exp/slog"

	"assistsync/internal/app/server/api"
	"assistsync/internal/app/server/config"
	"assistsync/internal/infrastructure/storage/postgres"
	"assistsync/internal/utils/logger"
)

func main() {
	conf := config.MustLoad()
	log := logger.NewWithOptions(logger.Options{Env: conf.Env, Level: conf.Logger.LogLevel})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	storage, err := postgres.New(postgres.Config{
		DatabaseURI:    conf.DB.DatabaseURI,
		MigrationsPath: conf.DB.Migrations,
	}, log)
	if err != nil {
		log.Error("failed to init storage", "error", err)
		os.Exit(1)
	}
	defer storage.Close()

	opts := api.Options{
		BatchSize:      conf.Sync.BatchSize,
		MaxSyncRecords: conf.Sync.MaxSyncRecords,
	}
	if conf.Server.Realtime {
		listener := postgres.NewListener(storage, log)
		go func() {
			if err := listener.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("change listener stopped", "error", err)
			}
		}()
		opts.Listener = listener
	}

	srv := &http.Server{
		Addr:    conf.Server.RunAddress,
		Handler: api.New(storage, opts, log),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
		}
	}()

	log.Info("starting server", slog.String("address", conf.Server.RunAddress), slog.String("env", conf.Env))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}
