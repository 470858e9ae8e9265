package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"go.mau.fi/whatsmeow/store/sqlstore"
	_ "modernc.org/sqlite"

	"whatsapp-gateway/dashboard"
	"whatsapp-gateway/utils"
	"whatsapp-gateway/whatsapp"
)

const (
	defaultAddr   = ":8080"
	defaultDBPath = "file:whatsapp.db?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&cache=shared&mode=rwc"
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func setupLogging() zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(envOr("LOG_LEVEL", "info")))
	if err != nil {
		level = zerolog.InfoLevel
	}
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

func main() {
	log := setupLogging()
	log.Info().Msg("starting whatsapp gateway")

	addr := envOr("LISTEN_ADDR", defaultAddr)
	dbPath := envOr("WA_DB_PATH", defaultDBPath)

	ctx := context.Background()
	waLogger := whatsapp.NewWaLogger(log.With().Str("component", "whatsmeow").Logger())

	var container *sqlstore.Container
	err := utils.WithRetryNotify(func() error {
		var err error
		container, err = sqlstore.New(ctx, "sqlite", dbPath, waLogger)
		return err
	}, utils.StorageRetryConfig(), func(err error, next time.Duration) {
		log.Warn().Err(err).Dur("retry_in", next).Msg("device store open failed")
	})
	if err != nil {
		log.Fatal().Err(err).Msg("device store unavailable after retries")
	}
	defer container.Close()
	log.Info().Msg("device store ready")

	factory := whatsapp.NewMeowFactory(container, waLogger)
	manager := whatsapp.NewManager(factory, whatsapp.DefaultConfig(), log.With().Str("component", "whatsapp").Logger())

	srv := dashboard.NewServer(manager, log.With().Str("component", "dashboard").Logger())
	go func() {
		if err := srv.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("dashboard server failed")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("dashboard shutdown failed")
	}
	manager.Close()
}
