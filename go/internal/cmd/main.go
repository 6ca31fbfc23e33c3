package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mcdev12/debateroom/go/internal/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	configPath := flag.String("config", os.Getenv("ROOMWATCH_CONFIG"), "path to YAML config file")
	room := flag.String("room", "", "room to open on startup (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	if *room != "" {
		cfg.Room = *room
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	services, err := setupServices(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to setup services")
	}
	defer services.Close()

	log.Info().
		Str("api", cfg.API.BaseURL).
		Str("transport", cfg.Stream.Transport).
		Bool("streaming", !cfg.Stream.Disabled).
		Bool("mirror", cfg.Mirror.Enabled).
		Msg("starting roomwatch")

	if cfg.Room != "" {
		// a failed load is retryable from the UI, so keep running
		if err := services.View.Select(ctx, cfg.Room); err != nil {
			log.Error().Err(err).Str("room_id", cfg.Room).Msg("initial room load failed")
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	if services.Gateway == nil {
		g.Go(func() error {
			logNotices(gctx, services.Notices.Notices())
			return nil
		})
	} else {
		server := setupServer(cfg, services)

		g.Go(func() error {
			return services.Gateway.Start(gctx)
		})
		g.Go(func() error {
			log.Info().Str("addr", server.Addr).Msg("UI gateway listening")
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		})
	}

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("roomwatch stopped with error")
	}
	log.Info().Msg("roomwatch stopped")
}
