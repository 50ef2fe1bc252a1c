package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/vedran77/pulsechat/internal/config"
	"github.com/vedran77/pulsechat/internal/database"
	"github.com/vedran77/pulsechat/internal/repository"
	"github.com/vedran77/pulsechat/internal/repository/memory"
	postgresrepo "github.com/vedran77/pulsechat/internal/repository/postgres"
	"github.com/vedran77/pulsechat/internal/service"
	"github.com/vedran77/pulsechat/internal/transport/http/router"
	"github.com/vedran77/pulsechat/internal/transport/ws"
)

const shutdownTimeout = 30 * time.Second

var rootCmd = &cobra.Command{
	Use:          "pulsechat-server",
	Short:        "Direct-message chat backend",
	SilenceUsage: true,
	RunE:         runServer,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	} else {
		logger = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Logger()
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	return logger.Level(level)
}

type repos struct {
	users    repository.UserRepository
	channels repository.ChannelRepository
	messages repository.MessageRepository
}

func runServer(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Storage
	var r repos
	if cfg.DatabaseURL != "" {
		pool, err := database.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error().Err(err).Msg("postgres connection failed")
			return err
		}
		defer pool.Close()

		if err := database.Migrate(ctx, pool); err != nil {
			logger.Error().Err(err).Msg("migration failed")
			return err
		}
		logger.Info().Msg("connected to PostgreSQL")

		r = repos{
			users:    postgresrepo.NewUserRepo(pool),
			channels: postgresrepo.NewChannelRepo(pool),
			messages: postgresrepo.NewMessageRepo(pool),
		}
	} else {
		logger.Warn().Msg("DATABASE_URL not set, using in-memory storage")
		r = repos{
			users:    memory.NewUserRepo(),
			channels: memory.NewChannelRepo(),
			messages: memory.NewMessageRepo(),
		}
	}

	// Event bus
	var bus ws.Bus
	if cfg.RedisURL != "" {
		redisBus, err := ws.NewRedisBus(ctx, cfg.RedisURL, logger)
		if err != nil {
			logger.Error().Err(err).Msg("redis connection failed")
			return err
		}
		defer redisBus.Close()
		logger.Info().Msg("connected to Redis")
		bus = redisBus
	} else {
		bus = ws.NewLocalBus(1024)
	}

	// Services
	tokens := service.NewTokenService(r.users, cfg.JWTSecret, cfg.TokenIssuer, cfg.TokenTTL)
	directory := service.NewDirectoryService(r.users)
	channels := service.NewChannelService(r.channels, r.messages, r.users)
	messages := service.NewMessageService(channels)
	presence := service.NewPresenceService(r.users)
	// Other instances sharing the bus own their users' presence.
	if cfg.RedisURL == "" {
		if err := presence.Reset(ctx); err != nil {
			logger.Error().Err(err).Msg("presence reset failed")
			return err
		}
	}

	notifier := ws.NewBusNotifier(bus, logger)
	messages.SetNotifier(notifier)
	presence.SetNotifier(notifier)

	hub := ws.NewHub(channels, logger)
	hub.SetPresenceTracker(presence)

	srv := &http.Server{
		Addr: ":" + cfg.ServerPort,
		Handler: router.New(logger, router.Services{
			Tokens:    tokens,
			Directory: directory,
			Channels:  channels,
			Messages:  messages,
			Hub:       hub,
		}),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return hub.Run(gctx)
	})

	g.Go(func() error {
		return bus.Run(gctx, hub.Deliver)
	})

	g.Go(func() error {
		logger.Info().
			Str("port", cfg.ServerPort).
			Str("env", cfg.Env).
			Msg("starting pulsechat server")

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("server stopped with error")
		return err
	}

	logger.Info().Msg("server stopped")
	return nil
}
