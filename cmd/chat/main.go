package main

import (
	"bufio"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/vedran77/pulsechat/internal/client"
	"github.com/vedran77/pulsechat/internal/session"
)

var rootCmd = &cobra.Command{
	Use:          "pulsechat",
	Short:        "Terminal client for pulsechat direct messages",
	SilenceUsage: true,
	RunE:         runChat,
}

var (
	flagServer  string
	flagName    string
	flagVerbose bool
)

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&flagServer, "server", envOr("PULSECHAT_SERVER", "http://localhost:8080"), "pulsechat server base URL (env PULSECHAT_SERVER)")
	flags.StringVar(&flagName, "name", os.Getenv("PULSECHAT_NAME"), "display name to log in with (env PULSECHAT_NAME)")
	flags.BoolVarP(&flagVerbose, "verbose", "v", false, "log client internals to stderr")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func runChat(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	level := zerolog.WarnLevel
	if flagVerbose {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		Level(level).
		With().
		Timestamp().
		Logger()

	manager := session.NewManager(
		client.NewTokenClient(flagServer, nil),
		client.NewBackend(flagServer, nil, logger),
		logger,
	)
	defer manager.Disconnect(ctx)

	r := newREPL(manager, bufio.NewScanner(os.Stdin), os.Stdout)
	if err := r.run(ctx, flagName); err != nil {
		return fmt.Errorf("chat: %w", err)
	}
	return nil
}
