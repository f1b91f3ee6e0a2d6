package main

import (
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"repoqa/internal/api"
	"repoqa/internal/snapshot"
)

var flagAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the question-answering HTTP API",
	Long: `Expose ingest, ask and snapshot management over HTTP. Ingest progress
can be followed on the run's websocket event stream.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if flagAddr != "" {
			cfg.Addr = flagAddr
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := buildApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		// Pick up the newest snapshot so questions work immediately;
		// a fresh install simply starts idle.
		if err := loadForQuery(ctx, a, ""); err != nil {
			if !errors.Is(err, snapshot.ErrNotFound) {
				return err
			}
			slog.Info("no snapshot to restore, waiting for ingest")
		}

		srv := api.NewServer(api.Config{Pipeline: a.pipe, Store: a.store, Log: slog.With("component", "api")})
		return srv.Start(ctx, cfg.Addr)
	},
}

func init() {
	serveCmd.Flags().StringVar(&flagAddr, "addr", "", "listen address (default :8080)")
	rootCmd.AddCommand(serveCmd)
}
