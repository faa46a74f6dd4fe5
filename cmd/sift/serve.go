package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/FranksOps/sift/internal/metrics"
	"github.com/FranksOps/sift/internal/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the search and classify API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if cmd.Flags().Changed("addr") {
			cfg.Server.Addr = serveAddr
		}

		a, err := newApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer func() {
			if err := a.Close(); err != nil {
				logger.Warn("shutdown cleanup failed", slog.String("error", err.Error()))
			}
		}()

		if cfg.Metrics.Port > 0 {
			ms := metrics.Start(cfg.Metrics.Port, logger)
			defer func() { _ = ms.Stop(ctx) }()
		}

		srv, err := server.New(server.Config{
			Addr:            cfg.Server.Addr,
			Searcher:        a.service,
			Strategies:      a.strategy,
			Endpoints:       a.engine.Endpoints,
			Proxies:         a.proxies,
			UnhealthyErrors: cfg.Server.UnhealthyErrors,
			ServeMetrics:    cfg.Metrics.Port == 0,
			ShutdownTimeout: cfg.Server.ShutdownTimeout,
			Logger:          logger,
		})
		if err != nil {
			return err
		}
		logger.Info("sift starting",
			slog.String("addr", cfg.Server.Addr),
			slog.Any("strategies", a.strategy),
			slog.String("storage", cfg.Storage.Backend),
			slog.String("cache", cfg.Cache.Backend),
		)
		return srv.Run(ctx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "Listen address")
}
