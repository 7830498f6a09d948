package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/coffersTech/logql/internal/controller"
	"github.com/coffersTech/logql/internal/engine"
	"github.com/coffersTech/logql/internal/history"
	"github.com/coffersTech/logql/internal/server"
)

func newServeCmd(c *cli) *cobra.Command {
	var (
		addr    string
		dataDir string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the parse HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			if dataDir != "" {
				cfg.History.DataDir = dataDir
			}
			logger := c.logger

			journal, err := history.Open(cfg.History.DataDir, cfg.History.MaxEntries, logger)
			if err != nil {
				return err
			}
			defer journal.Close()

			e := engine.New(journal, engine.LoadStats(cfg.History.DataDir), logger)
			logger.Info("Engine initialized",
				zap.String("data", cfg.History.DataDir),
				zap.Duration("retention", cfg.History.Retention.Duration))

			var tokens *controller.Store
			if cfg.Auth.Enabled {
				tokens = controller.NewStore(cfg.Auth.TokensFile)
				if err := tokens.Load(); err != nil {
					return err
				}
				logger.Info("Token auth enabled", zap.Int("tokens", len(tokens.List())))
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			maintenanceDone := make(chan struct{})
			go func() {
				defer close(maintenanceDone)
				e.RunMaintenance(ctx, cfg.History.CompactInterval.Duration, cfg.History.Retention.Duration)
			}()

			srv := server.NewAPIServer(e, tokens, logger, server.Options{
				Addr:         cfg.Server.Addr,
				ReadTimeout:  cfg.Server.ReadTimeout.Duration,
				WriteTimeout: cfg.Server.WriteTimeout.Duration,
				Gzip:         cfg.Server.Gzip,
			})

			errCh := make(chan error, 1)
			go func() {
				logger.Info("Listening", zap.String("addr", cfg.Server.Addr))
				errCh <- srv.Start()
			}()

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(quit)

			select {
			case sig := <-quit:
				logger.Info("Shutting down", zap.String("signal", sig.String()))
			case err := <-errCh:
				if err != nil {
					logger.Error("Server stopped", zap.Error(err))
				}
			}

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("Server shutdown error", zap.Error(err))
			}

			cancel()
			<-maintenanceDone
			if err := e.Flush(); err != nil {
				logger.Error("Final flush failed", zap.Error(err))
				return err
			}

			logger.Info("logql exited gracefully")
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides config)")
	cmd.Flags().StringVar(&dataDir, "data", "", "History and stats directory (overrides config)")
	return cmd
}
