package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"github.com/upb/rag-chat/config"
	"github.com/upb/rag-chat/routes"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	var (
		ingestOnStartup bool
		watch           bool
		addr            string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Serves POST /rag/call, POST /rag/stream, /healthz, /readyz and /metrics.
With --ingest the document pattern is ingested before the server starts;
with --watch changed files are re-ingested while it runs.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			deps, err := bootstrap(cmd, root, func(cfg *config.Config) {
				if cmd.Flags().Changed("ingest") {
					cfg.Ingest.OnStartup = ingestOnStartup
				}
				if cmd.Flags().Changed("watch") {
					cfg.Ingest.Watch = watch
				}
			})
			if err != nil {
				return err
			}
			defer deps.Close(context.Background())

			cfg := deps.Config
			logger := deps.Logger
			ctx := cmd.Context()

			if cfg.Ingest.OnStartup {
				report, err := deps.Ingest.Run(ctx)
				if err != nil {
					return err
				}
				logger.Info("startup ingestion complete",
					zap.Int("documents", report.Documents),
					zap.Int("chunks", report.Chunks))
			}

			if addr == "" {
				addr = cfg.Server.Address()
			}
			srv := &http.Server{
				Addr:              addr,
				Handler:           routes.SetupRoutes(deps),
				ReadHeaderTimeout: 5 * time.Second,
				ReadTimeout:       cfg.Server.ReadTimeout,
				WriteTimeout:      cfg.Server.WriteTimeout,
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				logger.Info("server listening", zap.String("addr", addr), zap.String("environment", cfg.Environment))
				var err error
				if cfg.Server.TLS.Enabled {
					err = srv.ListenAndServeTLS(cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile)
				} else {
					err = srv.ListenAndServe()
				}
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			})
			g.Go(func() error {
				<-gctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
				defer cancel()
				logger.Info("shutting down server")
				return srv.Shutdown(shutdownCtx)
			})
			if cfg.Ingest.Watch {
				g.Go(func() error {
					return deps.NewWatcher().Run(gctx)
				})
			}
			return g.Wait()
		},
	}

	cmd.Flags().BoolVar(&ingestOnStartup, "ingest", false, "ingest documents before serving (INGEST_ON_STARTUP)")
	cmd.Flags().BoolVar(&watch, "watch", false, "re-ingest documents when they change (INGEST_WATCH)")
	cmd.Flags().StringVar(&addr, "addr", "", "listen address, defaults to SERVER_HOST:PORT")
	return cmd
}
