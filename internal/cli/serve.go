package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/deepnoodle-ai/invoiceflow/httpapi"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// NewServeCommand runs the HTTP API until interrupted.
func NewServeCommand(opts *RootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the workflow and human review HTTP API",
		Long: `Serve the workflow and human review HTTP API.

When sweep.max_age is set, checkpoints that wait longer are rejected on
every sweep.interval tick.

Example:
  invoiceflow serve --config invoiceflow.yaml --addr :8081`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return opts.withApp(ctx, false, func(app *App) error {
				listen := app.Config.HTTP.Addr
				if addr != "" {
					listen = addr
				}
				server := &http.Server{
					Addr:              listen,
					Handler:           httpapi.New(app.Engine, httpapi.WithLogger(app.Logger)),
					ReadHeaderTimeout: 10 * time.Second,
				}

				g, gctx := errgroup.WithContext(ctx)
				g.Go(func() error {
					app.Logger.Info("listening", "addr", listen, "store", app.StoreDriver)
					if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						return err
					}
					return nil
				})
				g.Go(func() error {
					<-gctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), app.Config.HTTP.ShutdownTimeout)
					defer cancel()
					app.Logger.Info("shutting down")
					return server.Shutdown(shutdownCtx)
				})
				if app.Config.Sweep.MaxAge > 0 {
					g.Go(func() error {
						runSweeper(gctx, app)
						return nil
					})
				}
				return g.Wait()
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address, overrides http.addr")
	return cmd
}

func runSweeper(ctx context.Context, app *App) {
	interval := app.Config.Sweep.Interval
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			result, err := app.Engine.Sweep(ctx, app.Config.Sweep.MaxAge, now.UTC())
			if err != nil {
				app.Logger.Error("sweep failed", "error", err)
			}
			if result != nil && len(result.Rejected) > 0 {
				app.Logger.Info("swept stale checkpoints", "rejected", len(result.Rejected))
			}
		}
	}
}
