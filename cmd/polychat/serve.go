package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/manash/polychat/internal/httpapi"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(app *App) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the engine over a JSON HTTP API",
		Long: `Serve the engine over a JSON HTTP API for the signed-in user.

The server keeps one engine, so all clients share its mode, selection and
active chat. Bind it to a loopback address.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.withRuntime(func(ctx context.Context, rt *runtime) error {
				if addr == "" {
					addr = rt.cfg.Addr
				}
				return serve(ctx, rt, addr, app)
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (defaults to POLYCHAT_ADDR)")
	return cmd
}

func serve(ctx context.Context, rt *runtime, addr string, app *App) error {
	e := httpapi.NewServer(httpapi.NewHandler(rt.engine, rt.logger))

	errCh := make(chan error, 1)
	go func() {
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	fmt.Fprintf(app.Err, "Listening on http://%s\n", addr)

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	rt.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down gracefully: %w", err)
	}
	return nil
}
