package cli

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/warp/crewtime/api"
)

func newServeCommand(load configLoader) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the device API and background sync",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}

			a, err := openApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			handler := api.NewHandler(a.ledger)
			handler.Sync = a.sync
			handler.Extractor = a.extractor

			if a.sync != nil {
				a.sync.Start()
			} else {
				log.Println("No remote configured, sync disabled")
			}

			log.Printf("Device %s, database %s", a.deviceID, cfg.Database.Path)
			router := api.NewRouter(handler, api.RouterOptions{AllowedOrigins: cfg.Server.AllowedOrigins})
			return listenAndServe(cmd.Context(), cfg.Server.Port, router, cfg.Server.ShutdownTimeout)
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "HTTP server port (overrides server.port)")
	return cmd
}

// listenAndServe runs an HTTP server until ctx is done or SIGINT/SIGTERM
// arrives, then drains active requests for at most shutdownTimeout.
func listenAndServe(ctx context.Context, port int, handler http.Handler, shutdownTimeout time.Duration) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Server starting on http://localhost:%d", port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Println("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	log.Println("Server stopped")
	return nil
}
