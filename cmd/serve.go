package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/tracker/internal/api"
	webui "github.com/joescharf/tracker/internal/ui"
)

// shutdownTimeout bounds how long in-flight requests may drain on shutdown.
const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the issue API server",
	Long:  "Start an HTTP server exposing /api/issues/{project} and the embedded web page.\nBy default it listens on port 8080. Use --port to change it.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), shutdownSignals()...)
		defer stop()
		return serveRun(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "0.0.0.0", "address to bind")
	serveCmd.Flags().IntP("port", "p", 8080, "port to listen on")
	_ = viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
}

// serveRun serves the API until ctx is cancelled, then drains requests and closes the store.
func serveRun(ctx context.Context) error {
	timeout, err := time.ParseDuration(viper.GetString("server.request_timeout"))
	if err != nil {
		return fmt.Errorf("invalid server.request_timeout: %w", err)
	}

	svc, s, err := getService(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	handler, err := newHandler(api.NewServer(svc, s, logger, timeout))
	if err != nil {
		return err
	}

	addr := net.JoinHostPort(viper.GetString("server.host"), strconv.Itoa(viper.GetInt("server.port")))
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", addr, "driver", viper.GetString("store.driver"))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	logger.Info("shutting down")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// newHandler mounts the API routes next to the embedded web page.
func newHandler(srv *api.Server) (http.Handler, error) {
	page, err := webui.Handler()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize UI handler: %w", err)
	}

	router := srv.Router()
	mux := http.NewServeMux()
	mux.Handle("/api/issues/", router)
	mux.Handle("/health", router)
	mux.Handle("/", page)
	return mux, nil
}
