package cmd

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/awnumar/memguard"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	"github.com/jmcleod/pushlog/api"
	"github.com/jmcleod/pushlog/config"
	"github.com/jmcleod/pushlog/internal/logging"
)

var (
	listenAddr string
	tlsCert    string
	tlsKey     string
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the pushlog HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		// Secrets live in memguard enclaves; wipe them on the way out.
		defer memguard.Purge()

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if listenAddr != "" {
			cfg.Listen = listenAddr
		}
		logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)
		warnMissing(logger, cfg)

		opts := []api.Option{api.WithLogger(logger)}
		ledger, err := openLedger(cmd.Context(), cfg, false)
		if err != nil {
			return err
		}
		if ledger != nil {
			defer ledger.Close()
			opts = append(opts, api.WithLedger(ledger))
		}

		a := api.New(cfg, opts...)
		defer a.Close()

		server := &http.Server{
			Addr:              cfg.Listen,
			Handler:           newRouter(a, logger),
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		}

		useTLS := tlsCert != "" && tlsKey != ""
		if useTLS {
			cert, err := tls.LoadX509KeyPair(tlsCert, tlsKey)
			if err != nil {
				return fmt.Errorf("failed to load TLS key pair: %w", err)
			}
			server.TLSConfig = &tls.Config{
				Certificates: []tls.Certificate{cert},
				MinVersion:   tls.VersionTLS12,
			}
		}

		// Graceful shutdown on SIGINT/SIGTERM.
		done := make(chan error, 1)
		go func() {
			var err error
			if useTLS {
				err = server.ListenAndServeTLS("", "")
			} else {
				err = server.ListenAndServe()
			}
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				done <- fmt.Errorf("server failed: %w", err)
				return
			}
			done <- nil
		}()

		printBanner(cmd.OutOrStdout())
		logger.Info("starting server",
			"listen", cfg.Listen,
			"tls", useTLS,
			"webhook_method", cfg.WebhookMethod,
			"ledger", cfg.Ledger,
		)

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			logger.Info("shutting down", "signal", sig.String())
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := server.Shutdown(ctx); err != nil {
				return fmt.Errorf("server shutdown failed: %w", err)
			}
			return nil
		case err := <-done:
			return err
		}
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
	serverCmd.Flags().StringVarP(&listenAddr, "listen", "l", "", "Address to listen on (overrides PUSHUP_LISTEN)")
	serverCmd.Flags().StringVar(&tlsCert, "tls-cert", "", "Path to TLS certificate file")
	serverCmd.Flags().StringVar(&tlsKey, "tls-key", "", "Path to TLS key file")
}

// newRouter mounts the API under /api next to the health check.
func newRouter(a *api.API, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(api.RequestLogger(logger))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})

	r.Mount("/api", a.Router())
	return r
}

// warnMissing logs configuration the handlers will reject per request.
func warnMissing(logger *slog.Logger, cfg *config.Config) {
	if !cfg.HasPasscode() {
		logger.Warn("no passcode configured; POST /api/auth will fail with MISSING_PASSCODE")
	}
	if !cfg.CookieSecret.IsSet() {
		logger.Warn("no cookie secret configured; authenticated endpoints will fail with MISSING_COOKIE_SECRET")
	}
	if cfg.WebhookURL == "" {
		logger.Warn("no webhook URL configured; submissions will fail with MISSING_WEBHOOK_URL")
	}
}
