package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	"github.com/jmcleod/navauth/internal/mockapi"
)

var mockAddr string

var mockServerCmd = &cobra.Command{
	Use:   "mock-server",
	Short: "Run the development auth backend",
	Long: `Runs an in-memory auth backend with the same endpoints and response shapes
as the real one. One-time codes are echoed in responses unless
NAVAUTH_MOCK_ECHO_OTP=false. State is lost on exit.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		addr := cfg.Mock.Addr
		if cmd.Flags().Changed("addr") {
			addr = mockAddr
		}
		if cfg.Mock.JWTSecret == "devsecret" {
			logger.Warn("mock backend is signing tokens with the default secret")
		}

		a := mockapi.New(
			mockapi.WithLogger(logger),
			mockapi.WithJWTSecret(cfg.Mock.JWTSecret),
			mockapi.WithAccessTTL(cfg.Mock.AccessTTL),
			mockapi.WithOTPTTL(cfg.Mock.OTPTTL),
			mockapi.WithEchoOTP(cfg.Mock.EchoOTP),
		)
		defer a.Close()

		r := chi.NewRouter()
		r.Use(middleware.RequestID)
		r.Use(middleware.Logger)

		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("OK"))
		})
		r.Mount("/", a.Router())

		server := &http.Server{
			Addr:              addr,
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		}

		// Graceful shutdown on SIGINT/SIGTERM.
		done := make(chan error, 1)
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				done <- fmt.Errorf("server failed: %w", err)
				return
			}
			done <- nil
		}()

		out := cmd.OutOrStdout()
		printBanner(out, "Mock Auth Backend")
		fmt.Fprintf(out, "Listening on http://%s (docs at /docs)...\n", addr)

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			fmt.Fprintf(out, "\nReceived %s, shutting down...\n", sig)
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
	rootCmd.AddCommand(mockServerCmd)
	mockServerCmd.Flags().StringVar(&mockAddr, "addr", "", "Listen address (env NAVAUTH_MOCK_ADDR)")
}
