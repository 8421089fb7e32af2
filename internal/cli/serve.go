package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/UkralStul/comments-service/internal/config"
	"github.com/UkralStul/comments-service/internal/handler"
	"github.com/UkralStul/comments-service/internal/logging"
)

func newServeCmd() *cobra.Command {
	var (
		addr string
		seed bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long:  "Start the HTTP API, the websocket feed and the image normalization workers.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			if addr != "" {
				cfg.Addr = addr
			}
			logging.Setup(cfg.DevMode)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg, seed)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "address to listen on, overrides API_ADDR")
	cmd.Flags().BoolVar(&seed, "seed", false, "fill in-memory storage with demo comments")

	return cmd
}

func runServe(ctx context.Context, cfg config.Config, seed bool) error {
	a, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	if seed {
		if cfg.StorageType != "memory" && cfg.StorageType != "in-memory" {
			return fmt.Errorf("--seed is only supported with memory storage")
		}
		if err := seedDemo(ctx, a.comments); err != nil {
			return fmt.Errorf("seed: %w", err)
		}
	}

	server := &http.Server{
		Addr: cfg.Addr,
		Handler: handler.NewRouter(handler.Options{
			Comments:       a.comments,
			Search:         a.search,
			Events:         a.hub,
			Files:          a.files,
			Store:          a.store,
			JWTSecret:      []byte(cfg.JWTSecret),
			MaxUploadBytes: cfg.MaxUploadBytes,
		}),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("comments API listening", "addr", cfg.Addr, "storage", cfg.StorageType, "captcha_policy", cfg.ChallengePolicy)
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

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Warn("shutdown error", "err", err)
	}
	return nil
}
