package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/rbrdigital/goldcare-sub000/internal/config"
	"github.com/rbrdigital/goldcare-sub000/internal/domain/consult"
	"github.com/rbrdigital/goldcare-sub000/internal/platform/db"
	"github.com/rbrdigital/goldcare-sub000/internal/platform/middleware"
	"github.com/rbrdigital/goldcare-sub000/internal/platform/storage"
	"github.com/rbrdigital/goldcare-sub000/internal/platform/websocket"
)

const version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:          "consult-server",
		Short:        "Consult draft API server",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(draftCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the consult draft API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func draftCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "draft",
		Short: "Inspect or remove persisted consult drafts",
	}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print a persisted draft and its completeness",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStorage(cmd, func(ctx context.Context, st storage.Storage, key string) error {
				return showDraft(ctx, st, key, cmd.OutOrStdout())
			})
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete a persisted draft",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStorage(cmd, func(ctx context.Context, st storage.Storage, key string) error {
				if err := st.Remove(ctx, key); err != nil {
					return fmt.Errorf("remove draft: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed draft %s\n", key)
				return nil
			})
		},
	}

	for _, c := range []*cobra.Command{showCmd, clearCmd} {
		c.Flags().String("patient", "", "Patient id")
		c.Flags().String("encounter", "", "Encounter id")
		_ = c.MarkFlagRequired("patient")
		_ = c.MarkFlagRequired("encounter")
		cmd.AddCommand(c)
	}
	return cmd
}

// withStorage opens the configured backend for a one-shot draft command.
func withStorage(cmd *cobra.Command, fn func(ctx context.Context, st storage.Storage, key string) error) error {
	patientID, _ := cmd.Flags().GetString("patient")
	encounterID, _ := cmd.Flags().GetString("encounter")
	if patientID == "" || encounterID == "" {
		return fmt.Errorf("--patient and --encounter are required")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(zerolog.WarnLevel)
	h, err := storage.Open(ctx, storageOptions(cfg), logger)
	if err != nil {
		return err
	}
	defer h.Close()
	if !h.Durable() {
		return fmt.Errorf("draft commands need a reachable redis or postgres backend (STORAGE_BACKEND=%q)", cfg.StorageBackend)
	}

	return fn(ctx, h, consult.StorageKey(cfg.StorageKeyPrefix, patientID, encounterID))
}

func showDraft(ctx context.Context, st storage.Storage, key string, w io.Writer) error {
	raw, err := st.Get(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		fmt.Fprintf(w, "No draft stored under %s\n", key)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load draft: %w", err)
	}

	var p consult.PersistedState
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return fmt.Errorf("decode draft %s: %w", key, err)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]interface{}{
		"key":          key,
		"draft":        p,
		"completeness": consult.Evaluate(consult.Rehydrate(p)),
	})
}

func storageOptions(cfg *config.Config) storage.Options {
	return storage.Options{
		Backend:     cfg.StorageBackend,
		RedisURL:    cfg.RedisURL,
		DatabaseURL: cfg.DatabaseURL,
		MaxConns:    cfg.DBMaxConns,
		MinConns:    cfg.DBMinConns,
		Timeout:     cfg.StorageTimeout(),
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	var out io.Writer = os.Stdout
	if cfg.IsDev() {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).Level(cfg.Level()).With().Timestamp().Logger()
}

// newServer wires the HTTP surface around an opened storage handle.
func newServer(cfg *config.Config, h *storage.Handle, logger zerolog.Logger) (*echo.Echo, *consult.Registry) {
	hub := websocket.NewHub(logger)
	registry := consult.NewRegistry(consult.RegistryConfig{
		Storage:      h,
		KeyPrefix:    cfg.StorageKeyPrefix,
		PersistDelay: cfg.PersistDelay(),
		Publisher:    hub,
		Logger:       logger,
	})

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Content-Type", middleware.RequestIDHeader},
	}))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	e.GET("/health/storage", storage.HealthHandler(h))
	if h.Pool != nil {
		e.GET("/health/db", db.HealthHandler(h.Pool))
	}

	websocket.NewHandler(hub, cfg.CORSOrigins).RegisterRoutes(e)

	apiV1 := e.Group("/api/v1", middleware.BodyLimit(cfg.BodyLimit), middleware.DraftAccess(logger))
	consult.NewHandler(registry).RegisterRoutes(apiV1)

	return e, registry
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := newLogger(cfg)
	if err := cfg.Validate(); err != nil {
		logger.Error().Err(err).Msg("invalid configuration")
		return err
	}

	ctx := context.Background()
	h, err := storage.Open(ctx, storageOptions(cfg), logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to open storage")
		return err
	}
	defer h.Close()

	e, registry := newServer(cfg, h, logger)

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("backend", h.Backend).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
	}
	if err := registry.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("flushing drafts failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
