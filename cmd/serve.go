package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/tripwise/tripwise/db"
	"github.com/tripwise/tripwise/internal/api"
	"github.com/tripwise/tripwise/internal/config"
	"github.com/tripwise/tripwise/internal/llm"
	"github.com/tripwise/tripwise/internal/orchestrator"
	"github.com/tripwise/tripwise/internal/session"
	"github.com/tripwise/tripwise/internal/tools"
	"github.com/tripwise/tripwise/internal/travel"
)

// Server timeout configuration.
const (
	readHeaderTimeout = 10 * time.Second
	readTimeout       = 30 * time.Second
	writeTimeout      = 10 * time.Minute // SSE turns can outlast ordinary responses
	idleTimeout       = 2 * time.Minute
	shutdownTimeout   = 30 * time.Second
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := newLogger()
	logger.Info("starting tripwise", "version", Version, "addr", cfg.Server.Addr)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	connURL := cfg.Postgres.ConnURL()
	if err := db.Migrate(connURL, logger); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	pool, err := pgxpool.New(ctx, connURL)
	if err != nil {
		return fmt.Errorf("creating connection pool: %w", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("pinging database: %w", err)
	}

	memory := session.NewMemory(cfg.Session.TTL, cfg.Session.SweepInterval, logger)
	defer memory.Close()
	archive := session.NewPGArchive(pool, logger)
	store := session.NewStore(memory, archive, cfg.Session.TTL, logger)

	registry := tools.NewRegistry()
	err = tools.RegisterTravel(registry, tools.TravelDeps{
		Catalog: travel.NewCatalogClient(cfg.Capabilities.CatalogBaseURL, nil),
		Orders:  travel.NewOrderClient(cfg.Capabilities.OrderBaseURL, nil),
	})
	if err != nil {
		return fmt.Errorf("registering capabilities: %w", err)
	}

	upstream := llm.New(llm.Config{
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		Logger:      logger,
	})

	orch, err := orchestrator.New(orchestrator.Config{
		Upstream:          upstream,
		Store:             store,
		Registry:          registry,
		Dispatcher:        tools.NewDispatcher(registry, cfg.Capabilities.Suppressed, logger),
		MaxDispatchRounds: cfg.LLM.MaxDispatchRounds,
		HistoryWindow:     cfg.Session.HistoryWindow,
		TurnTimeout:       cfg.LLM.TurnTimeout,
		Logger:            logger,
	})
	if err != nil {
		return fmt.Errorf("creating orchestrator: %w", err)
	}

	apiServer, err := api.NewServer(api.ServerConfig{
		Logger:       logger,
		Orchestrator: orch,
		SessionStore: store,
		Registry:     registry,
		Pool:         pool,
		CORSOrigins:  cfg.Server.CORSOrigins,
		IsDev:        cfg.Postgres.SSLMode == "disable",
		TrustProxy:   cfg.Server.TrustProxy,
		RateBurst:    cfg.Server.RateBurst,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}

	logger.Info("HTTP server ready",
		"addr", cfg.Server.Addr,
		"capabilities", registry.Count(),
		"api", "/api/v1/*",
		"health", "/health, /ready",
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down HTTP server")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down server: %w", err)
		}
		<-errCh
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("HTTP server: %w", err)
	}
}
