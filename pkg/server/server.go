// Package server provides the public entry point for initializing the
// Stat Tracker server: config, telemetry, store, engine, and router
// composed into a ready http.Handler.
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/blueherons/stattracker/internal/api"
	"github.com/blueherons/stattracker/internal/api/handlers"
	"github.com/blueherons/stattracker/internal/auth"
	"github.com/blueherons/stattracker/internal/config"
	"github.com/blueherons/stattracker/internal/engine"
	"github.com/blueherons/stattracker/internal/identity"
	"github.com/blueherons/stattracker/internal/store"
	"github.com/blueherons/stattracker/internal/telemetry"
)

// Server holds the initialized Stat Tracker.
type Server struct {
	// Handler is the HTTP handler with all routes and middleware.
	Handler http.Handler

	// Store is the backing store, exposed for shutdown.
	Store store.Store

	// Auth is the provider chain; deployments register their
	// authentication providers here before serving.
	Auth *auth.Chain

	// Port is the port the server should listen on.
	Port int

	// ShutdownFunc should be called on graceful shutdown to flush
	// telemetry.
	ShutdownFunc func(context.Context) error
}

// New initializes the server from environment configuration with a
// PostgreSQL-backed store.
func New(ctx context.Context) (*Server, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	st, err := store.NewPostgresStore(ctx, cfg.Database.URL, cfg.Database.MaxConnections)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return NewWithStore(ctx, cfg, st)
}

// NewWithStore initializes the server over an existing store. Used by
// tests with the in-memory store.
func NewWithStore(_ context.Context, cfg *config.Config, st store.Store) (*Server, error) {
	shutdown, err := telemetry.Init(cfg.Telemetry, cfg.Version)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	eng := engine.New(st)
	resolver := identity.NewResolver(st)
	chain := auth.NewChain()

	h := handlers.New(eng, resolver, chain, cfg.Version)
	router := api.NewRouter(h)

	log.Info().Int("port", cfg.Port).Str("version", cfg.Version).Msg("stat tracker initialized")

	return &Server{
		Handler:      router,
		Store:        st,
		Auth:         chain,
		Port:         cfg.Port,
		ShutdownFunc: shutdown,
	}, nil
}
