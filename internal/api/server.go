// Package api provides the HTTP REST API and WebSocket server for Gray Macro.
//
// It exposes the macro library, the item editor, run control, variables
// and the type palette to editors and scripts, and streams node events to
// WebSocket clients while macros run.
//
// The server follows the same lifecycle pattern as other infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/gray-macro-core/internal/infrastructure/config"
	"github.com/nerrad567/gray-macro-core/internal/infrastructure/logging"
	"github.com/nerrad567/gray-macro-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-macro-core/internal/macro"
	"github.com/nerrad567/gray-macro-core/internal/variables"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// MQTTClient is the subset of the MQTT client the server uses to relay
// bridge health and report connectivity.
type MQTTClient interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	IsConnected() bool
}

// DBStatsProvider reports connection pool statistics.
type DBStatsProvider interface {
	Stats() sql.DBStats
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config      config.APIConfig
	WS          config.WebSocketConfig
	Security    config.SecurityConfig
	Logger      *logging.Logger
	Library     *macro.Library
	Runner      *macro.Runner
	Runs        macro.Repository // Run history; optional
	Variables   variables.Store  // Optional; variable routes answer 503 without it
	MQTT        MQTTClient       // Optional
	DB          DBStatsProvider  // Optional
	ExternalHub *Hub             // If set, the server uses this hub instead of creating its own
	Version     string
}

// Server is the HTTP API server for Gray Macro.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg         config.APIConfig
	wsCfg       config.WebSocketConfig
	secCfg      config.SecurityConfig
	logger      *logging.Logger
	library     *macro.Library
	runner      *macro.Runner
	runs        macro.Repository
	vars        variables.Store
	mqtt        MQTTClient
	db          DBStatsProvider
	version     string
	startTime   time.Time
	server      *http.Server
	hub         *Hub
	externalHub bool // true if hub was injected externally
	tickets     *ticketStore
	cancel      context.CancelFunc // cancels background goroutines on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Library == nil {
		return nil, fmt.Errorf("macro library is required")
	}
	if deps.Runner == nil {
		return nil, fmt.Errorf("macro runner is required")
	}

	s := &Server{
		cfg:       deps.Config,
		wsCfg:     deps.WS,
		secCfg:    deps.Security,
		logger:    deps.Logger,
		library:   deps.Library,
		runner:    deps.Runner,
		runs:      deps.Runs,
		vars:      deps.Variables,
		mqtt:      deps.MQTT,
		db:        deps.DB,
		version:   deps.Version,
		startTime: time.Now(),
		tickets:   newTicketStore(),
	}

	// The runner broadcasts through the hub, so the hub usually exists
	// before the server does.
	if deps.ExternalHub != nil {
		s.hub = deps.ExternalHub
		s.externalHub = true
	} else {
		s.hub = NewHub(deps.WS, deps.Logger)
	}

	return s, nil
}

// Hub returns the WebSocket hub used by the server.
func (s *Server) Hub() *Hub { return s.hub }

// Start begins listening for HTTP connections.
//
// It starts the WebSocket hub (unless injected), subscribes to bridge
// health topics for WebSocket relay, and launches the HTTP listener in a
// background goroutine. The server can be stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	if !s.externalHub {
		go s.hub.Run(srvCtx)
	}

	// Start periodic ticket cleanup to prevent memory leaks
	go s.cleanTicketsLoop(srvCtx)

	if err := s.subscribeBridgeHealth(); err != nil {
		s.logger.Warn("failed to subscribe to bridge health for WebSocket", "error", err)
	}

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       s.cfg.Timeouts.ReadTimeout(),
		ReadHeaderTimeout: s.cfg.Timeouts.ReadTimeout(),
		WriteTimeout:      s.cfg.Timeouts.WriteTimeout(),
		IdleTimeout:       s.cfg.Timeouts.IdleTimeout(),
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", s.server.Addr)
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running and responsive.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}
