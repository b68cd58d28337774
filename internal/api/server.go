package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/nerrad567/valvectl/internal/history"
	"github.com/nerrad567/valvectl/internal/infrastructure/config"
	"github.com/nerrad567/valvectl/internal/infrastructure/database"
	"github.com/nerrad567/valvectl/internal/infrastructure/logging"
	"github.com/nerrad567/valvectl/internal/infrastructure/mqtt"
	"github.com/nerrad567/valvectl/internal/operation"
	"github.com/nerrad567/valvectl/internal/relay"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Security config.SecurityConfig
	Logger   *logging.Logger
	Manager  *operation.Manager
	Repo     history.Repository // optional: history endpoints return 503 without it
	DB       *database.DB       // optional: pool stats in /metrics
	MQTT     *mqtt.Client       // optional: connection state in /metrics
	Hub      *Hub               // optional: created by New when nil

	// DefaultDurationMinutes applies to records without a duration.
	DefaultDurationMinutes float64
	Version                string
}

// Server is the HTTP API server for valvectl.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg             config.APIConfig
	wsCfg           config.WebSocketConfig
	secCfg          config.SecurityConfig
	logger          *logging.Logger
	manager         *operation.Manager
	repo            history.Repository
	db              *database.DB
	mqtt            *mqtt.Client
	hub             *Hub
	tickets         *ticketStore
	defaultDuration float64
	version         string
	startTime       time.Time
	server          *http.Server
	listener        net.Listener
	cancel          context.CancelFunc
}

// New creates a new API server with the given dependencies.
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Manager == nil {
		return nil, fmt.Errorf("operation manager is required")
	}

	defaultDuration := deps.DefaultDurationMinutes
	if defaultDuration <= 0 {
		defaultDuration = relay.DefaultDurationMinutes
	}

	hub := deps.Hub
	if hub == nil {
		hub = NewHub(deps.WS, deps.Logger)
	}

	return &Server{
		cfg:             deps.Config,
		wsCfg:           deps.WS,
		secCfg:          deps.Security,
		logger:          deps.Logger,
		manager:         deps.Manager,
		repo:            deps.Repo,
		db:              deps.DB,
		mqtt:            deps.MQTT,
		hub:             hub,
		tickets:         newTicketStore(),
		defaultDuration: defaultDuration,
		version:         deps.Version,
		startTime:       time.Now(),
	}, nil
}

// Hub returns the server's WebSocket hub, which doubles as a
// history.Observer for live operation events.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start begins listening for HTTP connections.
//
// The listener is bound synchronously so a port conflict is reported here;
// requests are served in a background goroutine until Close().
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	go s.hub.Run(srvCtx)
	go s.cleanTicketsLoop(srvCtx)

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		s.cancel()
		return fmt.Errorf("listening on %s: %w", s.server.Addr, err)
	}
	s.listener = ln

	s.logger.Info("API server starting", "address", ln.Addr().String())
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound listener address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
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
