package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/unifi-mqtt/internal/infrastructure/config"
	"github.com/nerrad567/unifi-mqtt/internal/infrastructure/logging"
	"github.com/nerrad567/unifi-mqtt/internal/status"
	"github.com/nerrad567/unifi-mqtt/internal/unifi"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// ControllerView is the read-only part of the controller the API reports on.
type ControllerView interface {
	Subsystems() []string
	SessionStates() map[string]unifi.SessionState
	OpenSessions() int
	Reconnecting() bool
}

// StatusSource provides persisted lifecycle summaries.
type StatusSource interface {
	Snapshot() []status.SubsystemStatus
	Get(subsystem string) (status.SubsystemStatus, error)
}

// HealthChecker is implemented by infrastructure clients.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config     config.APIConfig
	Logger     *logging.Logger
	Controller ControllerView
	Status     StatusSource  // optional
	MQTT       HealthChecker // optional
	Database   HealthChecker // optional
	Metrics    http.Handler  // optional: Prometheus exposition
	Version    string
}

// Server is the HTTP API server for the bridge.
type Server struct {
	cfg        config.APIConfig
	logger     *logging.Logger
	controller ControllerView
	status     StatusSource
	mqtt       HealthChecker
	db         HealthChecker
	metrics    http.Handler
	version    string
	startTime  time.Time
	server     *http.Server
}

// New creates a new API server with the given dependencies.
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Controller == nil {
		return nil, fmt.Errorf("controller is required")
	}

	return &Server{
		cfg:        deps.Config,
		logger:     deps.Logger,
		controller: deps.Controller,
		status:     deps.Status,
		mqtt:       deps.MQTT,
		db:         deps.Database,
		metrics:    deps.Metrics,
		version:    deps.Version,
		startTime:  time.Now(),
	}, nil
}

// Start begins listening for HTTP connections in a background goroutine.
// The server can be stopped with Close().
func (s *Server) Start(_ context.Context) error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		s.logger.Info("API server starting", "address", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
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
