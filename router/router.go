// Package router serves the operational HTTP endpoints of a watching
// client: liveness, readiness, the current contract binding and a
// sanitized view of the configuration.
package router

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/pokt-network/poktroll/pkg/polylog"

	"github.com/georgex8001/voting-fun/config"
	"github.com/georgex8001/voting-fun/contract"
	"github.com/georgex8001/voting-fun/health"
	"github.com/georgex8001/voting-fun/metrics"
)

// StatusReporter reports the gateway status the client is acting on.
type StatusReporter interface {
	Status() health.Status
}

// BindingResolver reports which contract deployment is in use.
type BindingResolver interface {
	ResolveBinding() contract.Binding
}

// LeaderReporter reports this instance's prober role. Optional.
type LeaderReporter interface {
	IsLeader() bool
	InstanceID() string
}

// ConfigReporter provides sanitized configuration information.
// All sensitive information (private keys, passwords) MUST be redacted.
type ConfigReporter interface {
	SanitizedConfig() map[string]any
}

// Router serves the operational endpoints.
type Router struct {
	config config.RouterConfig
	logger polylog.Logger

	status    StatusReporter
	bindings  BindingResolver
	leader    LeaderReporter
	reporter  ConfigReporter
	endpoints metrics.LeaderboardDataProvider

	mux *http.ServeMux
}

// Config contains configuration for creating a Router.
type Config struct {
	Server   config.RouterConfig
	Status   StatusReporter
	Bindings BindingResolver
	// Leader, ConfigReporter and Endpoints may be nil.
	Leader         LeaderReporter
	ConfigReporter ConfigReporter
	Endpoints      metrics.LeaderboardDataProvider
	Logger         polylog.Logger
}

// NewRouter creates a Router and registers its handlers.
func NewRouter(cfg Config) *Router {
	r := &Router{
		config:    cfg.Server,
		logger:    cfg.Logger.With("component", "router"),
		status:    cfg.Status,
		bindings:  cfg.Bindings,
		leader:    cfg.Leader,
		reporter:  cfg.ConfigReporter,
		endpoints: cfg.Endpoints,
		mux:       http.NewServeMux(),
	}
	r.handleRoutes()
	return r
}

func (r *Router) handleRoutes() {
	r.mux.HandleFunc("GET /health", r.handleHealth)
	r.mux.HandleFunc("GET /ready", r.handleReady)
	r.mux.HandleFunc("GET /healthz", r.handleHealthz)
	r.mux.HandleFunc("GET /config", r.handleConfig)
}

// ServeHTTP implements http.Handler.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Start listens on the configured port and serves until ctx is done.
// The listener is bound before returning so port errors surface to the caller.
func (r *Router) Start(ctx context.Context) (*http.Server, error) {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", r.config.Port))
	if err != nil {
		return nil, fmt.Errorf("failed to listen on port %d: %w", r.config.Port, err)
	}

	server := &http.Server{
		Handler:      r,
		ReadTimeout:  r.config.ReadTimeout,
		WriteTimeout: r.config.WriteTimeout,
		IdleTimeout:  r.config.IdleTimeout,
	}

	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.logger.Error().Err(err).Msg("operational server stopped")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			r.logger.Error().Err(err).Msg("operational server forced to shutdown")
		}
	}()

	r.logger.Info().Str("addr", ln.Addr().String()).Msg("serving operational endpoints")
	return server, nil
}
