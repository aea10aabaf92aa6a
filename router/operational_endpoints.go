package router

import (
	"encoding/json"
	"net/http"

	"github.com/georgex8001/voting-fun/health"
)

// ReadinessResponse is the JSON response for /ready.
type ReadinessResponse struct {
	Ready   bool   `json:"ready"`
	Gateway string `json:"gateway"`
	Message string `json:"message,omitempty"`
}

// HealthzResponse is the JSON response for /healthz.
type HealthzResponse struct {
	Gateway  string `json:"gateway"`
	Binding  string `json:"binding"`
	Contract string `json:"contract"`
	// Prober is "leader" or "follower" when leader election is enabled.
	Prober     string `json:"prober,omitempty"`
	InstanceID string `json:"instance_id,omitempty"`

	Endpoints []EndpointInfo `json:"endpoints,omitempty"`
}

// EndpointInfo is one read endpoint's reliability score.
type EndpointInfo struct {
	URL      string  `json:"url"`
	Score    float64 `json:"score"`
	Reliable bool    `json:"reliable"`
}

// handleHealth is a minimal liveness probe endpoint.
// Returns 200 OK with no body for Kubernetes liveness probes.
// For detailed health info, use /healthz instead.
func (r *Router) handleHealth(w http.ResponseWriter, req *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// handleReady returns 200 once the first gateway probe has completed,
// whichever way it went, and 503 before that. A down gateway does not make
// the client unready: it routes to the plain contract instead.
func (r *Router) handleReady(w http.ResponseWriter, req *http.Request) {
	status := r.status.Status()
	response := ReadinessResponse{
		Ready:   status != health.StatusUnknown,
		Gateway: status.String(),
	}

	code := http.StatusOK
	if !response.Ready {
		response.Message = "waiting for the first gateway probe"
		code = http.StatusServiceUnavailable
	}
	r.writeJSON(w, response, code)
}

// handleHealthz reports the gateway status and the contract binding in use.
func (r *Router) handleHealthz(w http.ResponseWriter, req *http.Request) {
	binding := r.bindings.ResolveBinding()
	response := HealthzResponse{
		Gateway:  r.status.Status().String(),
		Binding:  binding.Kind().String(),
		Contract: binding.Address().Hex(),
	}
	if r.leader != nil {
		response.Prober = "follower"
		if r.leader.IsLeader() {
			response.Prober = "leader"
		}
		response.InstanceID = r.leader.InstanceID()
	}
	if r.endpoints != nil {
		for _, entry := range r.endpoints.LeaderboardEntries() {
			response.Endpoints = append(response.Endpoints, EndpointInfo{
				URL:      entry.URL,
				Score:    entry.Score,
				Reliable: entry.Reliable,
			})
		}
	}
	r.writeJSON(w, response, http.StatusOK)
}

// handleConfig returns a sanitized view of the active configuration.
func (r *Router) handleConfig(w http.ResponseWriter, req *http.Request) {
	if r.reporter == nil {
		http.Error(w, `{"error": "config reporting not available"}`, http.StatusServiceUnavailable)
		return
	}
	r.writeJSON(w, r.reporter.SanitizedConfig(), http.StatusOK)
}

func (r *Router) writeJSON(w http.ResponseWriter, response any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		r.logger.Error().Err(err).Msg("failed to encode operational response")
	}
}
