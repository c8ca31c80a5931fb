// Package api exposes the checkout workflow to the dashboard UI over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/chatwave/console/internal/checkout"
	wferrors "github.com/chatwave/console/internal/errors"
	"github.com/chatwave/console/internal/websocket"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Router wires the HTTP surface for the console.
type Router struct {
	orchestrator *checkout.Orchestrator
	hub          *websocket.Hub
	mux          *http.ServeMux
}

// NewRouter creates the HTTP router.
func NewRouter(orchestrator *checkout.Orchestrator, hub *websocket.Hub) *Router {
	r := &Router{
		orchestrator: orchestrator,
		hub:          hub,
		mux:          http.NewServeMux(),
	}
	r.routes()
	return r
}

func (r *Router) routes() {
	r.mux.HandleFunc("GET /api/tiers", r.handleTiers)
	r.mux.HandleFunc("GET /api/subscription", r.handleSubscription)
	r.mux.HandleFunc("GET /api/checkout/state", r.handleState)
	r.mux.HandleFunc("POST /api/checkout/select", r.handleSelect)
	r.mux.HandleFunc("POST /api/checkout/initiate", r.handleInitiate)
	r.mux.HandleFunc("POST /api/checkout/resume", r.handleResume)
	r.mux.HandleFunc("POST /api/checkout/cancel", r.handleCancel)
	r.mux.HandleFunc("POST /api/checkout/reset", r.handleReset)
	r.mux.HandleFunc("GET /ws", r.hub.HandleWebSocket)
	r.mux.Handle("GET /metrics", promhttp.Handler())
	r.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
}

// ServeHTTP implements http.Handler with request logging and IDs.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	requestID := uuid.NewString()
	start := time.Now()
	w.Header().Set("X-Request-ID", requestID)
	r.mux.ServeHTTP(w, req)
	log.Debug().
		Str("request_id", requestID).
		Str("method", req.Method).
		Str("path", req.URL.Path).
		Dur("duration", time.Since(start)).
		Msg("HTTP request")
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

type errorResponse struct {
	Error     string        `json:"error"`
	Kind      wferrors.Kind `json:"kind,omitempty"`
	OrderID   string        `json:"order_id,omitempty"`
	Retryable bool          `json:"retryable,omitempty"`
}

// writeError maps workflow error kinds to HTTP statuses so the UI can pick
// the right recovery affordance (retry, resume, contact support).
func writeError(w http.ResponseWriter, err error) {
	var wfErr *wferrors.WorkflowError
	if !errors.As(err, &wfErr) {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}

	status := http.StatusInternalServerError
	switch wfErr.Kind {
	case wferrors.KindValidation:
		status = http.StatusBadRequest
	case wferrors.KindConflict:
		status = http.StatusConflict
	case wferrors.KindNetwork, wferrors.KindGateway:
		status = http.StatusBadGateway
	case wferrors.KindTimeout:
		status = http.StatusGatewayTimeout
	case wferrors.KindProvisioning:
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, errorResponse{
		Error:     wfErr.Error(),
		Kind:      wfErr.Kind,
		OrderID:   wfErr.OrderID,
		Retryable: wfErr.Retryable,
	})
}
