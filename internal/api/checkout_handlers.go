package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/chatwave/console/internal/billing"
	wferrors "github.com/chatwave/console/internal/errors"
	"github.com/rs/zerolog/log"
)

func (r *Router) handleTiers(w http.ResponseWriter, req *http.Request) {
	tiers, err := r.orchestrator.LoadCatalog(req.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tiers)
}

func (r *Router) handleSubscription(w http.ResponseWriter, req *http.Request) {
	if err := r.orchestrator.RefreshSubscription(req.Context()); err != nil {
		writeError(w, err)
		return
	}
	sub := r.orchestrator.Subscription()
	if sub == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"subscription": nil})
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (r *Router) handleState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, r.orchestrator.Snapshot())
}

type selectRequest struct {
	TierID       string               `json:"tier_id"`
	BillingCycle billing.BillingCycle `json:"billing_cycle"`
}

func (r *Router) handleSelect(w http.ResponseWriter, req *http.Request) {
	var body selectRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, wferrors.New(wferrors.KindValidation, "select_tier",
			fmt.Errorf("invalid request body: %w", err)))
		return
	}
	if body.BillingCycle == "" {
		body.BillingCycle = billing.CycleMonthly
	}
	if err := r.orchestrator.SelectTier(body.TierID, body.BillingCycle); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, r.orchestrator.Snapshot())
}

func (r *Router) handleInitiate(w http.ResponseWriter, req *http.Request) {
	session, err := r.orchestrator.InitiateCheckout(req.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	// The UI performs the full-page navigation to the payment URL; by the
	// time it does, the order checkpoint is already durable.
	writeJSON(w, http.StatusOK, session)
}

type resumeRequest struct {
	OrderID string `json:"order_id"`
}

func (r *Router) handleResume(w http.ResponseWriter, req *http.Request) {
	var body resumeRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, wferrors.New(wferrors.KindValidation, "resume",
			fmt.Errorf("invalid request body: %w", err)))
		return
	}
	if body.OrderID == "" {
		writeError(w, wferrors.New(wferrors.KindValidation, "resume",
			fmt.Errorf("order_id is required")))
		return
	}

	// Polling outlives the HTTP request, so it runs on a detached context;
	// cancellation goes through the orchestrator. Progress streams over the
	// websocket and GET /api/checkout/state.
	go func(orderID string) {
		if err := r.orchestrator.Resume(context.Background(), orderID); err != nil {
			log.Warn().Err(err).Str("order_id", orderID).Msg("Resume finished with error")
		}
	}(body.OrderID)

	writeJSON(w, http.StatusAccepted, r.orchestrator.Snapshot())
}

func (r *Router) handleCancel(w http.ResponseWriter, _ *http.Request) {
	r.orchestrator.Cancel()
	writeJSON(w, http.StatusOK, r.orchestrator.Snapshot())
}

func (r *Router) handleReset(w http.ResponseWriter, _ *http.Request) {
	r.orchestrator.Reset()
	writeJSON(w, http.StatusOK, r.orchestrator.Snapshot())
}
