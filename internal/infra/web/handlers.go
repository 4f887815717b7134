package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"subscription-payments/internal/domain"
	"subscription-payments/internal/infra/logging"
)

// pendingWaitLimit bounds how long the pending return page blocks before
// telling the browser to keep polling.
const pendingWaitLimit = 25 * time.Second

type openCheckoutRequest struct {
	PlanID  string `json:"plan_id"`
	Email   string `json:"email"`
	Blocked bool   `json:"blocked"` // popup could not be opened; full-page fallback
}

func (s *Server) handleOpenCheckout(w http.ResponseWriter, r *http.Request) {
	var req openCheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PlanID == "" {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	userID := logging.UserID(r.Context())

	status, err := s.manager.OpenCheckout(r.Context(), userID, req.PlanID, req.Email, req.Blocked)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) {
			http.Error(w, "invalid request", http.StatusBadRequest)
			return
		}
		s.log.Error().Err(err).Str("user_id", userID).Msg("open checkout failed")
		http.Error(w, "checkout unavailable", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusCreated, status)
}

func (s *Server) handleCheckoutStatus(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	status, err := s.manager.Status(r.Context(), sessionID)
	if err != nil {
		s.notFoundOrFinal(w, r, sessionID)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if err := s.manager.Heartbeat(r.Context(), sessionID); err != nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if err := s.manager.Cancel(sessionID); err != nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// handleReturnPending is the one return page that actively drives the
// coordinator: it records the gateway payment id from the redirect query
// parameters and blocks briefly for a resolution.
func (s *Server) handleReturnPending(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	sessionID := q.Get("session_id")
	paymentID := q.Get("payment_id")

	handle, err := s.manager.Attach(sessionID, paymentID)
	if err != nil {
		// Session already torn down (or the process restarted): the resync
		// sweep finalizes the payment from the history trail.
		s.notFoundOrFinal(w, r, sessionID)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), pendingWaitLimit)
	defer cancel()
	res, err := handle.Wait(ctx)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"session_id": sessionID,
			"state":      "pending",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": sessionID,
		"state":      "resolved",
		"resolution": res,
	})
}

// handleReturnTerminal serves the success/failure return pages. They are
// terminal displays only; no confirmation logic runs here.
func (s *Server) handleReturnTerminal(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if status, err := s.manager.Status(r.Context(), sessionID); err == nil {
		writeJSON(w, http.StatusOK, status)
		return
	}
	s.notFoundOrFinal(w, r, sessionID)
}

// notFoundOrFinal falls back to the persisted final state for sessions the
// manager no longer holds in memory.
func (s *Server) notFoundOrFinal(w http.ResponseWriter, r *http.Request, sessionID string) {
	if sessionID != "" {
		if res, err := s.surfaces.FinalState(r.Context(), sessionID); err == nil {
			writeJSON(w, http.StatusOK, map[string]any{
				"session_id": sessionID,
				"state":      "resolved",
				"resolution": res,
			})
			return
		}
	}
	http.Error(w, "session not found", http.StatusNotFound)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
