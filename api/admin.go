package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/garnizeh/campusfix/internal/analytics"
	"github.com/garnizeh/campusfix/internal/predict"
	"github.com/garnizeh/campusfix/pkg/models"
	"github.com/garnizeh/campusfix/pkg/repository"
)

// AdminHandler serves the staff dashboard. Snapshots and predictions are recomputed per request.
type AdminHandler struct {
	ledger repository.IssueLedger
	users  repository.UserDirectory
	rule   predict.FollowupRule
	now    func() time.Time
}

func NewAdminHandler(l repository.IssueLedger, ud repository.UserDirectory, rule predict.FollowupRule) *AdminHandler {
	return &AdminHandler{ledger: l, users: ud, rule: rule, now: time.Now}
}

// WithClock replaces the time source used for trend windows.
func (h *AdminHandler) WithClock(now func() time.Time) *AdminHandler {
	h.now = now
	return h
}

type statsResponse struct {
	Stats models.AnalyticsSnapshot `json:"stats"`
}

type predictionsResponse struct {
	Predictions []models.Prediction `json:"predictions"`
}

func (h *AdminHandler) Analytics(w http.ResponseWriter, r *http.Request) {
	list, err := h.ledger.ListAll(r.Context(), repository.IssueFilter{})
	if err != nil {
		respondError(w, r, err, "fetch analytics")
		return
	}
	writeJSON(w, statsResponse{Stats: analytics.Compute(list, h.now())}, http.StatusOK)
}

func (h *AdminHandler) Predictions(w http.ResponseWriter, r *http.Request) {
	list, err := h.ledger.ListAll(r.Context(), repository.IssueFilter{})
	if err != nil {
		respondError(w, r, err, "generate predictions")
		return
	}
	writeJSON(w, predictionsResponse{Predictions: predict.Generate(list, h.now(), h.rule)}, http.StatusOK)
}

func (h *AdminHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	p, err := h.users.GetProfile(r.Context(), mux.Vars(r)["userId"])
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, "User not found", http.StatusNotFound)
			return
		}
		respondError(w, r, err, "fetch user")
		return
	}
	writeJSON(w, profileResponse{Profile: p}, http.StatusOK)
}

type setRoleRequest struct {
	Role models.Role `json:"role"`
}

// SetUserRole promotes or demotes a user. The new role applies from the user's next sign-in.
func (h *AdminHandler) SetUserRole(w http.ResponseWriter, r *http.Request) {
	var req setRoleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	p, err := h.users.SetRole(r.Context(), mux.Vars(r)["userId"], req.Role)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, "User not found", http.StatusNotFound)
			return
		}
		respondError(w, r, err, "update user role")
		return
	}
	writeJSON(w, profileResponse{Profile: p}, http.StatusOK)
}
