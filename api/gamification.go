package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/garnizeh/campusfix/pkg/models"
	"github.com/garnizeh/campusfix/pkg/repository"
)

const (
	defaultLeaderboardLimit = 10
	maxLeaderboardLimit     = 100
	unknownUserName         = "Unknown User"
)

type GamificationHandler struct {
	engine repository.GamificationEngine
	users  repository.UserDirectory
}

func NewGamificationHandler(ge repository.GamificationEngine, ud repository.UserDirectory) *GamificationHandler {
	return &GamificationHandler{engine: ge, users: ud}
}

type gamificationResponse struct {
	Gamification *models.UserGamification `json:"gamification"`
}

type leaderboardResponse struct {
	Leaderboard []models.LeaderboardEntry `json:"leaderboard"`
}

type historyResponse struct {
	History []models.PointsLogEntry `json:"history"`
}

// GetGamification returns the caller's record, seeding it on first access.
func (h *GamificationHandler) GetGamification(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	g, err := h.engine.EnsureProfile(r.Context(), id.UserID)
	if err != nil {
		respondError(w, r, err, "fetch gamification data")
		return
	}
	writeJSON(w, gamificationResponse{Gamification: g}, http.StatusOK)
}

func (h *GamificationHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	limit := defaultLeaderboardLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = min(n, maxLeaderboardLimit)
	}

	ctx := r.Context()
	board, err := h.engine.Leaderboard(ctx, limit)
	if err != nil {
		respondError(w, r, err, "fetch leaderboard")
		return
	}

	for i := range board {
		board[i].Name = unknownUserName
		p, err := h.users.GetProfile(ctx, board[i].UserID)
		switch {
		case err == nil:
			board[i].Name = p.Name
		case !errors.Is(err, repository.ErrNotFound):
			logger.WarnContext(ctx, "leaderboard profile lookup", slog.String("user_id", board[i].UserID), slog.Any("err", err))
		}
	}

	writeJSON(w, leaderboardResponse{Leaderboard: board}, http.StatusOK)
}

// History lists the caller's points awards, newest first.
func (h *GamificationHandler) History(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	entries, err := h.engine.History(r.Context(), id.UserID)
	if err != nil {
		respondError(w, r, err, "fetch points history")
		return
	}
	if entries == nil {
		entries = []models.PointsLogEntry{}
	}
	writeJSON(w, historyResponse{History: entries}, http.StatusOK)
}
