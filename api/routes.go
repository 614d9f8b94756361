package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/garnizeh/campusfix/internal/config"
	"github.com/garnizeh/campusfix/internal/gamification"
	"github.com/garnizeh/campusfix/internal/predict"
	"github.com/garnizeh/campusfix/internal/ratelimit"
	"github.com/garnizeh/campusfix/internal/rewards"
	"github.com/garnizeh/campusfix/pkg/models"
	"github.com/garnizeh/campusfix/pkg/repository"
)

// Deps are the components the HTTP surface is built on. Catalog and Limiter may be nil.
type Deps struct {
	Ledger       repository.IssueLedger
	Users        repository.UserDirectory
	Gamification repository.GamificationEngine
	Rewards      rewards.Dispatcher
	Catalog      gamification.CatalogSource
	Limiter      ratelimit.Limiter
}

func SetupRoutes(cfg *config.Config, version, buildTime string, deps Deps) *mux.Router {
	r := mux.NewRouter()

	// Middleware chain
	r.Use(RequestIDMiddleware)
	r.Use(TracingMiddleware)
	r.Use(LoggingMiddleware)
	r.Use(CORSMiddleware)
	r.Use(RecoveryMiddleware)

	// Create handlers
	systemHandler := &SystemHandler{}
	authHandler := NewAuthHandler(deps.Users, deps.Gamification, cfg.JWTSecret, cfg.TokenDuration).
		WithOpenRoleSignup(cfg.OpenRoleSignup)
	issuesHandler := NewIssuesHandler(deps.Ledger, deps.Users, deps.Rewards, deps.Catalog)
	gamificationHandler := NewGamificationHandler(deps.Gamification, deps.Users)
	rule, err := predict.ParseRule(cfg.Prediction.FollowupRule)
	if err != nil {
		logger.Warn("unknown follow-up rule, using strict", "rule", cfg.Prediction.FollowupRule)
	}
	adminHandler := NewAdminHandler(deps.Ledger, deps.Users, rule)

	// Open endpoints
	r.HandleFunc("/version", systemHandler.VersionHandler(version, buildTime)).Methods("GET")
	r.HandleFunc("/health", systemHandler.HealthHandler).Methods("GET")
	r.HandleFunc("/v1/auth/signup", authHandler.Signup).Methods("POST")
	r.HandleFunc("/v1/auth/signin", authHandler.Signin).Methods("POST")

	// API v1 Protected routes
	apiV1 := r.PathPrefix("/v1").Subrouter()
	apiV1.Use(JWTAuthMiddlewareWithSecret(cfg.JWTSecret))

	// Auth endpoints
	authV1 := apiV1.PathPrefix("/auth").Subrouter()
	authV1.HandleFunc("/session", authHandler.Session).Methods("GET")
	authV1.HandleFunc("/signout", authHandler.Signout).Methods("POST")

	// Issues endpoints
	var create http.Handler = http.HandlerFunc(issuesHandler.CreateIssue)
	if deps.Limiter != nil {
		create = RateLimitMiddleware(deps.Limiter)(create)
	}
	staff := RequireRole(models.RoleStaff, models.RoleAdmin)
	apiV1.Handle("/issues", create).Methods("POST")
	apiV1.HandleFunc("/issues", issuesHandler.ListIssues).Methods("GET")
	apiV1.HandleFunc("/issues/{id}", issuesHandler.GetIssue).Methods("GET")
	apiV1.Handle("/issues/{id}", staff(http.HandlerFunc(issuesHandler.UpdateIssue))).Methods("PUT")
	apiV1.HandleFunc("/issues/{id}/upvote", issuesHandler.UpvoteIssue).Methods("POST")
	apiV1.Handle("/issues/{id}/reopen", staff(http.HandlerFunc(issuesHandler.ReopenIssue))).Methods("POST")
	apiV1.Handle("/issues/{id}", RequireRole(models.RoleAdmin)(http.HandlerFunc(issuesHandler.DeleteIssue))).Methods("DELETE")

	// Gamification endpoints
	apiV1.HandleFunc("/gamification", gamificationHandler.GetGamification).Methods("GET")
	apiV1.HandleFunc("/gamification/leaderboard", gamificationHandler.Leaderboard).Methods("GET")
	apiV1.HandleFunc("/gamification/history", gamificationHandler.History).Methods("GET")

	// Admin endpoints
	adminV1 := apiV1.PathPrefix("/admin").Subrouter()
	adminV1.Use(staff)
	adminV1.HandleFunc("/analytics", adminHandler.Analytics).Methods("GET")
	adminV1.HandleFunc("/predictions", adminHandler.Predictions).Methods("GET")
	adminV1.HandleFunc("/users/{userId}", adminHandler.GetUser).Methods("GET")
	adminV1.Handle("/users/{userId}/role", RequireRole(models.RoleAdmin)(http.HandlerFunc(adminHandler.SetUserRole))).Methods("PUT")

	return r
}
