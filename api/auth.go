package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/garnizeh/campusfix/internal/users"
	"github.com/garnizeh/campusfix/pkg/models"
	"github.com/garnizeh/campusfix/pkg/repository"
)

type AuthHandler struct {
	users         repository.UserDirectory
	gamification  repository.GamificationEngine
	validate      *validator.Validate
	jwtSecret     string
	tokenDuration time.Duration
	openRoles     bool
}

// NewAuthHandler creates a new AuthHandler with required dependencies.
func NewAuthHandler(ud repository.UserDirectory, ge repository.GamificationEngine, jwtSecret string, tokenDuration time.Duration) *AuthHandler {
	return &AuthHandler{
		users:         ud,
		gamification:  ge,
		validate:      validator.New(validator.WithRequiredStructEnabled()),
		jwtSecret:     jwtSecret,
		tokenDuration: tokenDuration,
	}
}

// WithOpenRoleSignup lets signup requests choose staff and admin roles.
// Otherwise self-service accounts are students and staff are promoted by an admin.
func (h *AuthHandler) WithOpenRoleSignup(open bool) *AuthHandler {
	h.openRoles = open
	return h
}

type signupRequest struct {
	Name       string      `json:"name" validate:"required"`
	Email      string      `json:"email" validate:"required,email"`
	Password   string      `json:"password" validate:"required,min=6"`
	Role       models.Role `json:"role" validate:"omitempty,oneof=student staff admin"`
	StudentID  string      `json:"studentId"`
	Department string      `json:"department"`
}

type signinRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type authResponse struct {
	Token   string              `json:"token"`
	Profile *models.UserProfile `json:"profile"`
}

type profileResponse struct {
	Profile *models.UserProfile `json:"profile"`
}

func (h *AuthHandler) issueToken(p *models.UserProfile) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   p.ID,
		"role":  string(p.Role),
		"email": p.Email,
		"exp":   time.Now().Add(h.tokenDuration).Unix(),
	})
	return token.SignedString([]byte(h.jwtSecret))
}

func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Email = users.NormalizeEmail(req.Email)
	if err := h.validate.Struct(req); err != nil {
		writeError(w, "Missing or invalid fields", http.StatusBadRequest)
		return
	}
	if req.Role == "" {
		req.Role = models.RoleStudent
	}
	if req.Role != models.RoleStudent && !h.openRoles {
		respondError(w, r, fmt.Errorf("%w: self-service signup creates student accounts", models.ErrForbidden), "sign up")
		return
	}

	// Hash password
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		writeError(w, "Error hashing password", http.StatusInternalServerError)
		return
	}

	ctx := r.Context()
	now := time.Now().UTC()
	profile := &models.UserProfile{
		ID:         uuid.NewString(),
		Email:      req.Email,
		Name:       req.Name,
		Role:       req.Role,
		StudentID:  req.StudentID,
		Department: req.Department,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := h.users.CreateUser(ctx, profile, string(hash)); err != nil {
		if errors.Is(err, users.ErrEmailTaken) {
			writeError(w, "Email already registered", http.StatusConflict)
			return
		}
		respondError(w, r, err, "create user")
		return
	}

	if _, err := h.gamification.EnsureProfile(ctx, profile.ID); err != nil {
		// The account exists; the profile is seeded again on first use.
		logger.WarnContext(ctx, "seed gamification profile", slog.String("user_id", profile.ID), slog.Any("err", err))
	}

	tokenStr, err := h.issueToken(profile)
	if err != nil {
		writeError(w, "Error signing token", http.StatusInternalServerError)
		return
	}

	writeJSON(w, authResponse{Token: tokenStr, Profile: profile}, http.StatusCreated)
}

func (h *AuthHandler) Signin(w http.ResponseWriter, r *http.Request) {
	var req signinRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, "Missing fields", http.StatusBadRequest)
		return
	}

	ctx := r.Context()

	profile, err := h.users.GetByEmail(ctx, req.Email)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			logger.ErrorContext(ctx, "signin lookup", slog.Any("err", err))
		}
		writeError(w, "Credentials not found", http.StatusUnauthorized)
		return
	}
	hash, err := h.users.PasswordHash(ctx, profile.ID)
	if err != nil || bcrypt.CompareHashAndPassword([]byte(hash), []byte(req.Password)) != nil {
		writeError(w, "Credentials not found", http.StatusUnauthorized)
		return
	}

	tokenStr, err := h.issueToken(profile)
	if err != nil {
		writeError(w, "Error signing token", http.StatusInternalServerError)
		return
	}

	writeJSON(w, authResponse{Token: tokenStr, Profile: profile}, http.StatusOK)
}

// Session returns the profile of the bearer.
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	profile, err := h.users.GetProfile(r.Context(), id.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, "User profile not found", http.StatusNotFound)
			return
		}
		respondError(w, r, err, "fetch profile")
		return
	}
	writeJSON(w, profileResponse{Profile: profile}, http.StatusOK)
}

func (h *AuthHandler) Signout(w http.ResponseWriter, r *http.Request) {
	// For stateless JWT, signout is client-side (just delete token)
	writeJSON(w, map[string]string{"message": "signed out"}, http.StatusOK)
}
