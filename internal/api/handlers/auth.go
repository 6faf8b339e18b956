// HTTP handlers for register and login. Both are public: no token required.
package handlers

import (
	"context"
	"errors"
	"net/http"

	domainauth "github.com/unroll-ai/unroll/internal/domain/auth"
)

// AuthService is the part of domain/auth the handlers use.
type AuthService interface {
	Register(ctx context.Context, in domainauth.RegisterInput) (*domainauth.Result, error)
	Login(ctx context.Context, in domainauth.LoginInput) (*domainauth.Result, error)
}

type AuthHandler struct {
	authService AuthService
}

func NewAuthHandler(authService AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResponse is returned after a successful register or login.
type AuthResponse struct {
	Token  string `json:"token"`
	UserID int64  `json:"user_id"`
}

// Register handles POST /auth/register.
//
// Response codes:
//   - 201 Created: registration successful
//   - 400 Bad Request: invalid JSON or invalid fields
//   - 409 Conflict: email already registered
//   - 500 Internal Server Error: unexpected failure
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Email == "" || req.Password == "" || req.FullName == "" {
		writeError(w, http.StatusBadRequest, "email, password and full_name are required")
		return
	}

	result, err := h.authService.Register(r.Context(), domainauth.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		FullName: req.FullName,
	})
	switch {
	case errors.Is(err, domainauth.ErrEmailAlreadyExists):
		writeError(w, http.StatusConflict, "email already registered")
	case errors.Is(err, domainauth.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case err != nil:
		writeError(w, http.StatusInternalServerError, "registration failed")
	default:
		writeJSON(w, http.StatusCreated, AuthResponse{Token: result.Token, UserID: result.UserID})
	}
}

// Login handles POST /auth/login.
//
// Response codes:
//   - 200 OK: login successful
//   - 400 Bad Request: invalid JSON or missing fields
//   - 401 Unauthorized: invalid credentials (does not reveal whether the email exists)
//   - 500 Internal Server Error: unexpected failure
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	result, err := h.authService.Login(r.Context(), domainauth.LoginInput{
		Email:    req.Email,
		Password: req.Password,
	})
	switch {
	case errors.Is(err, domainauth.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "invalid credentials")
	case err != nil:
		writeError(w, http.StatusInternalServerError, "login failed")
	default:
		writeJSON(w, http.StatusOK, AuthResponse{Token: result.Token, UserID: result.UserID})
	}
}
