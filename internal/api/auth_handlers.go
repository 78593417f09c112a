package api

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/example/bookshop/internal/api/middleware"
	"github.com/example/bookshop/internal/auth"
	"github.com/example/bookshop/internal/domain/user"
	"github.com/example/bookshop/internal/infrastructure/store"
	"github.com/google/uuid"
)

// SessionCollection holds one document per issued refresh token.
const SessionCollection = "auth_sessions"

const refreshPath = "/auth/refresh"

// hashToken creates a SHA-256 hash of the token for secure storage
func hashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

// authSession ties a refresh token to a user
type authSession struct {
	ID               string    `json:"id"`
	UserID           string    `json:"user_id"`
	Username         string    `json:"username"`
	RefreshTokenHash string    `json:"refresh_token_hash"`
	ExpiresAt        time.Time `json:"expires_at"`
	CreatedAt        time.Time `json:"created_at"`
	IPAddress        string    `json:"ip_address"`
	UserAgent        string    `json:"user_agent"`
}

// AuthHandlers handles authentication-related HTTP requests
type AuthHandlers struct {
	userService *user.Service
	jwtService  *auth.JWTService
	docs        store.DocumentStore
}

// NewAuthHandlers creates a new AuthHandlers instance
func NewAuthHandlers(userService *user.Service, jwtService *auth.JWTService, docs store.DocumentStore) *AuthHandlers {
	return &AuthHandlers{
		userService: userService,
		jwtService:  jwtService,
		docs:        docs,
	}
}

// LoginRequest represents the login request body
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// AuthResponse represents the authentication response
type AuthResponse struct {
	User        user.Profile `json:"user"`
	AccessToken string       `json:"access_token"`
	Message     string       `json:"message,omitempty"`
}

// Register handles user registration
func (h *AuthHandlers) Register(w http.ResponseWriter, r *http.Request) {
	var req user.Registration
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	newUser, err := h.userService.Register(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}

	accessToken, err := h.setAuthCookies(w, r, newUser)
	if err != nil {
		writeError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, AuthResponse{
		User:        newUser.Profile(),
		AccessToken: accessToken,
		Message:     "Registration successful",
	})
}

// Login handles user login
func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	u, err := h.userService.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	accessToken, err := h.setAuthCookies(w, r, u)
	if err != nil {
		writeError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, AuthResponse{
		User:        u.Profile(),
		AccessToken: accessToken,
		Message:     "Login successful",
	})
}

// Logout handles user logout
func (h *AuthHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	if userID := middleware.GetUserID(r.Context()); userID != "" {
		h.deleteSessionsOf(r, userID)
	}

	h.clearAuthCookies(w)

	respondJSON(w, http.StatusOK, map[string]string{
		"message": "Logout successful",
	})
}

// Refresh handles token refresh
func (h *AuthHandlers) Refresh(w http.ResponseWriter, r *http.Request) {
	refreshCookie, err := r.Cookie("refresh_token")
	if err != nil {
		respondJSONError(w, "No refresh token", http.StatusUnauthorized)
		return
	}

	sessionCookie, err := r.Cookie("session_id")
	if err != nil {
		h.clearAuthCookies(w)
		respondJSONError(w, "No session", http.StatusUnauthorized)
		return
	}

	userID, err := h.jwtService.ValidateRefreshToken(refreshCookie.Value)
	if err != nil {
		h.clearAuthCookies(w)
		respondJSONError(w, "Invalid refresh token", http.StatusUnauthorized)
		return
	}

	doc, err := h.docs.Get(r.Context(), SessionCollection, sessionCookie.Value)
	if errors.Is(err, store.ErrNotFound) {
		h.clearAuthCookies(w)
		respondJSONError(w, "Session not found", http.StatusUnauthorized)
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}

	var session authSession
	if err := json.Unmarshal(doc, &session); err != nil {
		h.clearAuthCookies(w)
		respondJSONError(w, "Session not found", http.StatusUnauthorized)
		return
	}

	if time.Now().After(session.ExpiresAt) {
		_ = h.docs.Delete(r.Context(), SessionCollection, session.ID)
		h.clearAuthCookies(w)
		respondJSONError(w, "Session expired", http.StatusUnauthorized)
		return
	}

	// Verify refresh token hash matches stored hash
	if hashToken(refreshCookie.Value) != session.RefreshTokenHash || session.UserID != userID {
		h.clearAuthCookies(w)
		respondJSONError(w, "Invalid refresh token", http.StatusUnauthorized)
		return
	}

	u, err := h.userService.Get(r.Context(), userID)
	if err != nil {
		h.clearAuthCookies(w)
		respondJSONError(w, "User not found", http.StatusUnauthorized)
		return
	}

	// Rotate: the old session goes, setAuthCookies creates a new one
	_ = h.docs.Delete(r.Context(), SessionCollection, session.ID)

	accessToken, err := h.setAuthCookies(w, r, u)
	if err != nil {
		writeError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"message":      "Token refreshed",
		"access_token": accessToken,
	})
}

// Me returns the current authenticated user's profile
func (h *AuthHandlers) Me(w http.ResponseWriter, r *http.Request) {
	u, err := h.userService.Get(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, u.Profile())
}

// UpdateProfile changes the editable profile fields of the caller
func (h *AuthHandlers) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req user.ProfileUpdate
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	u, err := h.userService.UpdateProfile(r.Context(), middleware.GetUserID(r.Context()), req)
	if err != nil {
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, u.Profile())
}

// ChangePassword handles password change requests
func (h *AuthHandlers) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CurrentPassword string `json:"current_password"`
		NewPassword     string `json:"new_password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	username := middleware.GetUsername(r.Context())
	if err := h.userService.ChangePassword(r.Context(), username, req.CurrentPassword, req.NewPassword); err != nil {
		if errors.Is(err, user.ErrInvalidCredentials) {
			respondJSONError(w, "Current password is incorrect", http.StatusBadRequest)
			return
		}
		writeError(w, err)
		return
	}

	// Other devices must log in again with the new password
	h.deleteSessionsOf(r, middleware.GetUserID(r.Context()))

	respondJSON(w, http.StatusOK, map[string]string{
		"message": "Password changed successfully",
	})
}

// Helper methods

// setAuthCookies issues an access token and a refresh token bound to a new
// stored session. The access token is also returned for API clients that
// do not keep cookies.
func (h *AuthHandlers) setAuthCookies(w http.ResponseWriter, r *http.Request, u *user.User) (string, error) {
	accessToken, accessExpiry, err := h.jwtService.GenerateAccessToken(u.ID, u.Username)
	if err != nil {
		return "", err
	}
	refreshToken, refreshExpiry, err := h.jwtService.GenerateRefreshToken(u.ID)
	if err != nil {
		return "", err
	}

	session := authSession{
		ID:               uuid.New().String(),
		UserID:           u.ID,
		Username:         u.Username,
		RefreshTokenHash: hashToken(refreshToken),
		ExpiresAt:        refreshExpiry,
		CreatedAt:        time.Now().UTC(),
		IPAddress:        r.RemoteAddr,
		UserAgent:        r.UserAgent(),
	}
	doc, err := json.Marshal(session)
	if err != nil {
		return "", err
	}
	if err := h.docs.Insert(r.Context(), SessionCollection, session.ID, doc); err != nil {
		return "", err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.AccessCookie,
		Value:    accessToken,
		Path:     "/",
		Expires:  accessExpiry,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteStrictMode,
	})

	http.SetCookie(w, &http.Cookie{
		Name:     "refresh_token",
		Value:    refreshToken,
		Path:     refreshPath,
		Expires:  refreshExpiry,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteStrictMode,
	})

	http.SetCookie(w, &http.Cookie{
		Name:     "session_id",
		Value:    session.ID,
		Path:     "/",
		Expires:  refreshExpiry,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteStrictMode,
	})
	return accessToken, nil
}

// deleteSessionsOf removes the stored sessions of userID. Failures are logged.
func (h *AuthHandlers) deleteSessionsOf(r *http.Request, userID string) {
	docs, err := h.docs.Find(r.Context(), SessionCollection, store.Query{
		Where: []store.Condition{{Field: "user_id", Op: store.OpEq, Value: userID}},
	})
	if err != nil {
		log.Printf("[API] failed to list sessions of %s: %v", userID, err)
		return
	}
	for _, doc := range docs {
		var session authSession
		if err := json.Unmarshal(doc, &session); err != nil {
			continue
		}
		if err := h.docs.Delete(r.Context(), SessionCollection, session.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
			log.Printf("[API] failed to delete session %s: %v", session.ID, err)
		}
	}
}

func (h *AuthHandlers) clearAuthCookies(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.AccessCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})

	http.SetCookie(w, &http.Cookie{
		Name:     "refresh_token",
		Value:    "",
		Path:     refreshPath,
		MaxAge:   -1,
		HttpOnly: true,
	})

	http.SetCookie(w, &http.Cookie{
		Name:     "session_id",
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
}
