package http

import (
	"context"
	"net/http"
	"strings"
	"time"

	"fintrack/internal/core"
	applog "fintrack/internal/log"
)

const refreshCookieName = "refreshToken"

type userIDKey struct{}

// userIDFrom returns the authenticated user id placed by requireAuth.
func userIDFrom(ctx context.Context) int64 {
	id, _ := ctx.Value(userIDKey{}).(int64)
	return id
}

// requireAuth accepts "Authorization: Bearer <access token>" and stores the
// user id in the request context.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			writeMessage(w, http.StatusUnauthorized, "Missing bearer token")
			return
		}
		userID, err := s.auth.Authenticate(strings.TrimSpace(token))
		if err != nil {
			writeError(w, r, err)
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey{}, userID)
		ctx = applog.NewContext(ctx, applog.FromContext(ctx).With(applog.FieldUserID, userID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	user, tokens, err := s.auth.Register(r.Context(), sanitizeInput(req.Name), req.Email, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.setRefreshCookie(w, tokens.RefreshToken, tokens.RefreshExpiresAt)
	writeJSON(w, http.StatusCreated, authResponse{
		Message:     "Registered",
		AccessToken: tokens.AccessToken,
		ExpiresAt:   tokens.AccessExpiresAt,
		User:        toUser(user),
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		writeMessage(w, http.StatusBadRequest, "All fields required")
		return
	}
	user, tokens, err := s.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.setRefreshCookie(w, tokens.RefreshToken, tokens.RefreshExpiresAt)
	writeJSON(w, http.StatusOK, authResponse{
		Message:     "Logged in",
		AccessToken: tokens.AccessToken,
		ExpiresAt:   tokens.AccessExpiresAt,
		User:        toUser(user),
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(refreshCookieName)
	if err != nil || cookie.Value == "" {
		writeMessage(w, http.StatusUnauthorized, "Refresh token missing")
		return
	}
	access, exp, err := s.auth.Refresh(r.Context(), cookie.Value)
	if err != nil {
		writeMessage(w, http.StatusUnauthorized, "Invalid refresh token")
		return
	}
	writeJSON(w, http.StatusOK, authResponse{AccessToken: access, ExpiresAt: exp})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.setRefreshCookie(w, "", time.Unix(0, 0))
	writeMessage(w, http.StatusOK, "Logged out")
}

// setRefreshCookie writes the refresh token cookie; an empty value clears it.
func (s *Server) setRefreshCookie(w http.ResponseWriter, value string, expires time.Time) {
	c := &http.Cookie{
		Name:     refreshCookieName,
		Value:    value,
		Path:     "/api/auth",
		Expires:  expires,
		HttpOnly: true,
		Secure:   s.secureCookies,
		SameSite: http.SameSiteLaxMode,
	}
	if value == "" {
		c.MaxAge = -1
	}
	// Cross-site SPAs need SameSite=None, which browsers only accept with Secure.
	if s.secureCookies {
		c.SameSite = http.SameSiteNoneMode
	}
	http.SetCookie(w, c)
}

// Guards against handlers mounted outside requireAuth.
func mustUser(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id := userIDFrom(r.Context())
	if id == 0 {
		writeError(w, r, core.ErrUnauthorized)
		return 0, false
	}
	return id, true
}
