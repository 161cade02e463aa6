package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/arfenn/authgate"
)

// RefreshCookieName is the cookie carrying the raw refresh token.
const RefreshCookieName = "rt"

// CookiePath scopes the refresh cookie to the auth endpoints only.
const CookiePath = "/auth"

// Config carries the HTTP-surface knobs that are not the engine's business.
type Config struct {
	// SecureCookies sets the Secure attribute on the rt cookie. Disable
	// only for plain-HTTP local development.
	SecureCookies bool
	// SameSite for the rt cookie. Defaults to Strict.
	SameSite http.SameSite
	// CookieMaxAge caps the cookie lifetime; align it with the family
	// lifetime so the browser drops the cookie when the lineage dies.
	CookieMaxAge time.Duration
}

// Handler serves the login, refresh, and logout endpoints.
type Handler struct {
	engine *authgate.Engine
	config Config
}

func NewHandler(engine *authgate.Engine, cfg Config) *Handler {
	if cfg.SameSite == 0 {
		cfg.SameSite = http.SameSiteStrictMode
	}
	if cfg.CookieMaxAge <= 0 {
		cfg.CookieMaxAge = 30 * 24 * time.Hour
	}
	return &Handler{
		engine: engine,
		config: cfg,
	}
}

// Mount registers the auth routes on mux.
func (h *Handler) Mount(mux *http.ServeMux) {
	mux.HandleFunc("POST /auth/login", h.handleLogin)
	mux.HandleFunc("POST /auth/refresh", h.handleRefresh)
	mux.HandleFunc("POST /auth/logout", h.handleLogout)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body loginRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "bad_request"})
		return
	}

	pair, err := h.engine.Login(requestContext(r), body.Email, body.Password)
	if err != nil {
		h.writeAuthError(w, err)
		return
	}

	h.setRefreshCookie(w, pair.RefreshToken)
	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken: pair.AccessToken,
		TokenType:   "Bearer",
	})
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(RefreshCookieName)
	if err != nil || cookie.Value == "" {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
		return
	}

	pair, err := h.engine.Refresh(requestContext(r), cookie.Value)
	if err != nil {
		// Whatever went wrong, the cookie the client holds is dead.
		h.clearRefreshCookie(w)
		h.writeAuthError(w, err)
		return
	}

	h.setRefreshCookie(w, pair.RefreshToken)
	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken: pair.AccessToken,
		TokenType:   "Bearer",
	})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(RefreshCookieName); err == nil && cookie.Value != "" {
		if err := h.engine.Logout(requestContext(r), cookie.Value); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "unavailable"})
			return
		}
	}

	h.clearRefreshCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

// writeAuthError collapses the engine's error taxonomy to the wire. All
// authentication failures are the same 401; only throttling and storage
// outages are distinguishable, and neither says anything more.
func (h *Handler) writeAuthError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, authgate.ErrLoginRateLimited),
		errors.Is(err, authgate.ErrRefreshRateLimited):
		writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "rate_limited"})
	case errors.Is(err, authgate.ErrStorageUnavailable),
		errors.Is(err, authgate.ErrEngineNotReady):
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "unavailable"})
	default:
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
	}
}

func (h *Handler) setRefreshCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookieName,
		Value:    token,
		Path:     CookiePath,
		MaxAge:   int(h.config.CookieMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   h.config.SecureCookies,
		SameSite: h.config.SameSite,
	})
}

func (h *Handler) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookieName,
		Value:    "",
		Path:     CookiePath,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.SecureCookies,
		SameSite: h.config.SameSite,
	})
}

func requestContext(r *http.Request) context.Context {
	ctx := r.Context()

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	ctx = authgate.WithClientIP(ctx, host)
	ctx = authgate.WithUserAgent(ctx, r.UserAgent())

	return ctx
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
