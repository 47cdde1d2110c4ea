// handler.go -- HTTP surface for the authentication engine.
package httpapi

import (
	"encoding/json"
	"net"
	"net/http"
	"time"

	mailauth "github.com/dvrkhlm/mailauth"
	"github.com/dvrkhlm/mailauth/middleware"
	"github.com/google/uuid"
)

const (
	accessCookieName  = "auth-token"
	refreshCookieName = "refresh-token"
)

// Handler exposes the engine over HTTP. Construct with [NewHandler] and
// mount [Handler.Routes].
type Handler struct {
	engine        *mailauth.Engine
	secureCookies bool
}

func NewHandler(engine *mailauth.Engine, secureCookies bool) *Handler {
	return &Handler{
		engine:        engine,
		secureCookies: secureCookies,
	}
}

// Routes returns the full route table. Public endpoints carry only the
// request-context middleware; authenticated endpoints additionally pass
// the structural prefilter and the guard.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("POST /auth/register", http.HandlerFunc(h.register))
	mux.Handle("POST /auth/login", http.HandlerFunc(h.login))
	mux.Handle("POST /2fa/send-code", http.HandlerFunc(h.sendCode))
	mux.Handle("POST /2fa/verify-code", http.HandlerFunc(h.verifyCode))
	mux.Handle("POST /auth/refresh", http.HandlerFunc(h.refresh))
	mux.Handle("POST /auth/logout", http.HandlerFunc(h.logout))

	guarded := func(fn http.HandlerFunc) http.Handler {
		return middleware.Prefilter(middleware.Guard(h.engine)(fn))
	}
	mux.Handle("POST /auth/logout-all", guarded(h.logoutAll))
	mux.Handle("GET /auth/me", guarded(h.me))
	mux.Handle("GET /security/sessions", guarded(h.listSessions))
	mux.Handle("DELETE /security/sessions/{id}", guarded(h.deleteSession))
	mux.Handle("POST /auth/password", guarded(h.changePassword))

	mux.Handle("GET /healthz", http.HandlerFunc(h.health))

	return h.withRequestContext(mux)
}

// withRequestContext feeds the client IP, user agent, and a correlation
// ID into the context the engine sees.
func (h *Handler) withRequestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := r.RemoteAddr
		if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			ip = host
		}

		correlationID := r.Header.Get("X-Request-ID")
		if correlationID == "" {
			correlationID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", correlationID)

		ctx := mailauth.WithClientIP(r.Context(), ip)
		ctx = mailauth.WithUserAgent(ctx, r.UserAgent())
		ctx = mailauth.WithCorrelationID(ctx, correlationID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(dst); err != nil {
		logWarn(r, "failed to decode request body", "error", err)
		writeJSON(w, http.StatusUnprocessableEntity, envelope{Error: "malformed request body"})
		return false
	}
	return true
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email           string `json:"email"`
		Password        string `json:"password"`
		ConfirmPassword string `json:"confirmPassword"`
		Name            string `json:"name"`
	}
	if !decodeBody(w, r, &in) {
		return
	}
	if in.ConfirmPassword != "" && in.ConfirmPassword != in.Password {
		writeJSON(w, http.StatusUnprocessableEntity, envelope{Error: "passwords do not match"})
		return
	}

	user, err := h.engine.Register(r.Context(), in.Email, in.Password, in.Name)
	if err != nil {
		writeError(w, r, err)
		return
	}

	logInfo(r, "user registered", "user_id", user.ID)
	writeJSON(w, http.StatusCreated, envelope{Message: "registered", Data: user})
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decodeBody(w, r, &in) {
		return
	}

	result, err := h.engine.Login(r.Context(), in.Email, in.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, envelope{
		Message: "verification code sent",
		Data: map[string]interface{}{
			"email":         result.Email,
			"codeExpiresIn": int(result.CodeExpiresIn.Seconds()),
			"requires2FA":   true,
		},
	})
}

func (h *Handler) sendCode(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email string `json:"email"`
	}
	if !decodeBody(w, r, &in) {
		return
	}

	codeID, err := h.engine.ResendCode(r.Context(), in.Email)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{
		Message: "verification code sent",
		Data:    map[string]interface{}{"codeId": codeID},
	})
}

func (h *Handler) verifyCode(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email string `json:"email"`
		Code  string `json:"code"`
	}
	if !decodeBody(w, r, &in) {
		return
	}

	result, err := h.engine.VerifyCode(r.Context(), in.Email, in.Code)
	if err != nil {
		writeError(w, r, err)
		return
	}

	h.setCookie(w, accessCookieName, result.AccessToken, result.AccessExpiresAt)
	h.setCookie(w, refreshCookieName, result.RefreshToken, result.RefreshExpiresAt)

	logInfo(r, "login completed", "user_id", result.User.ID, "session_id", result.SessionID)
	writeJSON(w, http.StatusOK, envelope{
		Message: "authenticated",
		Data: map[string]interface{}{
			"user":                 result.User,
			"accessToken":          result.AccessToken,
			"refreshToken":         result.RefreshToken,
			"sessionId":            result.SessionID,
			"activeSessions":       result.ActiveSessions,
			"sessionLimitExceeded": result.SessionLimitExceeded,
		},
	})
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	var in struct {
		RefreshToken string `json:"refreshToken"`
	}
	// Body is optional; the cookie is the usual carrier.
	if r.Body != nil && r.ContentLength != 0 {
		if !decodeBody(w, r, &in) {
			return
		}
	}
	if in.RefreshToken == "" {
		if cookie, err := r.Cookie(refreshCookieName); err == nil {
			in.RefreshToken = cookie.Value
		}
	}
	if in.RefreshToken == "" {
		writeJSON(w, http.StatusUnauthorized, envelope{Error: "unauthorized"})
		return
	}

	result, err := h.engine.Refresh(r.Context(), in.RefreshToken)
	if err != nil {
		writeError(w, r, err)
		return
	}

	h.setCookie(w, accessCookieName, result.AccessToken, result.AccessExpiresAt)
	writeJSON(w, http.StatusOK, envelope{
		Message: "token refreshed",
		Data: map[string]interface{}{
			"user":        result.User,
			"accessToken": result.AccessToken,
			"sessionId":   result.SessionID,
		},
	})
}

// logout always succeeds: a request without a token, or with a token
// whose session is already gone, still gets its cookies cleared.
func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	if token, ok := middleware.RequestToken(r); ok {
		if err := h.engine.Logout(r.Context(), token); err != nil {
			writeError(w, r, err)
			return
		}
	}

	h.clearAuthCookies(w)
	writeJSON(w, http.StatusOK, envelope{Message: "logged out"})
}

func (h *Handler) logoutAll(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, envelope{Error: "unauthorized"})
		return
	}

	ended, err := h.engine.LogoutAll(r.Context(), identity.User.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	h.clearAuthCookies(w)
	writeJSON(w, http.StatusOK, envelope{
		Message: "logged out everywhere",
		Data:    map[string]interface{}{"sessionsEnded": ended},
	})
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, envelope{Error: "unauthorized"})
		return
	}

	writeJSON(w, http.StatusOK, envelope{Data: map[string]interface{}{
		"user":      identity.User,
		"sessionId": identity.SessionID,
	}})
}

func (h *Handler) listSessions(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, envelope{Error: "unauthorized"})
		return
	}

	sessions, err := h.engine.ListSessions(r.Context(), identity.User.ID, identity.SessionID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Data: map[string]interface{}{"sessions": sessions}})
}

func (h *Handler) deleteSession(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, envelope{Error: "unauthorized"})
		return
	}

	sessionID := r.PathValue("id")
	if err := h.engine.InvalidateSession(r.Context(), identity.User.ID, sessionID); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Message: "session ended"})
}

func (h *Handler) changePassword(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, envelope{Error: "unauthorized"})
		return
	}

	var in struct {
		CurrentPassword string `json:"currentPassword"`
		NewPassword     string `json:"newPassword"`
	}
	if !decodeBody(w, r, &in) {
		return
	}

	if err := h.engine.ChangePassword(r.Context(), identity.User.ID, in.CurrentPassword, in.NewPassword); err != nil {
		writeError(w, r, err)
		return
	}

	// Every session is gone, this one included.
	h.clearAuthCookies(w)
	writeJSON(w, http.StatusOK, envelope{Message: "password changed, sign in again"})
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	latency, err := h.engine.Ping(r.Context())
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, envelope{Error: "store unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, envelope{Data: map[string]interface{}{
		"status":    "ok",
		"storeRTT":  latency.String(),
		"checkedAt": time.Now().UTC().Format(time.RFC3339),
	}})
}

func (h *Handler) setCookie(w http.ResponseWriter, name, value string, expiresAt time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Expires:  expiresAt,
		MaxAge:   int(time.Until(expiresAt).Seconds()),
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) clearAuthCookies(w http.ResponseWriter) {
	for _, name := range []string{accessCookieName, refreshCookieName} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   h.secureCookies,
			SameSite: http.SameSiteLaxMode,
		})
	}
}
