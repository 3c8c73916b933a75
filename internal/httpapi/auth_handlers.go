package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"civium.org/internal/auth"
	"civium.org/internal/obs"
)

const refreshCookieName = "refreshToken"

// Additional credential-flow error codes.
const (
	codeInvalidCredentials = "INVALID_CREDENTIALS"
	codeAccountDisabled    = "ACCOUNT_DISABLED"
)

// Per-identifier budgets for credential issuance.
const (
	loginMaxAttempts  = 5
	loginWindow       = 15 * time.Minute
	signupMaxAttempts = 3
	signupWindow      = time.Hour
	refreshMaxCalls   = 20
	refreshWindow     = 15 * time.Minute
)

type signupRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (a *API) handleSignup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	if !a.allowCredentialCall(w, r, "signup", signupMaxAttempts, signupWindow) {
		return
	}

	var req signupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeFailure(w, http.StatusBadRequest, codeValidation, err.Error())
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	req.Name = strings.TrimSpace(req.Name)
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		writeFailure(w, http.StatusBadRequest, codeValidation, "valid email is required")
		return
	}
	if len(req.Password) < 8 {
		writeFailure(w, http.StatusBadRequest, codeValidation, "password must be at least 8 characters")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		a.internalError(w, r, "hash password", err)
		return
	}
	user := &auth.User{
		Email:        req.Email,
		Name:         req.Name,
		Role:         auth.RoleCitizen,
		PasswordHash: hash,
		Status:       auth.UserStatusActive,
	}
	if err := a.store.Create(r.Context(), user); err != nil {
		if errors.Is(err, auth.ErrConflict) {
			writeFailure(w, http.StatusConflict, codeConflict, "email is already registered")
			return
		}
		a.internalError(w, r, "create user", err)
		return
	}

	a.issueSession(w, r, user, http.StatusCreated, "account created")
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	if !a.allowCredentialCall(w, r, "login", loginMaxAttempts, loginWindow) {
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeFailure(w, http.StatusBadRequest, codeValidation, err.Error())
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" || req.Password == "" {
		writeFailure(w, http.StatusBadRequest, codeValidation, "email and password are required")
		return
	}

	user, err := a.store.FindByEmail(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			writeFailure(w, http.StatusUnauthorized, codeInvalidCredentials, "invalid email or password")
			return
		}
		a.internalError(w, r, "find user", err)
		return
	}
	if user.Status != auth.UserStatusActive {
		writeFailure(w, http.StatusUnauthorized, codeAccountDisabled, "account is disabled")
		return
	}
	if err := auth.VerifyPassword(user.PasswordHash, req.Password); err != nil {
		writeFailure(w, http.StatusUnauthorized, codeInvalidCredentials, "invalid email or password")
		return
	}

	a.issueSession(w, r, user, http.StatusOK, "login successful")
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	if !a.allowCredentialCall(w, r, "refresh", refreshMaxCalls, refreshWindow) {
		return
	}

	cookie, err := r.Cookie(refreshCookieName)
	if err != nil || strings.TrimSpace(cookie.Value) == "" {
		writeFailure(w, http.StatusUnauthorized, codeMissingRefreshToken, "refresh token is required")
		return
	}

	claims, err := a.tokens.VerifyRefresh(cookie.Value)
	if err != nil {
		// Terminal rejection: the caller must authenticate from scratch.
		a.clearRefreshCookie(w)
		writeFailure(w, http.StatusUnauthorized, codeInvalidRefreshToken, "refresh token is invalid or expired")
		return
	}

	// Re-resolve the principal instead of trusting the old snapshot; role
	// or name changes since issuance take effect here.
	user, err := a.store.FindByID(r.Context(), claims.ID)
	if err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			a.clearRefreshCookie(w)
			writeFailure(w, http.StatusNotFound, codeUserNotFound, "account no longer exists")
			return
		}
		a.internalError(w, r, "resolve principal", err)
		return
	}
	if user.Status != auth.UserStatusActive {
		a.clearRefreshCookie(w)
		writeFailure(w, http.StatusUnauthorized, codeAccountDisabled, "account is disabled")
		return
	}

	a.issueSession(w, r, user, http.StatusOK, "token refreshed")
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	a.clearRefreshCookie(w)
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: "logged out"})
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		// RequireAuth guards this route; a missing principal is a wiring bug.
		a.internalError(w, r, "principal missing from context", errors.New("unauthenticated request passed guard"))
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: "authenticated", User: userOf(p)})
}

// issueSession mints a credential pair for user, rotates the refresh
// cookie and writes the success envelope.
func (a *API) issueSession(w http.ResponseWriter, r *http.Request, user *auth.User, status int, message string) {
	pair, err := a.tokens.IssuePair(user.Principal())
	if err != nil {
		a.internalError(w, r, "issue credential pair", err)
		return
	}
	obs.RecordTokenIssued("access")
	obs.RecordTokenIssued("refresh")
	a.setRefreshCookie(w, pair.Refresh)
	writeJSON(w, status, envelope{
		Success:     true,
		Message:     message,
		AccessToken: pair.Access,
		User:        userOf(user.Principal()),
	})
}

func (a *API) setRefreshCookie(w http.ResponseWriter, value string) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   int(a.tokens.RefreshTTL().Seconds()),
		HttpOnly: true,
		Secure:   a.production,
		SameSite: http.SameSiteStrictMode,
	})
}

func (a *API) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   a.production,
		SameSite: http.SameSiteStrictMode,
	})
}

// allowCredentialCall applies the fixed-window budget for a credential
// endpoint, keyed by operation and client IP.
func (a *API) allowCredentialCall(w http.ResponseWriter, r *http.Request, op string, max int, window time.Duration) bool {
	if a.limiter == nil {
		return true
	}
	ip := clientIP(r)
	if ip == "" {
		ip = "unknown"
	}
	if a.limiter.Allow(op+":"+ip, max, window) {
		return true
	}
	obs.RecordRateLimitRejection()
	w.Header().Set("Retry-After", "60")
	writeFailure(w, http.StatusTooManyRequests, codeRateLimited, "too many attempts, slow down")
	return false
}

func (a *API) internalError(w http.ResponseWriter, r *http.Request, op string, err error) {
	obs.Error("internal error", map[string]any{
		"op":         op,
		"error":      err.Error(),
		"request_id": RequestIDFromContext(r.Context()),
	})
	msg := "internal error"
	if !a.production {
		msg = op + ": " + err.Error()
	}
	writeFailure(w, http.StatusInternalServerError, codeInternal, msg)
}
