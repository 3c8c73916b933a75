package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"civium.org/internal/auth"
)

func postJSON(t *testing.T, handler http.Handler, path string, body any, prepare func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "10.1.2.3:4567"
	if prepare != nil {
		prepare(req)
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func refreshCookieFrom(t *testing.T, rr *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rr.Result().Cookies() {
		if c.Name == refreshCookieName {
			return c
		}
	}
	return nil
}

func TestSignupIssuesCredentialPair(t *testing.T) {
	h := newTestHarness(t)

	rr := postJSON(t, h.api.mux, "/v1/auth/signup", signupRequest{
		Name:     "Dana",
		Email:    "dana@example.org",
		Password: "long-enough-password",
	}, nil)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	env := decodeEnvelope(t, rr)
	if !env.Success || env.AccessToken == "" {
		t.Fatalf("expected access token in envelope: %+v", env)
	}
	if env.User == nil || env.User.Role != string(auth.RoleCitizen) {
		t.Fatalf("signup should default to citizen role: %+v", env.User)
	}

	cookie := refreshCookieFrom(t, rr)
	if cookie == nil {
		t.Fatal("expected refresh cookie")
	}
	if !cookie.HttpOnly || cookie.SameSite != http.SameSiteStrictMode || cookie.Path != "/" {
		t.Fatalf("refresh cookie attributes wrong: %+v", cookie)
	}
	if cookie.MaxAge <= 0 {
		t.Fatalf("refresh cookie should carry max-age, got %d", cookie.MaxAge)
	}

	// The refresh credential lives in the cookie, never the body.
	if bytes.Contains(rr.Body.Bytes(), []byte(cookie.Value)) {
		t.Fatal("refresh token must not appear in the response body")
	}

	if _, err := h.tokens.VerifyAccess(env.AccessToken); err != nil {
		t.Fatalf("issued access token should verify: %v", err)
	}
	if _, err := h.tokens.VerifyRefresh(cookie.Value); err != nil {
		t.Fatalf("issued refresh token should verify: %v", err)
	}
}

func TestSignupDuplicateEmail(t *testing.T) {
	h := newTestHarness(t)
	h.seedUser(t, "dana@example.org", "password-1", auth.RoleCitizen)

	rr := postJSON(t, h.api.mux, "/v1/auth/signup", signupRequest{
		Name:     "Dana",
		Email:    "dana@example.org",
		Password: "long-enough-password",
	}, nil)

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
	if env := decodeEnvelope(t, rr); env.Error != codeConflict {
		t.Fatalf("expected CONFLICT, got %q", env.Error)
	}
}

func TestSignupValidation(t *testing.T) {
	h := newTestHarness(t)
	cases := []signupRequest{
		{Name: "Dana", Email: "not-an-email", Password: "long-enough-password"},
		{Name: "Dana", Email: "dana@example.org", Password: "short"},
		{Name: "Dana", Email: "", Password: "long-enough-password"},
	}
	for i, req := range cases {
		rr := postJSON(t, h.api.mux, "/v1/auth/signup", req, nil)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("case %d: expected 400, got %d", i, rr.Code)
		}
	}
}

func TestLoginSuccessAndFailure(t *testing.T) {
	h := newTestHarness(t)
	h.seedUser(t, "dana@example.org", "correct-password", auth.RoleOfficer)

	rr := postJSON(t, h.api.mux, "/v1/auth/login", loginRequest{
		Email:    "dana@example.org",
		Password: "correct-password",
	}, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	env := decodeEnvelope(t, rr)
	if env.AccessToken == "" || env.User == nil || env.User.Role != string(auth.RoleOfficer) {
		t.Fatalf("unexpected login envelope: %+v", env)
	}
	if refreshCookieFrom(t, rr) == nil {
		t.Fatal("expected refresh cookie on login")
	}

	rr = postJSON(t, h.api.mux, "/v1/auth/login", loginRequest{
		Email:    "dana@example.org",
		Password: "wrong-password",
	}, nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad password, got %d", rr.Code)
	}

	rr = postJSON(t, h.api.mux, "/v1/auth/login", loginRequest{
		Email:    "nobody@example.org",
		Password: "whatever-password",
	}, nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for unknown email, got %d", rr.Code)
	}
}

func TestLoginDisabledAccount(t *testing.T) {
	h := newTestHarness(t)
	u := h.seedUser(t, "dana@example.org", "correct-password", auth.RoleCitizen)
	h.store.users[u.ID].Status = auth.UserStatusDisabled

	rr := postJSON(t, h.api.mux, "/v1/auth/login", loginRequest{
		Email:    "dana@example.org",
		Password: "correct-password",
	}, nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for disabled account, got %d", rr.Code)
	}
	if env := decodeEnvelope(t, rr); env.Error != codeAccountDisabled {
		t.Fatalf("expected ACCOUNT_DISABLED, got %q", env.Error)
	}
}

func TestRefreshRotatesPair(t *testing.T) {
	h := newTestHarness(t)
	u := h.seedUser(t, "dana@example.org", "correct-password", auth.RoleCitizen)
	pair, err := h.tokens.IssuePair(u.Principal())
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}

	rr := postJSON(t, h.api.mux, "/v1/auth/refresh", struct{}{}, func(req *http.Request) {
		req.AddCookie(&http.Cookie{Name: refreshCookieName, Value: pair.Refresh})
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	env := decodeEnvelope(t, rr)
	if env.AccessToken == "" {
		t.Fatal("expected fresh access token")
	}

	cookie := refreshCookieFrom(t, rr)
	if cookie == nil {
		t.Fatal("expected rotated refresh cookie")
	}
	if cookie.Value == pair.Refresh {
		t.Fatal("rotated refresh token must differ from the presented one")
	}
	if _, err := h.tokens.VerifyRefresh(cookie.Value); err != nil {
		t.Fatalf("rotated refresh token should verify: %v", err)
	}
}

func TestRefreshPicksUpRoleChange(t *testing.T) {
	h := newTestHarness(t)
	u := h.seedUser(t, "dana@example.org", "correct-password", auth.RoleCitizen)
	pair, err := h.tokens.IssuePair(u.Principal())
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}

	// Promotion between issuance and refresh: the new pair reflects it.
	h.store.users[u.ID].Role = auth.RoleOfficer

	rr := postJSON(t, h.api.mux, "/v1/auth/refresh", struct{}{}, func(req *http.Request) {
		req.AddCookie(&http.Cookie{Name: refreshCookieName, Value: pair.Refresh})
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	env := decodeEnvelope(t, rr)
	if env.User == nil || env.User.Role != string(auth.RoleOfficer) {
		t.Fatalf("refresh should re-resolve the role, got %+v", env.User)
	}
	p, err := h.tokens.VerifyAccess(env.AccessToken)
	if err != nil {
		t.Fatalf("VerifyAccess: %v", err)
	}
	if p.Role != auth.RoleOfficer {
		t.Fatalf("new access token should carry the fresh role, got %s", p.Role)
	}
}

func TestRefreshWithoutCookie(t *testing.T) {
	h := newTestHarness(t)
	rr := postJSON(t, h.api.mux, "/v1/auth/refresh", struct{}{}, nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	if env := decodeEnvelope(t, rr); env.Error != codeMissingRefreshToken {
		t.Fatalf("expected MISSING_REFRESH_TOKEN, got %q", env.Error)
	}
}

func TestRefreshInvalidTokenClearsCookie(t *testing.T) {
	h := newTestHarness(t)
	rr := postJSON(t, h.api.mux, "/v1/auth/refresh", struct{}{}, func(req *http.Request) {
		req.AddCookie(&http.Cookie{Name: refreshCookieName, Value: "garbage"})
	})
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	if env := decodeEnvelope(t, rr); env.Error != codeInvalidRefreshToken {
		t.Fatalf("expected INVALID_REFRESH_TOKEN, got %q", env.Error)
	}
	cookie := refreshCookieFrom(t, rr)
	if cookie == nil || cookie.MaxAge >= 0 {
		t.Fatalf("expected cleared refresh cookie, got %+v", cookie)
	}
}

func TestRefreshAccessTokenRejected(t *testing.T) {
	h := newTestHarness(t)
	u := h.seedUser(t, "dana@example.org", "correct-password", auth.RoleCitizen)

	// An access token in the refresh cookie must not pass.
	rr := postJSON(t, h.api.mux, "/v1/auth/refresh", struct{}{}, func(req *http.Request) {
		req.AddCookie(&http.Cookie{Name: refreshCookieName, Value: h.accessFor(t, u)})
	})
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	if env := decodeEnvelope(t, rr); env.Error != codeInvalidRefreshToken {
		t.Fatalf("expected INVALID_REFRESH_TOKEN, got %q", env.Error)
	}
}

func TestRefreshVanishedUser(t *testing.T) {
	h := newTestHarness(t)
	u := h.seedUser(t, "dana@example.org", "correct-password", auth.RoleCitizen)
	pair, err := h.tokens.IssuePair(u.Principal())
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}
	h.store.delete(u.ID)

	rr := postJSON(t, h.api.mux, "/v1/auth/refresh", struct{}{}, func(req *http.Request) {
		req.AddCookie(&http.Cookie{Name: refreshCookieName, Value: pair.Refresh})
	})
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
	if env := decodeEnvelope(t, rr); env.Error != codeUserNotFound {
		t.Fatalf("expected USER_NOT_FOUND, got %q", env.Error)
	}
	cookie := refreshCookieFrom(t, rr)
	if cookie == nil || cookie.MaxAge >= 0 {
		t.Fatal("expected cleared refresh cookie for vanished user")
	}
}

func TestLogoutClearsCookie(t *testing.T) {
	h := newTestHarness(t)
	rr := postJSON(t, h.api.mux, "/v1/auth/logout", struct{}{}, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	cookie := refreshCookieFrom(t, rr)
	if cookie == nil || cookie.MaxAge >= 0 || cookie.Value != "" {
		t.Fatalf("expected cleared refresh cookie, got %+v", cookie)
	}
}

func TestMeRequiresAuthentication(t *testing.T) {
	h := newTestHarness(t)
	u := h.seedUser(t, "dana@example.org", "correct-password", auth.RoleOfficer)

	req := httptest.NewRequest(http.MethodGet, "/v1/auth/me", nil)
	rr := httptest.NewRecorder()
	h.api.mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rr.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+h.accessFor(t, u))
	rr = httptest.NewRecorder()
	h.api.mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	env := decodeEnvelope(t, rr)
	if env.User == nil || env.User.Email != "dana@example.org" {
		t.Fatalf("unexpected me payload: %+v", env.User)
	}
}

func TestLoginRateLimited(t *testing.T) {
	h := newTestHarness(t)
	h.seedUser(t, "dana@example.org", "correct-password", auth.RoleCitizen)

	body := loginRequest{Email: "dana@example.org", Password: "wrong-password"}
	for i := 0; i < loginMaxAttempts; i++ {
		rr := postJSON(t, h.api.mux, "/v1/auth/login", body, nil)
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: expected 401, got %d", i+1, rr.Code)
		}
	}

	rr := postJSON(t, h.api.mux, "/v1/auth/login", body, nil)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after budget exhausted, got %d", rr.Code)
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header")
	}
	if env := decodeEnvelope(t, rr); env.Error != codeRateLimited {
		t.Fatalf("expected RATE_LIMITED, got %q", env.Error)
	}
}
