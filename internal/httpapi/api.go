// Package httpapi exposes the session and authorization core over HTTP:
// credential issuance, the guard pipeline every protected operation
// passes through, and the audit read surface.
package httpapi

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"civium.org/internal/audit"
	"civium.org/internal/auth"
	"civium.org/internal/obs"
	"civium.org/internal/ratelimit"
	"civium.org/internal/token"
)

// ReadyProbe reports whether downstream dependencies answer.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// AuditReader lists recorded decisions for the audit endpoint.
type AuditReader interface {
	ListEvents(ctx context.Context, limit int) ([]audit.Event, error)
}

// Config wires the API's collaborators.
type Config struct {
	Store      auth.Store
	Tokens     *token.Manager
	Recorder   *audit.Recorder
	AuditLog   AuditReader
	Limiter    *ratelimit.Limiter
	ReadyProbe ReadyProbe
	Version    string
	Production bool
}

// API is the HTTP layer over the session core.
type API struct {
	mux        *http.ServeMux
	store      auth.Store
	tokens     *token.Manager
	guard      *Guard
	auditLog   AuditReader
	limiter    *ratelimit.Limiter
	readyProbe ReadyProbe
	version    string
	production bool
}

// New assembles the API and its routes.
func New(cfg Config) *API {
	a := &API{
		mux:        http.NewServeMux(),
		store:      cfg.Store,
		tokens:     cfg.Tokens,
		guard:      NewGuard(cfg.Tokens, cfg.Recorder),
		auditLog:   cfg.AuditLog,
		limiter:    cfg.Limiter,
		readyProbe: cfg.ReadyProbe,
		version:    cfg.Version,
		production: cfg.Production,
	}

	a.mux.HandleFunc("/healthz", a.handleHealthz)
	a.mux.HandleFunc("/readyz", a.handleReadyz)
	a.mux.HandleFunc("/v1/info", a.handleInfo)
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/v1/auth/signup", a.handleSignup)
	a.mux.HandleFunc("/v1/auth/login", a.handleLogin)
	a.mux.HandleFunc("/v1/auth/refresh", a.handleRefresh)
	a.mux.HandleFunc("/v1/auth/logout", a.handleLogout)
	a.mux.Handle("/v1/auth/me", a.guard.RequireAuth()(http.HandlerFunc(a.handleMe)))

	a.mux.Handle("/v1/audit", a.guard.RequirePermission(auth.PermReadAudit)(http.HandlerFunc(a.handleAuditList)))

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Guard exposes the guard pipeline so the complaint and department layers
// can wrap their own routes.
func (a *API) Guard() *Guard { return a.guard }

// Handler returns the fully wrapped handler for the server.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = MaxBodyBytes(h, 1<<20)
	h = RateLimit(h, 20, 10)
	h = SecurityHeaders(h)
	h = CORS(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

func (a *API) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "civium-api",
		"version": a.version,
	})
}

func (a *API) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func (a *API) handleInfo(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "civium-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}
