package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"civium.org/internal/audit"
	"civium.org/internal/auth"
	"civium.org/internal/obs"
	"civium.org/internal/token"
)

const (
	authHeader   = "Authorization"
	bearerScheme = "Bearer "
)

// Verifier validates an access credential and returns its principal.
type Verifier interface {
	VerifyAccess(raw string) (auth.Principal, error)
}

// Middleware is one layer of the guard pipeline; layers compose with
// ordinary function application.
type Middleware func(http.Handler) http.Handler

// Guard wraps protected operations with authentication and authorization
// checks. Every evaluation, allow and deny alike, emits exactly one
// audit event before the response is written or the operation runs.
type Guard struct {
	verifier Verifier
	recorder *audit.Recorder
}

// NewGuard builds a Guard over verifier and recorder.
func NewGuard(verifier Verifier, recorder *audit.Recorder) *Guard {
	return &Guard{verifier: verifier, recorder: recorder}
}

// RequireAuth rejects requests without a valid bearer credential and runs
// the wrapped handler with the principal attached to the context.
func (g *Guard) RequireAuth() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, code, msg, ok := g.authenticate(r)
			if !ok {
				g.deny(w, r, p, "authentication", code, msg, http.StatusUnauthorized)
				return
			}
			g.allow(w, r, p, "authentication", next)
		})
	}
}

// RequireRole additionally requires the principal's role to meet at least
// one of allowed in the hierarchy.
func (g *Guard) RequireRole(allowed ...auth.Role) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, code, msg, ok := g.authenticate(r)
			if !ok {
				g.denyRole(w, r, p, allowed, code, msg, http.StatusUnauthorized)
				return
			}
			if !auth.ValidRole(p.Role) {
				g.denyRole(w, r, p, allowed, codeInvalidRole, "role "+string(p.Role)+" is not recognized", http.StatusForbidden)
				return
			}
			for _, role := range allowed {
				if auth.MeetsRoleRequirement(p.Role, role) {
					g.allowRole(w, r, p, allowed, next)
					return
				}
			}
			g.denyRole(w, r, p, allowed, codeRoleRequired, "requires role "+roleNames(allowed), http.StatusForbidden)
		})
	}
}

// RequirePermission additionally requires the principal's role to carry
// perm. An unrecognized role fails with INVALID_ROLE, never as a plain
// permission miss.
func (g *Guard) RequirePermission(perm auth.Permission) Middleware {
	return g.requirePermissions(auth.HasPermission, perm)
}

// RequireAnyPermission allows the request if the role carries at least one
// of perms.
func (g *Guard) RequireAnyPermission(perms ...auth.Permission) Middleware {
	return g.requirePermissions(func(role auth.Role, _ auth.Permission) bool {
		return auth.HasAnyPermission(role, perms...)
	}, perms...)
}

func (g *Guard) requirePermissions(check func(auth.Role, auth.Permission) bool, perms ...auth.Permission) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, code, msg, ok := g.authenticate(r)
			if !ok {
				g.denyPermission(w, r, p, perms, code, msg, http.StatusUnauthorized)
				return
			}
			if !auth.ValidRole(p.Role) {
				g.denyPermission(w, r, p, perms, codeInvalidRole, "role "+string(p.Role)+" is not recognized", http.StatusForbidden)
				return
			}
			if len(perms) == 0 || !check(p.Role, perms[0]) {
				g.denyPermission(w, r, p, perms, codePermissionRequired, "requires permission "+permNames(perms), http.StatusForbidden)
				return
			}
			g.allowPermission(w, r, p, perms, next)
		})
	}
}

// OptionalAuth never rejects: a valid credential attaches a principal,
// anything else leaves the request anonymous. Downstream logic decides.
func (g *Guard) OptionalAuth() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, _, _, ok := g.authenticate(r)
			event := audit.Event{
				Decision: audit.DecisionAllowed,
				Reason:   "OK",
				Required: "optional",
				Endpoint: r.URL.Path,
				Method:   r.Method,
			}
			if ok {
				event.ActorID = p.ID
				event.ActorEmail = p.Email
				event.ActorRole = string(p.Role)
			} else {
				event.Metadata = map[string]string{"anonymous": "true"}
			}
			g.recorder.Record(r.Context(), event)
			obs.RecordDecision(string(audit.DecisionAllowed), "OK")
			if ok {
				r = r.WithContext(auth.ContextWithPrincipal(r.Context(), p))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// authenticate extracts and verifies the bearer credential without
// emitting audit events; each guard variant records exactly once.
func (g *Guard) authenticate(r *http.Request) (auth.Principal, string, string, bool) {
	header := strings.TrimSpace(r.Header.Get(authHeader))
	if header == "" {
		return auth.Principal{}, codeMissingToken, "authorization header is required", false
	}
	if !strings.HasPrefix(header, bearerScheme) {
		return auth.Principal{}, codeMissingToken, "authorization scheme must be Bearer", false
	}
	raw := strings.TrimSpace(header[len(bearerScheme):])
	if raw == "" {
		return auth.Principal{}, codeMissingToken, "bearer token is empty", false
	}
	p, err := g.verifier.VerifyAccess(raw)
	if err != nil {
		msg := "access token is invalid"
		if errors.Is(err, token.ErrExpired) {
			msg = "access token expired"
		}
		return auth.Principal{}, codeInvalidToken, msg, false
	}
	return p, "", "", true
}

func (g *Guard) allow(w http.ResponseWriter, r *http.Request, p auth.Principal, required string, next http.Handler) {
	g.recorder.Record(r.Context(), audit.Event{
		ActorID:    p.ID,
		ActorEmail: p.Email,
		ActorRole:  string(p.Role),
		Required:   required,
		Decision:   audit.DecisionAllowed,
		Reason:     "OK",
		Endpoint:   r.URL.Path,
		Method:     r.Method,
	})
	obs.RecordDecision(string(audit.DecisionAllowed), "OK")
	next.ServeHTTP(w, r.WithContext(auth.ContextWithPrincipal(r.Context(), p)))
}

func (g *Guard) deny(w http.ResponseWriter, r *http.Request, p auth.Principal, required, code, msg string, status int) {
	g.recorder.Record(r.Context(), audit.Event{
		ActorID:    p.ID,
		ActorEmail: p.Email,
		ActorRole:  string(p.Role),
		Required:   required,
		Decision:   audit.DecisionDenied,
		Reason:     code,
		Endpoint:   r.URL.Path,
		Method:     r.Method,
	})
	g.reject(w, r, code, msg, status)
}

func (g *Guard) allowRole(w http.ResponseWriter, r *http.Request, p auth.Principal, roles []auth.Role, next http.Handler) {
	g.recorder.RoleCheck(r.Context(), p, roles, audit.DecisionAllowed, "OK", r.URL.Path, r.Method)
	obs.RecordDecision(string(audit.DecisionAllowed), "OK")
	next.ServeHTTP(w, r.WithContext(auth.ContextWithPrincipal(r.Context(), p)))
}

func (g *Guard) denyRole(w http.ResponseWriter, r *http.Request, p auth.Principal, roles []auth.Role, code, msg string, status int) {
	g.recorder.RoleCheck(r.Context(), p, roles, audit.DecisionDenied, code, r.URL.Path, r.Method)
	g.reject(w, r, code, msg, status)
}

func (g *Guard) allowPermission(w http.ResponseWriter, r *http.Request, p auth.Principal, perms []auth.Permission, next http.Handler) {
	g.recorder.PermissionCheck(r.Context(), p, perms, audit.DecisionAllowed, "OK", r.URL.Path, r.Method)
	obs.RecordDecision(string(audit.DecisionAllowed), "OK")
	next.ServeHTTP(w, r.WithContext(auth.ContextWithPrincipal(r.Context(), p)))
}

func (g *Guard) denyPermission(w http.ResponseWriter, r *http.Request, p auth.Principal, perms []auth.Permission, code, msg string, status int) {
	g.recorder.PermissionCheck(r.Context(), p, perms, audit.DecisionDenied, code, r.URL.Path, r.Method)
	g.reject(w, r, code, msg, status)
}

func (g *Guard) reject(w http.ResponseWriter, _ *http.Request, code, msg string, status int) {
	obs.RecordDecision(string(audit.DecisionDenied), code)
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", "Bearer")
	}
	writeFailure(w, status, code, msg)
}

func roleNames(roles []auth.Role) string {
	names := make([]string, 0, len(roles))
	for _, r := range roles {
		names = append(names, string(r))
	}
	return strings.Join(names, " or ")
}

func permNames(perms []auth.Permission) string {
	names := make([]string, 0, len(perms))
	for _, p := range perms {
		names = append(names, string(p))
	}
	return strings.Join(names, " or ")
}
