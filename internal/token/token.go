// Package token issues and verifies the platform's two credential types:
// short-lived access tokens carrying a full principal snapshot and
// long-lived refresh tokens carrying only the identity subset needed to
// re-resolve the principal.
package token

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"civium.org/internal/auth"
)

const (
	defaultIssuer     = "civium"
	defaultAudience   = "civium-api"
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 7 * 24 * time.Hour

	typeAccess  = "access"
	typeRefresh = "refresh"
)

var (
	// ErrExpired marks a well-formed, correctly signed token past its
	// expiry. Callers translate this into "log in again".
	ErrExpired = errors.New("token: expired")
	// ErrMalformed covers garbage input and signature failures: the token
	// was never ours.
	ErrMalformed = errors.New("token: malformed or bad signature")
	// ErrWrongIssuer marks a token signed for a different issuer.
	ErrWrongIssuer = errors.New("token: wrong issuer")
	// ErrWrongAudience marks a token minted for a different audience.
	ErrWrongAudience = errors.New("token: wrong audience")
	// ErrWrongType marks an access token presented where a refresh token
	// is expected, or vice versa.
	ErrWrongType = errors.New("token: wrong token type")
)

type accessClaims struct {
	Email     string `json:"email"`
	Name      string `json:"name"`
	Role      string `json:"role"`
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

type refreshClaims struct {
	Email     string `json:"email"`
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

// RefreshClaims is the verified identity subset of a refresh token.
type RefreshClaims struct {
	ID    string
	Email string
}

// Pair bundles the two credentials issued together at login, signup and
// refresh.
type Pair struct {
	Access           string
	Refresh          string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// Manager signs and verifies credentials with a fixed issuer/audience and
// HS256. Verification is pure CPU work; the Manager is safe for
// concurrent use.
type Manager struct {
	secret     []byte
	issuer     string
	audience   string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// Option configures Manager behavior.
type Option func(*Manager) error

// WithIssuer overrides the issuer claim.
func WithIssuer(issuer string) Option {
	return func(m *Manager) error {
		issuer = strings.TrimSpace(issuer)
		if issuer == "" {
			return errors.New("token: issuer must not be empty")
		}
		m.issuer = issuer
		return nil
	}
}

// WithAudience overrides the audience claim.
func WithAudience(audience string) Option {
	return func(m *Manager) error {
		audience = strings.TrimSpace(audience)
		if audience == "" {
			return errors.New("token: audience must not be empty")
		}
		m.audience = audience
		return nil
	}
}

// WithAccessTTL configures access token lifetime.
func WithAccessTTL(ttl time.Duration) Option {
	return func(m *Manager) error {
		if ttl <= 0 {
			return errors.New("token: access ttl must be positive")
		}
		m.accessTTL = ttl
		return nil
	}
}

// WithRefreshTTL configures refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) Option {
	return func(m *Manager) error {
		if ttl <= 0 {
			return errors.New("token: refresh ttl must be positive")
		}
		m.refreshTTL = ttl
		return nil
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(m *Manager) error {
		if fn != nil {
			m.now = fn
		}
		return nil
	}
}

// NewManager constructs a Manager. The access TTL must be strictly
// shorter than the refresh TTL.
func NewManager(secret []byte, opts ...Option) (*Manager, error) {
	if len(secret) == 0 {
		return nil, errors.New("token: signing secret is required")
	}
	m := &Manager{
		secret:     secret,
		issuer:     defaultIssuer,
		audience:   defaultAudience,
		accessTTL:  defaultAccessTTL,
		refreshTTL: defaultRefreshTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		if err := opt(m); err != nil {
			return nil, err
		}
	}
	if m.accessTTL >= m.refreshTTL {
		return nil, fmt.Errorf("token: access ttl %s must be shorter than refresh ttl %s", m.accessTTL, m.refreshTTL)
	}
	return m, nil
}

// AccessTTL returns the configured access token lifetime.
func (m *Manager) AccessTTL() time.Duration { return m.accessTTL }

// RefreshTTL returns the configured refresh token lifetime.
func (m *Manager) RefreshTTL() time.Duration { return m.refreshTTL }

// IssueAccess signs a short-lived token embedding the full principal
// snapshot. Permissions are never embedded; they are derived from the
// role at verification time.
func (m *Manager) IssueAccess(p auth.Principal) (string, time.Time, error) {
	if strings.TrimSpace(p.ID) == "" {
		return "", time.Time{}, errors.New("token: principal id is required")
	}
	now := m.now().UTC()
	exp := now.Add(m.accessTTL)
	claims := accessClaims{
		Email:     p.Email,
		Name:      p.Name,
		Role:      string(p.Role),
		TokenType: typeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Audience:  jwt.ClaimStrings{m.audience},
			Subject:   p.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign access token: %w", err)
	}
	return signed, exp, nil
}

// IssueRefresh signs a long-lived token carrying only id and email. The
// minimal claim set keeps stale role data out of the refresh path.
func (m *Manager) IssueRefresh(p auth.Principal) (string, time.Time, error) {
	if strings.TrimSpace(p.ID) == "" {
		return "", time.Time{}, errors.New("token: principal id is required")
	}
	now := m.now().UTC()
	exp := now.Add(m.refreshTTL)
	claims := refreshClaims{
		Email:     p.Email,
		TokenType: typeRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Audience:  jwt.ClaimStrings{m.audience},
			Subject:   p.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign refresh token: %w", err)
	}
	return signed, exp, nil
}

// IssuePair issues both credentials for p.
func (m *Manager) IssuePair(p auth.Principal) (Pair, error) {
	access, accessExp, err := m.IssueAccess(p)
	if err != nil {
		return Pair{}, err
	}
	refresh, refreshExp, err := m.IssueRefresh(p)
	if err != nil {
		return Pair{}, err
	}
	return Pair{
		Access:           access,
		Refresh:          refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// VerifyAccess validates signature, issuer, audience and expiry, and
// returns the embedded principal snapshot. Failures are distinct: an
// expired token is not a malformed one.
func (m *Manager) VerifyAccess(raw string) (auth.Principal, error) {
	var claims accessClaims
	if err := m.parse(raw, &claims); err != nil {
		return auth.Principal{}, err
	}
	if claims.TokenType != typeAccess {
		return auth.Principal{}, ErrWrongType
	}
	return auth.Principal{
		ID:    claims.Subject,
		Email: claims.Email,
		Name:  claims.Name,
		Role:  auth.Role(claims.Role),
	}, nil
}

// VerifyRefresh validates a refresh token and returns its identity subset.
func (m *Manager) VerifyRefresh(raw string) (RefreshClaims, error) {
	var claims refreshClaims
	if err := m.parse(raw, &claims); err != nil {
		return RefreshClaims{}, err
	}
	if claims.TokenType != typeRefresh {
		return RefreshClaims{}, ErrWrongType
	}
	return RefreshClaims{ID: claims.Subject, Email: claims.Email}, nil
}

func (m *Manager) parse(raw string, claims jwt.Claims) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ErrMalformed
	}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrMalformed
		}
		return m.secret, nil
	},
		jwt.WithIssuer(m.issuer),
		jwt.WithAudience(m.audience),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(func() time.Time { return m.now().UTC() }),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return ErrExpired
		case errors.Is(err, jwt.ErrTokenInvalidIssuer):
			return ErrWrongIssuer
		case errors.Is(err, jwt.ErrTokenInvalidAudience):
			return ErrWrongAudience
		default:
			return ErrMalformed
		}
	}
	return nil
}

// UnverifiedClaims is the claim subset visible without signature
// verification. Never an authorization basis; expiry pre-checks only.
type UnverifiedClaims struct {
	Subject   string
	Email     string
	Role      string
	TokenType string
	ExpiresAt time.Time
}

// DecodeUnverified exposes claims without asserting trust. Returns nil for
// tokens that do not even parse.
func (m *Manager) DecodeUnverified(raw string) *UnverifiedClaims {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	var claims accessClaims
	if _, _, err := jwt.NewParser().ParseUnverified(raw, &claims); err != nil {
		return nil
	}
	out := &UnverifiedClaims{
		Subject:   claims.Subject,
		Email:     claims.Email,
		Role:      claims.Role,
		TokenType: claims.TokenType,
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out
}

// ExpiryAt returns the unverified expiry timestamp of raw, if it decodes
// and carries one.
func (m *Manager) ExpiryAt(raw string) (time.Time, bool) {
	claims := m.DecodeUnverified(raw)
	if claims == nil || claims.ExpiresAt.IsZero() {
		return time.Time{}, false
	}
	return claims.ExpiresAt, true
}

// IsExpired reports whether raw is past its unverified expiry. Undecodable
// tokens and tokens without an expiry count as expired.
func (m *Manager) IsExpired(raw string) bool {
	exp, ok := m.ExpiryAt(raw)
	if !ok {
		return true
	}
	return m.now().UTC().After(exp)
}
