package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/AaronLay10/watermon/internal/access"
)

const (
	// sessionCookie carries the session token for browser clients.
	sessionCookie = "watermon_session"
	// minSecretLen is the shortest accepted signing secret.
	minSecretLen = 32
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
	ErrShortSecret        = fmt.Errorf("secret must be at least %d characters", minSecretLen)
)

// Account is one login: a bcrypt hash and the principal it yields.
type Account struct {
	Username     string
	PasswordHash string
	Principal    access.Principal
}

// sessionClaims is the JWT payload.
type sessionClaims struct {
	Role       access.Role `json:"role"`
	MechanicID string      `json:"mechanic_id,omitempty"`
	Name       string      `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// Authenticator checks credentials and issues session tokens. With no
// accounts configured authentication is disabled and every caller is
// treated as admin.
type Authenticator struct {
	accounts map[string]Account
	secret   []byte
	ttl      time.Duration
	now      func() time.Time
}

// NewAuthenticator creates an authenticator. The secret signs session
// tokens and must be at least 32 characters.
func NewAuthenticator(accounts []Account, secret string, ttl time.Duration) (*Authenticator, error) {
	if len(accounts) > 0 && len(secret) < minSecretLen {
		return nil, ErrShortSecret
	}
	a := &Authenticator{
		accounts: make(map[string]Account, len(accounts)),
		secret:   []byte(secret),
		ttl:      ttl,
		now:      time.Now,
	}
	for _, acc := range accounts {
		if !acc.Principal.Valid() {
			return nil, fmt.Errorf("account %s: invalid principal", acc.Username)
		}
		if acc.PasswordHash == "" {
			continue
		}
		a.accounts[acc.Username] = acc
	}
	return a, nil
}

// HashPassword returns a bcrypt hash suitable for the site file.
func HashPassword(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Enabled reports whether any account is configured.
func (a *Authenticator) Enabled() bool {
	return a != nil && len(a.accounts) > 0
}

// TTL returns the session lifetime.
func (a *Authenticator) TTL() time.Duration {
	return a.ttl
}

// Check verifies a username and password.
func (a *Authenticator) Check(username, password string) (access.Principal, error) {
	acc, ok := a.accounts[username]
	if !ok {
		return access.Principal{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte(password)); err != nil {
		return access.Principal{}, ErrInvalidCredentials
	}
	return acc.Principal, nil
}

// Issue signs a session token for p.
func (a *Authenticator) Issue(p access.Principal) (string, time.Time, error) {
	now := a.now()
	exp := now.Add(a.ttl)
	subject := p.MechanicID
	if p.IsAdmin() {
		subject = "admin"
	}
	claims := sessionClaims{
		Role:       p.Role,
		MechanicID: p.MechanicID,
		Name:       p.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := token.SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return s, exp, nil
}

// Verify parses a session token.
func (a *Authenticator) Verify(tokenString string) (access.Principal, error) {
	if tokenString == "" {
		return access.Principal{}, ErrInvalidToken
	}
	var claims sessionClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(a.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !token.Valid {
		return access.Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	p := access.Principal{Role: claims.Role, MechanicID: claims.MechanicID, Name: claims.Name}
	if !p.Valid() {
		return access.Principal{}, ErrInvalidToken
	}
	return p, nil
}

// Authenticate resolves the caller from a bearer token, the session
// cookie, or basic auth, in that order.
func (a *Authenticator) Authenticate(r *http.Request) (access.Principal, error) {
	if !a.Enabled() {
		return access.Admin("Administrator"), nil
	}
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return a.Verify(strings.TrimPrefix(h, "Bearer "))
	}
	if c, err := r.Cookie(sessionCookie); err == nil {
		return a.Verify(c.Value)
	}
	if user, pass, ok := r.BasicAuth(); ok {
		return a.Check(user, pass)
	}
	return access.Principal{}, ErrInvalidCredentials
}

type principalKey struct{}

// PrincipalFrom returns the caller attached by the auth middleware.
func PrincipalFrom(ctx context.Context) (access.Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(access.Principal)
	return p, ok
}

// requireAuth returns 401 Unauthorized with WWW-Authenticate header.
func (s *Server) requireAuth(w http.ResponseWriter) {
	s.metrics.AuthFailed()
	w.Header().Set("WWW-Authenticate", `Basic realm="Water Monitoring"`)
	writeError(w, http.StatusUnauthorized, "unauthorized")
}

// RequireAny wraps a handler requiring any authenticated principal.
func (s *Server) RequireAny(handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := s.auth.Authenticate(r)
		if err != nil {
			s.requireAuth(w)
			return
		}
		handler(w, r.WithContext(context.WithValue(r.Context(), principalKey{}, p)))
	}
}

// RequireAdmin wraps a handler requiring the admin role.
func (s *Server) RequireAdmin(handler http.HandlerFunc) http.HandlerFunc {
	return s.RequireAny(func(w http.ResponseWriter, r *http.Request) {
		p, _ := PrincipalFrom(r.Context())
		if !p.IsAdmin() {
			writeError(w, http.StatusForbidden, "admin only")
			return
		}
		handler(w, r)
	})
}
