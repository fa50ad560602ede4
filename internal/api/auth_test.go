package api

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/AaronLay10/watermon/internal/access"
)

func TestAuthDisabledWithoutAccounts(t *testing.T) {
	a, err := NewAuthenticator(nil, "", time.Hour)
	if err != nil {
		t.Fatalf("NewAuthenticator: %v", err)
	}
	if a.Enabled() {
		t.Error("auth should be disabled when no accounts are configured")
	}

	p, err := a.Authenticate(httptest.NewRequest("GET", "/", nil))
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if !p.IsAdmin() {
		t.Errorf("expected admin principal, got %+v", p)
	}
}

func TestAccountsWithoutHashAreSkipped(t *testing.T) {
	a, err := NewAuthenticator([]Account{
		{Username: "M001", Principal: access.Mechanic("M001", "John Smith")},
	}, testSecret, time.Hour)
	if err != nil {
		t.Fatalf("NewAuthenticator: %v", err)
	}
	if a.Enabled() {
		t.Error("auth should be disabled when no account has a password")
	}
}

func TestNewAuthenticatorRejects(t *testing.T) {
	accounts := testAccounts(t)

	if _, err := NewAuthenticator(accounts, "short", time.Hour); !errors.Is(err, ErrShortSecret) {
		t.Errorf("expected ErrShortSecret, got %v", err)
	}

	bad := []Account{{Username: "x", PasswordHash: "h", Principal: access.Principal{Role: "janitor"}}}
	if _, err := NewAuthenticator(bad, testSecret, time.Hour); err == nil {
		t.Error("expected error for invalid principal")
	}
}

func TestCheck(t *testing.T) {
	a, err := NewAuthenticator(testAccounts(t), testSecret, time.Hour)
	if err != nil {
		t.Fatalf("NewAuthenticator: %v", err)
	}

	p, err := a.Check("M001", "m1pass")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if p.MechanicID != "M001" || p.Role != access.RoleMechanic {
		t.Errorf("unexpected principal %+v", p)
	}

	if _, err := a.Check("M001", "m2pass"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials for wrong password, got %v", err)
	}
	if _, err := a.Check("ghost", "m1pass"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials for unknown user, got %v", err)
	}
}

func TestHashPassword(t *testing.T) {
	h, err := HashPassword("WaterMonitor2024!")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	a, err := NewAuthenticator([]Account{
		{Username: "admin", PasswordHash: h, Principal: access.Admin("Administrator")},
	}, testSecret, time.Hour)
	if err != nil {
		t.Fatalf("NewAuthenticator: %v", err)
	}
	if _, err := a.Check("admin", "WaterMonitor2024!"); err != nil {
		t.Errorf("Check: %v", err)
	}
}

func TestIssueAndVerify(t *testing.T) {
	a, err := NewAuthenticator(testAccounts(t), testSecret, time.Hour)
	if err != nil {
		t.Fatalf("NewAuthenticator: %v", err)
	}

	token, exp, err := a.Issue(access.Mechanic("M002", "Jane Doe"))
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if time.Until(exp) <= 0 || time.Until(exp) > time.Hour {
		t.Errorf("unexpected expiry %v", exp)
	}

	p, err := a.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if p.MechanicID != "M002" || p.Name != "Jane Doe" || p.Role != access.RoleMechanic {
		t.Errorf("unexpected principal %+v", p)
	}
}

func TestVerifyRejects(t *testing.T) {
	a, err := NewAuthenticator(testAccounts(t), testSecret, time.Hour)
	if err != nil {
		t.Fatalf("NewAuthenticator: %v", err)
	}
	token, _, err := a.Issue(access.Admin("Administrator"))
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	other, err := NewAuthenticator(testAccounts(t), strings.Repeat("x", 32), time.Hour)
	if err != nil {
		t.Fatalf("NewAuthenticator: %v", err)
	}
	if _, err := other.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken for foreign signature, got %v", err)
	}

	if _, err := a.Verify(""); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken for empty token, got %v", err)
	}
	if _, err := a.Verify(token + "x"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken for tampered token, got %v", err)
	}

	a.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if _, err := a.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken for expired token, got %v", err)
	}
}

func TestVerifyRejectsUnsignedToken(t *testing.T) {
	a, err := NewAuthenticator(testAccounts(t), testSecret, time.Hour)
	if err != nil {
		t.Fatalf("NewAuthenticator: %v", err)
	}
	claims := sessionClaims{
		Role: access.RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := a.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken for alg none, got %v", err)
	}
}

func TestAuthenticateSources(t *testing.T) {
	a, err := NewAuthenticator(testAccounts(t), testSecret, time.Hour)
	if err != nil {
		t.Fatalf("NewAuthenticator: %v", err)
	}
	token, _, err := a.Issue(access.Mechanic("M001", "John Smith"))
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	tests := []struct {
		name    string
		setup   func(*http.Request)
		want    string
		wantErr bool
	}{
		{"none", func(*http.Request) {}, "", true},
		{"bearer", func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }, "M001", false},
		{"cookie", func(r *http.Request) { r.AddCookie(&http.Cookie{Name: sessionCookie, Value: token}) }, "M001", false},
		{"basic", func(r *http.Request) { r.SetBasicAuth("M002", "m2pass") }, "M002", false},
		{"bad basic", func(r *http.Request) { r.SetBasicAuth("M002", "nope") }, "", true},
		{"bad bearer", func(r *http.Request) { r.Header.Set("Authorization", "Bearer junk") }, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			tt.setup(req)
			p, err := a.Authenticate(req)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error, got %+v", p)
				}
				return
			}
			if err != nil {
				t.Fatalf("Authenticate: %v", err)
			}
			if p.MechanicID != tt.want {
				t.Errorf("mechanic = %q, want %q", p.MechanicID, tt.want)
			}
		})
	}
}

func TestRequireAnyAttachesPrincipal(t *testing.T) {
	env := newTestEnv(t, testAccounts(t), nil)

	var got access.Principal
	handler := env.server.RequireAny(func(w http.ResponseWriter, r *http.Request) {
		got, _ = PrincipalFrom(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest("GET", "/test", nil)
	req.SetBasicAuth("M001", "m1pass")
	w := httptest.NewRecorder()
	handler(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if got.MechanicID != "M001" {
		t.Errorf("principal = %+v", got)
	}
}

func TestRequireAdmin(t *testing.T) {
	env := newTestEnv(t, testAccounts(t), nil)

	called := false
	handler := env.server.RequireAdmin(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest("GET", "/test", nil)
	req.SetBasicAuth("M001", "m1pass")
	w := httptest.NewRecorder()
	handler(w, req)
	if called || w.Code != http.StatusForbidden {
		t.Errorf("mechanic: called=%v status=%d, want false/403", called, w.Code)
	}

	req = httptest.NewRequest("GET", "/test", nil)
	req.SetBasicAuth("admin", "adminpass")
	w = httptest.NewRecorder()
	handler(w, req)
	if !called || w.Code != http.StatusOK {
		t.Errorf("admin: called=%v status=%d, want true/200", called, w.Code)
	}
}
