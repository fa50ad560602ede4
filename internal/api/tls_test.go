package api

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestTLSFromEnv(t *testing.T) {
	tests := []struct {
		name    string
		cert    string
		key     string
		enabled bool
	}{
		{"no env vars", "", "", false},
		{"only cert", "/path/to/cert.pem", "", false},
		{"only key", "", "/path/to/key.pem", false},
		{"both set", "/path/to/cert.pem", "/path/to/key.pem", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("WATERMON_TLS_CERT", tt.cert)
			t.Setenv("WATERMON_TLS_KEY", tt.key)

			cfg := TLSFromEnv()
			if cfg.Enabled() != tt.enabled {
				t.Fatalf("Enabled() = %v, want %v", cfg.Enabled(), tt.enabled)
			}
			if !tt.enabled {
				if cfg != nil {
					t.Error("TLSFromEnv should return nil when not fully configured")
				}
				return
			}
			if cfg.CertFile != tt.cert {
				t.Errorf("CertFile = %q, want %q", cfg.CertFile, tt.cert)
			}
			if cfg.KeyFile != tt.key {
				t.Errorf("KeyFile = %q, want %q", cfg.KeyFile, tt.key)
			}
		})
	}
}

func TestLoad_NotEnabled(t *testing.T) {
	var cfg *TLSConfig
	if _, err := cfg.Load(); err == nil {
		t.Error("Load should fail when TLS is not configured")
	}
}

func TestLoad_InvalidFiles(t *testing.T) {
	cfg := &TLSConfig{
		CertFile: "/nonexistent/cert.pem",
		KeyFile:  "/nonexistent/key.pem",
	}
	if _, err := cfg.Load(); err == nil {
		t.Error("Load should fail when cert files don't exist")
	}
}

func TestLoad_SelfSigned(t *testing.T) {
	certFile, keyFile := writeSelfSigned(t)

	c, err := (&TLSConfig{CertFile: certFile, KeyFile: keyFile}).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(c.Certificates) != 1 {
		t.Errorf("expected 1 certificate, got %d", len(c.Certificates))
	}
	if c.MinVersion != tls.VersionTLS12 {
		t.Errorf("MinVersion = %x, want TLS 1.2", c.MinVersion)
	}
}

func writeSelfSigned(t *testing.T) (string, string) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "localhost"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		DNSNames:     []string{"localhost"},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("create certificate: %v", err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatalf("marshal key: %v", err)
	}

	dir := t.TempDir()
	certFile := filepath.Join(dir, "cert.pem")
	keyFile := filepath.Join(dir, "key.pem")
	if err := os.WriteFile(certFile, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(keyFile, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0o600); err != nil {
		t.Fatal(err)
	}
	return certFile, keyFile
}
