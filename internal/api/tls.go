package api

import (
	"crypto/tls"
	"fmt"
	"os"
)

// TLSConfig holds TLS certificate paths loaded from environment variables.
type TLSConfig struct {
	CertFile string
	KeyFile  string
}

// TLSFromEnv reads WATERMON_TLS_CERT and WATERMON_TLS_KEY. It returns nil
// unless both are set.
func TLSFromEnv() *TLSConfig {
	certFile := os.Getenv("WATERMON_TLS_CERT")
	keyFile := os.Getenv("WATERMON_TLS_KEY")
	if certFile == "" || keyFile == "" {
		return nil
	}
	return &TLSConfig{CertFile: certFile, KeyFile: keyFile}
}

// Enabled returns true if TLS is configured.
func (c *TLSConfig) Enabled() bool {
	return c != nil && c.CertFile != "" && c.KeyFile != ""
}

// Load loads a tls.Config from the cert and key files.
func (c *TLSConfig) Load() (*tls.Config, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("tls not configured")
	}

	cert, err := tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load TLS certificate: %w", err)
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}
