package config

import (
	"fmt"
	"os"
	"strings"
)

// Secret environment variables. Each may instead name a file through the
// same variable with a _FILE suffix, which wins when both are set.
const (
	SecretMQTTPassword  = "WATERMON_MQTT_PASSWORD"
	SecretAdminPassword = "WATERMON_ADMIN_PASS"
	SecretJWT           = "WATERMON_JWT_SECRET"
	SecretDBPassword    = "PGPASSWORD"
)

// Secrets holds the credentials the dashboard reads at startup. Empty
// fields mean the secret is not configured.
type Secrets struct {
	MQTTPassword  string
	AdminPassword string
	JWTSecret     string
	DBPassword    string
}

// LoadSecrets resolves every dashboard secret.
func LoadSecrets() (Secrets, error) {
	var s Secrets
	for _, f := range []struct {
		env string
		dst *string
	}{
		{SecretMQTTPassword, &s.MQTTPassword},
		{SecretAdminPassword, &s.AdminPassword},
		{SecretJWT, &s.JWTSecret},
		{SecretDBPassword, &s.DBPassword},
	} {
		v, err := ResolveSecret(f.env)
		if err != nil {
			return Secrets{}, err
		}
		*f.dst = v
	}
	return s, nil
}

// ResolveSecret returns the secret named by envName, read from the file
// in envName_FILE when that is set. Surrounding whitespace is trimmed.
func ResolveSecret(envName string) (string, error) {
	fileEnv := envName + "_FILE"
	if path := os.Getenv(fileEnv); path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("failed to read secret from %s: %w", fileEnv, err)
		}
		return strings.TrimSpace(string(b)), nil
	}
	return strings.TrimSpace(os.Getenv(envName)), nil
}
