package secrets

import (
	"context"
	"errors"
	"fmt"
	"time"

	vault "github.com/hashicorp/vault/api"

	"github.com/banking/refdata-service/internal/config"
)

var ErrSecretNotFound = errors.New("secret not found")

// Secret keys expected at the Vault path:
//
//	{
//	  "database_password": "...",
//	  "redis_password": "...",
//	  "audit_hmac_secret": "...",
//	  "jwt_public_key_pem": "-----BEGIN PUBLIC KEY-----..."
//	}
const (
	KeyDatabasePassword = "database_password"
	KeyRedisPassword    = "redis_password"
	KeyAuditHMACSecret  = "audit_hmac_secret"
	KeyJWTPublicKey     = "jwt_public_key_pem"
)

// VaultSource reads service secrets from a HashiCorp Vault KV path
type VaultSource struct {
	client *vault.Client
	path   string
}

// NewVaultSource creates a new Vault secret source
func NewVaultSource(cfg config.VaultConfig) (*VaultSource, error) {
	vc := vault.DefaultConfig()
	vc.Address = cfg.Address
	vc.Timeout = cfg.Timeout
	if vc.Timeout == 0 {
		vc.Timeout = 10 * time.Second
	}

	client, err := vault.NewClient(vc)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}

	if cfg.Token != "" {
		client.SetToken(cfg.Token)
	}

	return &VaultSource{
		client: client,
		path:   cfg.SecretPath,
	}, nil
}

// Get returns a single string secret
func (v *VaultSource) Get(ctx context.Context, key string) (string, error) {
	data, err := v.readPath(ctx)
	if err != nil {
		return "", err
	}
	return stringValue(data, key)
}

// Apply overlays the secrets found in Vault onto cfg. Keys missing from Vault
// leave the existing configuration untouched.
func (v *VaultSource) Apply(ctx context.Context, cfg *config.Config) error {
	data, err := v.readPath(ctx)
	if err != nil {
		return err
	}

	targets := map[string]*string{
		KeyDatabasePassword: &cfg.Database.Password,
		KeyRedisPassword:    &cfg.Redis.Password,
		KeyAuditHMACSecret:  &cfg.Audit.HMACSecret,
		KeyJWTPublicKey:     &cfg.Auth.JWTPublicKeyPEM,
	}
	for key, dst := range targets {
		val, err := stringValue(data, key)
		if errors.Is(err, ErrSecretNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		*dst = val
	}

	if cfg.Audit.HMACSecret == "" {
		return fmt.Errorf("audit HMAC secret not configured in env or vault")
	}
	if len(cfg.Audit.HMACSecret) < 32 {
		return fmt.Errorf("audit HMAC secret must be at least 32 characters for security")
	}
	return nil
}

func stringValue(data map[string]interface{}, key string) (string, error) {
	raw, ok := data[key]
	if !ok || raw == nil {
		return "", fmt.Errorf("%w: %s", ErrSecretNotFound, key)
	}
	s, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("secret %s is not a string (%T)", key, raw)
	}
	return s, nil
}

func (v *VaultSource) readPath(ctx context.Context) (map[string]interface{}, error) {
	secret, err := v.client.Logical().ReadWithContext(ctx, v.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read from vault: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("%w: no data at path %s", ErrSecretNotFound, v.path)
	}

	// KV v2 nests the payload under data.data next to metadata
	if data, ok := secret.Data["data"].(map[string]interface{}); ok {
		if _, hasMeta := secret.Data["metadata"]; hasMeta {
			return data, nil
		}
	}

	return secret.Data, nil
}
