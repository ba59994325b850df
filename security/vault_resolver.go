package security

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/goliatone/go-recaptcha/core"
	vault "github.com/hashicorp/vault/api"
)

const (
	DefaultVaultMount = "secret"
	DefaultVaultField = "value"
)

// KVReader reads one KV v2 secret.
type KVReader interface {
	Get(ctx context.Context, path string) (map[string]any, error)
}

type vaultKVReader struct {
	kv *vault.KVv2
}

func (r vaultKVReader) Get(ctx context.Context, path string) (map[string]any, error) {
	secret, err := r.kv.Get(ctx, path)
	if err != nil {
		return nil, err
	}
	if secret == nil {
		return nil, fmt.Errorf("security: vault secret %s not found", path)
	}
	return secret.Data, nil
}

func NewVaultKVReader(client *vault.Client, mount string) (KVReader, error) {
	if client == nil {
		return nil, fmt.Errorf("security: vault client is required")
	}
	mount = strings.Trim(strings.TrimSpace(mount), "/")
	if mount == "" {
		mount = DefaultVaultMount
	}
	return vaultKVReader{kv: client.KVv2(mount)}, nil
}

// NewVaultKVReaderFromEnv builds a reader from VAULT_ADDR, VAULT_TOKEN and
// VAULT_PATH (the KV mount, default "secret").
func NewVaultKVReaderFromEnv() (KVReader, error) {
	addr := strings.TrimSpace(os.Getenv("VAULT_ADDR"))
	token := strings.TrimSpace(os.Getenv("VAULT_TOKEN"))
	if addr == "" || token == "" {
		return nil, fmt.Errorf("security: vault requires VAULT_ADDR and VAULT_TOKEN")
	}
	client, err := vault.NewClient(&vault.Config{Address: addr})
	if err != nil {
		return nil, fmt.Errorf("security: vault client init: %w", err)
	}
	client.SetToken(token)
	return NewVaultKVReader(client, os.Getenv("VAULT_PATH"))
}

// VaultKVResolver resolves "vault:<path>" and "vault:<path>#<field>"
// references against a KV v2 mount. The field defaults to "value".
type VaultKVResolver struct {
	Reader KVReader
}

func NewVaultKVResolver(reader KVReader) *VaultKVResolver {
	return &VaultKVResolver{Reader: reader}
}

func (r *VaultKVResolver) ResolveSecret(ctx context.Context, value string) (string, error) {
	trimmed := strings.TrimSpace(value)
	if !strings.HasPrefix(trimmed, VaultReferencePrefix) {
		return value, nil
	}
	if r == nil || r.Reader == nil {
		return "", fmt.Errorf("security: vault reader is required")
	}
	path, field := parseVaultReference(strings.TrimPrefix(trimmed, VaultReferencePrefix))
	if path == "" {
		return "", fmt.Errorf("security: vault secret reference requires a path")
	}
	data, err := r.Reader.Get(ctx, path)
	if err != nil {
		return "", fmt.Errorf("security: vault read %s: %w", path, err)
	}
	resolved, ok := data[field].(string)
	if !ok || strings.TrimSpace(resolved) == "" {
		return "", fmt.Errorf("security: no %q field found in vault secret %s", field, path)
	}
	return resolved, nil
}

func parseVaultReference(reference string) (string, string) {
	path, field, found := strings.Cut(strings.TrimSpace(reference), "#")
	path = strings.Trim(strings.TrimSpace(path), "/")
	field = strings.TrimSpace(field)
	if !found || field == "" {
		field = DefaultVaultField
	}
	return path, field
}

var _ core.SecretResolver = (*VaultKVResolver)(nil)
