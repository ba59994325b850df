package security

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/goliatone/go-recaptcha/core"
)

const (
	EnvReferencePrefix   = "env:"
	VaultReferencePrefix = "vault:"
)

type Opener interface {
	Open(ctx context.Context, sealed string) (string, error)
}

// SealedSecretResolver opens sealed secrets and passes plain values through.
type SealedSecretResolver struct {
	Opener Opener
}

func NewSealedSecretResolver(opener Opener) *SealedSecretResolver {
	return &SealedSecretResolver{Opener: opener}
}

func (r *SealedSecretResolver) ResolveSecret(ctx context.Context, value string) (string, error) {
	if !IsSealed(value) {
		return value, nil
	}
	if r == nil || r.Opener == nil {
		return "", fmt.Errorf("security: sealed secret requires an opener")
	}
	return r.Opener.Open(ctx, value)
}

// EnvSecretResolver resolves "env:NAME" references.
type EnvSecretResolver struct {
	Lookup func(key string) (string, bool)
}

func (r EnvSecretResolver) ResolveSecret(_ context.Context, value string) (string, error) {
	trimmed := strings.TrimSpace(value)
	if !strings.HasPrefix(trimmed, EnvReferencePrefix) {
		return value, nil
	}
	name := strings.TrimSpace(strings.TrimPrefix(trimmed, EnvReferencePrefix))
	if name == "" {
		return "", fmt.Errorf("security: env secret reference requires a variable name")
	}
	lookup := r.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	resolved, ok := lookup(name)
	if !ok || strings.TrimSpace(resolved) == "" {
		return "", fmt.Errorf("security: env secret %s is not set", name)
	}
	return resolved, nil
}

// ChainSecretResolver dispatches on the reference prefix: "env:", "vault:",
// sealed envelopes, and plain values otherwise.
type ChainSecretResolver struct {
	Env    core.SecretResolver
	Vault  core.SecretResolver
	Sealed core.SecretResolver
}

func (r ChainSecretResolver) ResolveSecret(ctx context.Context, value string) (string, error) {
	trimmed := strings.TrimSpace(value)
	var resolver core.SecretResolver
	switch {
	case strings.HasPrefix(trimmed, EnvReferencePrefix):
		resolver = r.Env
		if resolver == nil {
			resolver = EnvSecretResolver{}
		}
	case strings.HasPrefix(trimmed, VaultReferencePrefix):
		resolver = r.Vault
		if resolver == nil {
			return "", fmt.Errorf("security: vault secret reference requires a vault resolver")
		}
	case IsSealed(trimmed):
		resolver = r.Sealed
		if resolver == nil {
			return "", fmt.Errorf("security: sealed secret requires an opener")
		}
	default:
		return value, nil
	}
	resolved, err := resolver.ResolveSecret(ctx, trimmed)
	if err != nil {
		return "", err
	}
	// an env or vault value may itself be sealed
	if IsSealed(resolved) && r.Sealed != nil && !IsSealed(trimmed) {
		return r.Sealed.ResolveSecret(ctx, resolved)
	}
	return resolved, nil
}

var (
	_ core.SecretResolver = (*SealedSecretResolver)(nil)
	_ core.SecretResolver = EnvSecretResolver{}
	_ core.SecretResolver = ChainSecretResolver{}
	_ Opener              = (*AppKeySealer)(nil)
)
