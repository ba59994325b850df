package recaptcha

import (
	"github.com/goliatone/go-recaptcha/core"
	"github.com/goliatone/go-recaptcha/transport"
)

type Config = core.Config

type Option = core.Option

type Verifier = core.Verifier

type VerifierDependencies = core.VerifierDependencies

type Checker = core.Checker

type Result = core.Result

type Constraints = core.Constraints

type VerificationError = core.VerificationError

type Transport = core.Transport
type TransportFunc = core.TransportFunc
type SiteVerifyRequest = core.SiteVerifyRequest
type SecretResolver = core.SecretResolver
type ResultCache = core.ResultCache
type VerificationRecorder = core.VerificationRecorder
type VerificationRecord = core.VerificationRecord
type MetricsRecorder = core.MetricsRecorder

var (
	WithLogger               = core.WithLogger
	WithLoggerProvider       = core.WithLoggerProvider
	WithMetricsRecorder      = core.WithMetricsRecorder
	WithErrorMapper          = core.WithErrorMapper
	WithConfigProvider       = core.WithConfigProvider
	WithOptionsResolver      = core.WithOptionsResolver
	WithTransport            = core.WithTransport
	WithTransportResolver    = core.WithTransportResolver
	WithSecretResolver       = core.WithSecretResolver
	WithResultCache          = core.WithResultCache
	WithVerificationRecorder = core.WithVerificationRecorder
	WithClock                = core.WithClock
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func NewConstraints() Constraints {
	return core.NewConstraints()
}

// New builds a verifier that resolves Config.Transport against the default
// transport registry unless a transport or resolver option is given.
func New(cfg Config, opts ...Option) (*Verifier, error) {
	base := []Option{core.WithTransportResolver(transport.NewDefaultRegistry())}
	return core.NewVerifier(cfg, append(base, opts...)...)
}

// Make builds a verifier for secret with default settings.
func Make(secret string, opts ...Option) (*Verifier, error) {
	cfg := DefaultConfig()
	cfg.Secret = secret
	return New(cfg, opts...)
}

// ParseResponse decodes a raw siteverify body without evaluating constraints.
func ParseResponse(raw []byte) Result {
	return core.ParseResponse(raw)
}
