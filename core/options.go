package core

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-config/cfgx"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	opts "github.com/goliatone/go-options"
)

type ErrorMapper func(err error) *goerrors.Error

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type verifierBuilder struct {
	runtimeConfig     Config
	logger            Logger
	loggerProvider    LoggerProvider
	metricsRecorder   MetricsRecorder
	errorMapper       ErrorMapper
	configProvider    ConfigProvider
	optionsResolver   OptionsResolver
	transport         Transport
	transportResolver TransportResolver
	secretResolver    SecretResolver
	resultCache       ResultCache
	recorder          VerificationRecorder
	now               func() time.Time
}

type Option func(*verifierBuilder)

func WithLogger(logger Logger) Option {
	return func(b *verifierBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider LoggerProvider) Option {
	return func(b *verifierBuilder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(b *verifierBuilder) {
		b.metricsRecorder = recorder
	}
}

func WithErrorMapper(mapper ErrorMapper) Option {
	return func(b *verifierBuilder) {
		b.errorMapper = mapper
	}
}

func WithConfigProvider(provider ConfigProvider) Option {
	return func(b *verifierBuilder) {
		b.configProvider = provider
	}
}

func WithOptionsResolver(resolver OptionsResolver) Option {
	return func(b *verifierBuilder) {
		b.optionsResolver = resolver
	}
}

// WithTransport sets the transport directly; it takes precedence over
// WithTransportResolver.
func WithTransport(transport Transport) Option {
	return func(b *verifierBuilder) {
		b.transport = transport
	}
}

func WithTransportResolver(resolver TransportResolver) Option {
	return func(b *verifierBuilder) {
		b.transportResolver = resolver
	}
}

func WithSecretResolver(resolver SecretResolver) Option {
	return func(b *verifierBuilder) {
		b.secretResolver = resolver
	}
}

func WithResultCache(cache ResultCache) Option {
	return func(b *verifierBuilder) {
		b.resultCache = cache
	}
}

func WithVerificationRecorder(recorder VerificationRecorder) Option {
	return func(b *verifierBuilder) {
		b.recorder = recorder
	}
}

// WithClock overrides the clock used for challenge age checks.
func WithClock(now func() time.Time) Option {
	return func(b *verifierBuilder) {
		b.now = now
	}
}

func defaultVerifierBuilder(runtime Config) verifierBuilder {
	loggerProvider, logger := glog.Resolve("recaptcha", nil, nil)
	return verifierBuilder{
		runtimeConfig:   runtime,
		loggerProvider:  loggerProvider,
		logger:          logger,
		metricsRecorder: NopMetricsRecorder{},
		errorMapper:     defaultErrorMapper,
		configProvider:  NewCfgxConfigProvider(nil),
		optionsResolver: GoOptionsResolver{},
		now:             func() time.Time { return time.Now().UTC() },
	}
}

func defaultErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	return recaptchaErrorMapper(err)
}

type staticRawConfigLoader struct {
	Values map[string]any
}

func (l staticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

// NewStaticConfigLoader returns a loader serving a fixed raw config map.
func NewStaticConfigLoader(values map[string]any) RawConfigLoader {
	return staticRawConfigLoader{Values: values}
}

const DefaultEnvPrefix = "RECAPTCHA_"

// EnvConfigLoader reads RECAPTCHA_SECRET, RECAPTCHA_VERIFY_URL,
// RECAPTCHA_TRANSPORT, RECAPTCHA_TIMEOUT_SECONDS and RECAPTCHA_CLIENT_VERSION.
type EnvConfigLoader struct {
	Prefix string
	Lookup func(key string) (string, bool)
}

func (l EnvConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	prefix := l.Prefix
	if prefix == "" {
		prefix = DefaultEnvPrefix
	}
	lookup := l.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}

	raw := map[string]any{}
	for _, key := range []string{"secret", "verify_url", "transport", "client_version"} {
		if value, ok := lookup(prefix + strings.ToUpper(key)); ok && strings.TrimSpace(value) != "" {
			raw[key] = strings.TrimSpace(value)
		}
	}
	if value, ok := lookup(prefix + "TIMEOUT_SECONDS"); ok && strings.TrimSpace(value) != "" {
		seconds, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return nil, fmt.Errorf("core: %sTIMEOUT_SECONDS is invalid: %w", prefix, err)
		}
		raw["timeout_seconds"] = seconds
	}
	return raw, nil
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = staticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	defaultLayer := configToLayerMap(defaults, true)
	loadedLayer := configToLayerMap(loaded, false)
	runtimeLayer := configToLayerMap(runtime, false)

	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			defaultLayer,
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			loadedLayer,
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			runtimeLayer,
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.Secret) != "" {
		layer["secret"] = cfg.Secret
	}
	if includeZero || strings.TrimSpace(cfg.VerifyURL) != "" {
		layer["verify_url"] = strings.TrimSpace(cfg.VerifyURL)
	}
	if includeZero || strings.TrimSpace(cfg.Transport) != "" {
		layer["transport"] = strings.ToLower(strings.TrimSpace(cfg.Transport))
	}
	if includeZero || cfg.TimeoutSeconds > 0 {
		layer["timeout_seconds"] = cfg.TimeoutSeconds
	}
	if includeZero || strings.TrimSpace(cfg.ClientVersion) != "" {
		layer["client_version"] = strings.TrimSpace(cfg.ClientVersion)
	}
	return layer
}
