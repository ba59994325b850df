package core

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

var errUncachedResponse = errors.New("core: response not cacheable")

// Verifier checks user-response tokens against the verification endpoint.
// It is immutable after construction and safe for concurrent use.
type Verifier struct {
	config          Config
	secret          string
	logger          Logger
	loggerProvider  LoggerProvider
	metricsRecorder MetricsRecorder
	errorMapper     ErrorMapper
	transport       Transport
	resultCache     ResultCache
	recorder        VerificationRecorder
	now             func() time.Time
}

type VerifierDependencies struct {
	Logger          Logger
	LoggerProvider  LoggerProvider
	MetricsRecorder MetricsRecorder
	ErrorMapper     ErrorMapper
	Transport       Transport
	ResultCache     ResultCache
	Recorder        VerificationRecorder
}

func NewVerifier(cfg Config, opts ...Option) (*Verifier, error) {
	builder := defaultVerifierBuilder(cfg)
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("recaptcha", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)

	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = defaultErrorMapper
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.now == nil {
		builder.now = func() time.Time { return time.Now().UTC() }
	}

	ctx := context.Background()
	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(ctx, defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	secret := strings.TrimSpace(finalConfig.Secret)
	if secret != "" && builder.secretResolver != nil {
		secret, err = builder.secretResolver.ResolveSecret(ctx, secret)
		if err != nil {
			return nil, mapBuildError(builder.errorMapper, err)
		}
		secret = strings.TrimSpace(secret)
	}
	if secret == "" {
		return nil, mapBuildError(builder.errorMapper, ErrSecretRequired)
	}

	transport := builder.transport
	if transport == nil && builder.transportResolver != nil {
		transport, err = builder.transportResolver.Build(finalConfig.Transport, finalConfig.TransportConfig())
		if err != nil {
			return nil, mapBuildError(builder.errorMapper, err)
		}
	}
	if transport == nil {
		return nil, mapBuildError(builder.errorMapper, ErrTransportRequired)
	}

	return &Verifier{
		config:          finalConfig,
		secret:          secret,
		logger:          logger,
		loggerProvider:  provider,
		metricsRecorder: builder.metricsRecorder,
		errorMapper:     builder.errorMapper,
		transport:       transport,
		resultCache:     builder.resultCache,
		recorder:        builder.recorder,
		now:             builder.now,
	}, nil
}

// Config returns the resolved configuration. The secret is the configured
// value, not the resolved one.
func (v *Verifier) Config() Config {
	if v == nil {
		return Config{}
	}
	return v.config
}

func (v *Verifier) Dependencies() VerifierDependencies {
	if v == nil {
		return VerifierDependencies{}
	}
	return VerifierDependencies{
		Logger:          v.logger,
		LoggerProvider:  v.loggerProvider,
		MetricsRecorder: v.metricsRecorder,
		ErrorMapper:     v.errorMapper,
		Transport:       v.transport,
		ResultCache:     v.resultCache,
		Recorder:        v.recorder,
	}
}

// Checker returns a new fluent checker bound to this verifier.
func (v *Verifier) Checker() *Checker {
	return &Checker{verifier: v}
}

// Verify checks token against the endpoint and evaluates the parsed response
// against constraints. Every failure is reported through the result.
func (v *Verifier) Verify(ctx context.Context, token string, remoteIP string, constraints Constraints) Result {
	if ctx == nil {
		ctx = context.Background()
	}
	if v == nil {
		return failureResult(ErrorConnectionFailed)
	}
	startedAt := time.Now()
	remoteIP = strings.TrimSpace(remoteIP)

	if strings.TrimSpace(token) == "" {
		result := failureResult(ErrorMissingInputResponse)
		result.Constraints = constraints
		v.finish(ctx, startedAt, remoteIP, result)
		return result
	}

	result := v.verifyRemote(ctx, token, remoteIP, constraints)
	v.finish(ctx, startedAt, remoteIP, result)
	return result
}

// VerifyOrFail is Verify returning a *VerificationError for invalid results.
func (v *Verifier) VerifyOrFail(ctx context.Context, token string, remoteIP string, constraints Constraints) (Result, error) {
	result := v.Verify(ctx, token, remoteIP, constraints)
	if result.Invalid() {
		return result, &VerificationError{Result: result}
	}
	return result, nil
}

// verifyRemote evaluates constraints on every call. Only parsed responses are
// cached, so transport and parse failures always reach the endpoint again.
func (v *Verifier) verifyRemote(ctx context.Context, token string, remoteIP string, constraints Constraints) Result {
	parsed, ok := v.fetchResponse(ctx, token, remoteIP)
	if !ok {
		parsed.Constraints = constraints
		return parsed
	}
	return Evaluate(parsed, constraints, v.now())
}

func (v *Verifier) fetchResponse(ctx context.Context, token string, remoteIP string) (Result, bool) {
	if v.resultCache == nil {
		return v.sendAndParse(ctx, token, remoteIP)
	}

	var failure *Result
	cached, err := v.resultCache.GetOrVerify(ctx, v.cacheKey(token, remoteIP), func(ctx context.Context) (Result, error) {
		parsed, ok := v.sendAndParse(ctx, token, remoteIP)
		if !ok {
			failure = &parsed
			return Result{}, errUncachedResponse
		}
		return parsed, nil
	})
	if failure != nil {
		return *failure, false
	}
	if err != nil {
		v.logError(ctx, "verify cache failed", map[string]any{
			"transport": v.transport.Kind(),
			"remote_ip": remoteIP,
			"error":     err.Error(),
		})
		return v.sendAndParse(ctx, token, remoteIP)
	}
	return cached, true
}

// sendAndParse reports false for transport failures and unusable bodies.
func (v *Verifier) sendAndParse(ctx context.Context, token string, remoteIP string) (Result, bool) {
	raw, err := v.transport.Send(ctx, SiteVerifyRequest{
		URL:      v.config.VerifyURL,
		Secret:   v.secret,
		Response: token,
		RemoteIP: remoteIP,
		Version:  v.config.ClientVersion,
	})
	if err != nil {
		v.logDebug(ctx, "verify transport failed", map[string]any{
			"transport": v.transport.Kind(),
			"remote_ip": remoteIP,
			"error":     err.Error(),
		})
		return TransportFailureResult(TransportFailureCode(err)), false
	}
	return parseResponse(raw)
}

func (v *Verifier) finish(ctx context.Context, startedAt time.Time, remoteIP string, result Result) {
	fields := map[string]any{
		"transport": v.transport.Kind(),
		"remote_ip": remoteIP,
		"hostname":  stringValue(result.Hostname),
		"action":    stringValue(result.Action),
	}
	v.observeVerification(ctx, startedAt, result, fields)

	if v.recorder == nil {
		return
	}
	record := VerificationRecord{
		Transport:   v.transport.Kind(),
		RemoteIP:    remoteIP,
		Valid:       result.Valid(),
		Success:     result.Success,
		ErrorCodes:  result.Errors(),
		Hostname:    stringValue(result.Hostname),
		Action:      stringValue(result.Action),
		ChallengeTS: stringValue(result.ChallengeTS),
		Constraints: result.Constraints.ToMap(),
		DurationMS:  time.Since(startedAt).Milliseconds(),
		CreatedAt:   v.now(),
	}
	if result.Score != nil {
		score := *result.Score
		record.Score = &score
	}
	if err := v.recorder.RecordVerification(ctx, record); err != nil {
		v.logError(ctx, "verify audit record failed", map[string]any{
			"transport": v.transport.Kind(),
			"remote_ip": remoteIP,
			"error":     err.Error(),
		})
	}
}

// cacheKey digests the request only. Constraints and the clock are applied
// after the cache so cached responses are still checked for age.
func (v *Verifier) cacheKey(token string, remoteIP string) string {
	sum := sha256.New()
	sum.Write([]byte(token))
	sum.Write([]byte{0})
	sum.Write([]byte(remoteIP))
	return "recaptcha:verify:" + hex.EncodeToString(sum.Sum(nil))
}
