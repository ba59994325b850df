package core

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

// SiteVerifyRequest is the outbound verification payload.
type SiteVerifyRequest struct {
	URL      string
	Secret   string
	Response string
	RemoteIP string
	Version  string
}

// Encode returns the application/x-www-form-urlencoded body. Empty values are
// omitted.
func (r SiteVerifyRequest) Encode() string {
	form := url.Values{}
	for key, value := range map[string]string{
		"secret":   r.Secret,
		"response": r.Response,
		"remoteip": r.RemoteIP,
		"version":  r.Version,
	} {
		if strings.TrimSpace(value) == "" {
			continue
		}
		form.Set(key, value)
	}
	return form.Encode()
}

// String never includes the secret or the token.
func (r SiteVerifyRequest) String() string {
	return fmt.Sprintf(
		"siteverify url=%s remoteip=%s version=%s secret=%s response=%s",
		r.URL,
		r.RemoteIP,
		r.Version,
		RedactedValue,
		RedactedValue,
	)
}

// Transport sends a verification request and returns the raw response body.
// Failures should be go-errors envelopes whose TextCode is one of
// ErrorConnectionFailed or ErrorBadResponse.
type Transport interface {
	Kind() string
	Send(ctx context.Context, req SiteVerifyRequest) ([]byte, error)
}

type TransportFunc func(ctx context.Context, req SiteVerifyRequest) ([]byte, error)

func (TransportFunc) Kind() string { return "func" }

func (f TransportFunc) Send(ctx context.Context, req SiteVerifyRequest) ([]byte, error) {
	return f(ctx, req)
}

// TransportResolver builds the transport named by Config.Transport.
type TransportResolver interface {
	Build(kind string, config map[string]any) (Transport, error)
}

// SecretResolver turns the configured secret value (plain, sealed or a
// reference) into the shared secret sent to the verification endpoint.
type SecretResolver interface {
	ResolveSecret(ctx context.Context, value string) (string, error)
}

type SecretResolverFunc func(ctx context.Context, value string) (string, error)

func (f SecretResolverFunc) ResolveSecret(ctx context.Context, value string) (string, error) {
	return f(ctx, value)
}

// ResultCache memoises parsed responses under a token and remote IP digest.
// A verify func error must not be stored.
type ResultCache interface {
	GetOrVerify(
		ctx context.Context,
		key string,
		verify func(ctx context.Context) (Result, error),
	) (Result, error)
}

// VerificationRecord is one audited verification.
type VerificationRecord struct {
	ID          string
	Transport   string
	RemoteIP    string
	Valid       bool
	Success     bool
	ErrorCodes  []string
	Hostname    string
	Action      string
	Score       *float64
	ChallengeTS string
	Constraints map[string]any
	DurationMS  int64
	CreatedAt   time.Time
}

// VerificationRecorder persists verification outcomes. Recorder failures are
// logged and never change the verification result.
type VerificationRecorder interface {
	RecordVerification(ctx context.Context, record VerificationRecord) error
}

type VerificationFilter struct {
	RemoteIP  string
	Hostname  string
	Action    string
	Valid     *bool
	ErrorCode string
	From      *time.Time
	To        *time.Time
	Page      int
	PerPage   int
}

type VerificationPage struct {
	Items   []VerificationRecord
	Page    int
	PerPage int
	Total   int
	HasNext bool
}

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger
