// Package middleware guards net/http handlers with token verification.
package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-recaptcha/core"
)

const (
	HeaderToken       = "X-Recaptcha-Token"
	FieldResponse     = "g-recaptcha-response"
	FieldToken        = "token"
	defaultTimeout    = 6 * time.Second
	defaultBodyLimit  = 1 << 20
	jsonContentPrefix = "application/json"
)

type TokenChecker interface {
	Verify(ctx context.Context, token string, remoteIP string, constraints core.Constraints) core.Result
}

type FailureHandler func(w http.ResponseWriter, r *http.Request, result core.Result)

type TokenExtractor func(r *http.Request) string

type RemoteIPResolver func(r *http.Request) string

type config struct {
	failureHandler FailureHandler
	extractToken   TokenExtractor
	remoteIP       RemoteIPResolver
	timeout        time.Duration
}

type Option func(*config)

func WithFailureHandler(handler FailureHandler) Option {
	return func(cfg *config) {
		if handler != nil {
			cfg.failureHandler = handler
		}
	}
}

func WithTokenExtractor(extractor TokenExtractor) Option {
	return func(cfg *config) {
		if extractor != nil {
			cfg.extractToken = extractor
		}
	}
}

// WithRemoteIP replaces the default RemoteAddr based resolver, for example to
// trust a proxy header. Return "" to omit the remote IP.
func WithRemoteIP(resolver RemoteIPResolver) Option {
	return func(cfg *config) {
		if resolver != nil {
			cfg.remoteIP = resolver
		}
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(cfg *config) {
		if timeout > 0 {
			cfg.timeout = timeout
		}
	}
}

type resultContextKey struct{}

// ResultFromContext returns the verification result stored for the request
// by Verify.
func ResultFromContext(ctx context.Context) (core.Result, bool) {
	if ctx == nil {
		return core.Result{}, false
	}
	result, ok := ctx.Value(resultContextKey{}).(core.Result)
	return result, ok
}

// Verify checks the request token against constraints and calls next only for
// valid results. A missing token is verified too, so it reaches metrics and
// the audit log as missing-input-response.
func Verify(checker TokenChecker, constraints core.Constraints, opts ...Option) func(http.Handler) http.Handler {
	cfg := config{
		failureHandler: JSONFailureHandler(http.StatusForbidden),
		extractToken:   ExtractToken,
		remoteIP:       RemoteIP,
		timeout:        defaultTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if checker == nil {
				cfg.failureHandler(w, r, core.TransportFailureResult(core.ErrorConnectionFailed))
				return
			}
			ctx, cancel := context.WithTimeout(r.Context(), cfg.timeout)
			result := checker.Verify(ctx, cfg.extractToken(r), cfg.remoteIP(r), constraints)
			cancel()

			if result.Invalid() {
				cfg.failureHandler(w, r, result)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), resultContextKey{}, result)))
		})
	}
}

// ForAction is Verify with an action constraint.
func ForAction(checker TokenChecker, action string, opts ...Option) func(http.Handler) http.Handler {
	return Verify(checker, core.NewConstraints().WithAction(action), opts...)
}

type failureBody struct {
	Error failureEnvelope `json:"error"`
}

type failureEnvelope struct {
	TextCode   string   `json:"text_code"`
	Message    string   `json:"message"`
	ErrorCodes []string `json:"error_codes"`
}

// JSONFailureHandler writes the verification failure envelope with status.
func JSONFailureHandler(status int) FailureHandler {
	return func(w http.ResponseWriter, _ *http.Request, result core.Result) {
		verificationErr := &core.VerificationError{Result: result}
		serviceErr := verificationErr.ToServiceError()
		codes := result.Errors()
		if codes == nil {
			codes = []string{}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(failureBody{Error: failureEnvelope{
			TextCode:   serviceErr.TextCode,
			Message:    verificationErr.Error(),
			ErrorCodes: codes,
		}})
	}
}

// ExtractToken reads the token from the X-Recaptcha-Token header, then the
// g-recaptcha-response or token form fields, then a JSON body. JSON bodies are
// restored for the next handler.
func ExtractToken(r *http.Request) string {
	if r == nil {
		return ""
	}
	if token := strings.TrimSpace(r.Header.Get(HeaderToken)); token != "" {
		return token
	}
	if strings.HasPrefix(strings.ToLower(r.Header.Get("Content-Type")), jsonContentPrefix) {
		return tokenFromJSON(r)
	}
	if err := r.ParseForm(); err == nil {
		if token := strings.TrimSpace(r.FormValue(FieldResponse)); token != "" {
			return token
		}
		if token := strings.TrimSpace(r.FormValue(FieldToken)); token != "" {
			return token
		}
	}
	return ""
}

func tokenFromJSON(r *http.Request) string {
	if r.Body == nil {
		return ""
	}
	raw, err := io.ReadAll(io.LimitReader(r.Body, defaultBodyLimit))
	_ = r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(raw))
	if err != nil || len(raw) == 0 {
		return ""
	}
	payload := map[string]any{}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return ""
	}
	for _, key := range []string{FieldResponse, FieldToken} {
		if token, ok := payload[key].(string); ok && strings.TrimSpace(token) != "" {
			return strings.TrimSpace(token)
		}
	}
	return ""
}

// RemoteIP returns the host part of r.RemoteAddr.
func RemoteIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
