package core

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

var testNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

type stubTransport struct {
	mu       sync.Mutex
	body     string
	err      error
	requests []SiteVerifyRequest
}

func (t *stubTransport) Kind() string { return "stub" }

func (t *stubTransport) Send(_ context.Context, req SiteVerifyRequest) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.requests = append(t.requests, req)
	if t.err != nil {
		return nil, t.err
	}
	return []byte(t.body), nil
}

func (t *stubTransport) calls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.requests)
}

func (t *stubTransport) lastRequest() SiteVerifyRequest {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.requests) == 0 {
		return SiteVerifyRequest{}
	}
	return t.requests[len(t.requests)-1]
}

type memoryRecorder struct {
	mu      sync.Mutex
	err     error
	records []VerificationRecord
}

func (r *memoryRecorder) RecordVerification(_ context.Context, record VerificationRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, record)
	return r.err
}

type memoryResultCache struct {
	mu      sync.Mutex
	err     error
	entries map[string]Result
	keys    []string
}

func (c *memoryResultCache) GetOrVerify(
	ctx context.Context,
	key string,
	verify func(ctx context.Context) (Result, error),
) (Result, error) {
	c.mu.Lock()
	c.keys = append(c.keys, key)
	if c.err != nil {
		c.mu.Unlock()
		return Result{}, c.err
	}
	if c.entries == nil {
		c.entries = map[string]Result{}
	}
	if cached, ok := c.entries[key]; ok {
		c.mu.Unlock()
		return cached, nil
	}
	c.mu.Unlock()

	result, err := verify(ctx)
	if err != nil {
		return Result{}, err
	}
	c.mu.Lock()
	c.entries[key] = result
	c.mu.Unlock()
	return result, nil
}

type stubSecretResolver struct {
	values map[string]string
}

func (r stubSecretResolver) ResolveSecret(_ context.Context, value string) (string, error) {
	resolved, ok := r.values[value]
	if !ok {
		return "", fmt.Errorf("stub secret resolver: unknown secret reference %q", value)
	}
	return resolved, nil
}

type stubLogger struct{}

func (stubLogger) Trace(string, ...any) {}
func (stubLogger) Debug(string, ...any) {}
func (stubLogger) Info(string, ...any)  {}
func (stubLogger) Warn(string, ...any)  {}
func (stubLogger) Error(string, ...any) {}
func (stubLogger) Fatal(string, ...any) {}
func (s stubLogger) WithContext(context.Context) Logger {
	return s
}

type stubLoggerProvider struct {
	logger Logger
}

func (s stubLoggerProvider) GetLogger(string) Logger {
	return s.logger
}

func newTestVerifier(t *testing.T, transport Transport, opts ...Option) *Verifier {
	t.Helper()
	base := []Option{
		WithTransport(transport),
		WithClock(func() time.Time { return testNow }),
		WithLogger(stubLogger{}),
		WithLoggerProvider(stubLoggerProvider{logger: stubLogger{}}),
	}
	verifier, err := NewVerifier(Config{Secret: "test-secret"}, append(base, opts...)...)
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	return verifier
}

func floatPtr(value float64) *float64 {
	return &value
}

func stringPtr(value string) *string {
	return &value
}
