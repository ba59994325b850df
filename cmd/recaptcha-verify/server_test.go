package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-config/cfgx"
	glog "github.com/goliatone/go-logger/glog"
	recaptcha "github.com/goliatone/go-recaptcha"
	"github.com/goliatone/go-recaptcha/core"
	"github.com/goliatone/go-recaptcha/middleware"
)

type memoryLog struct {
	mu      sync.Mutex
	records []core.VerificationRecord
	filters []core.VerificationFilter
}

func (l *memoryLog) RecordVerification(_ context.Context, record core.VerificationRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	record.ID = "rec-" + time.Now().Format("150405.000000000")
	l.records = append(l.records, record)
	return nil
}

func (l *memoryLog) ListVerifications(_ context.Context, filter core.VerificationFilter) (core.VerificationPage, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.filters = append(l.filters, filter)
	items := append([]core.VerificationRecord(nil), l.records...)
	return core.VerificationPage{Items: items, Page: 1, PerPage: 25, Total: len(items)}, nil
}

func (l *memoryLog) PruneVerifications(context.Context, time.Time) (int64, error) {
	return 0, nil
}

// siteverify answers "good" tokens with a passing body for action "submit".
func siteverify(_ context.Context, req core.SiteVerifyRequest) ([]byte, error) {
	form, _ := url.ParseQuery(req.Encode())
	if form.Get("response") == "good" {
		return []byte(`{"success":true,"hostname":"example.com","action":"submit","score":0.9}`), nil
	}
	return []byte(`{"success":false,"error-codes":["invalid-input-response"]}`), nil
}

func newTestServer(t *testing.T, log *memoryLog, rateLimit int) http.Handler {
	t.Helper()
	opts := []recaptcha.Option{
		recaptcha.WithTransport(recaptcha.TransportFunc(siteverify)),
		recaptcha.WithLogger(glog.Nop()),
	}
	if log != nil {
		opts = append(opts, recaptcha.WithVerificationRecorder(log))
	}
	verifier, err := recaptcha.Make("test-secret", opts...)
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	facade, err := recaptcha.NewFacade(verifier)
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}
	srv := &server{
		facade:          facade,
		logger:          glog.Nop(),
		rateLimit:       rateLimit,
		rateWindow:      time.Minute,
		protectedAction: "submit",
	}
	return srv.routes()
}

func TestServer_Health(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestServer(t, nil, 0).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestServer_VerifyReportsResult(t *testing.T) {
	handler := newTestServer(t, nil, 0)

	cases := []struct {
		body  string
		valid bool
		code  string
	}{
		{body: `{"token":"good","constraints":{"hostname":"example.com"}}`, valid: true},
		{body: `{"token":"good","constraints":{"hostname":"other.example"}}`, code: core.ErrorHostnameMismatch},
		{body: `{"token":"bad"}`, code: core.RemoteErrorInvalidInputResponse},
		{body: `{}`, code: core.ErrorMissingInputResponse},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/verify", strings.NewReader(tc.body)))
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", tc.body, rec.Code)
		}
		var payload struct {
			Valid  bool        `json:"valid"`
			Result core.Result `json:"result"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
			t.Fatalf("%s: decode: %v", tc.body, err)
		}
		if payload.Valid != tc.valid {
			t.Fatalf("%s: expected valid=%v, got %s", tc.body, tc.valid, payload.Result)
		}
		if tc.code != "" && !payload.Result.HasError(tc.code) {
			t.Fatalf("%s: expected %s, got %v", tc.body, tc.code, payload.Result.Errors())
		}
	}
}

func TestServer_VerifyRejectsMalformedBody(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestServer(t, nil, 0).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/verify", strings.NewReader("nope")))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestServer_ListVerifications(t *testing.T) {
	log := &memoryLog{}
	handler := newTestServer(t, log, 0)

	req := httptest.NewRequest(http.MethodPost, "/v1/verify", strings.NewReader(`{"token":"good"}`))
	req.RemoteAddr = "203.0.113.5:4000"
	handler.ServeHTTP(httptest.NewRecorder(), req)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/verifications?valid=true&per_page=10&action=submit", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var payload verificationList
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Total != 1 || len(payload.Items) != 1 {
		t.Fatalf("expected one record, got %+v", payload)
	}
	if payload.Items[0].RemoteIP != "203.0.113.5" || !payload.Items[0].Valid {
		t.Fatalf("unexpected record %+v", payload.Items[0])
	}

	filter := log.filters[0]
	if filter.Valid == nil || !*filter.Valid || filter.PerPage != 10 || filter.Action != "submit" {
		t.Fatalf("unexpected filter %+v", filter)
	}
}

func TestServer_ListVerificationsErrors(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestServer(t, nil, 0).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/verifications", nil))
	if rec.Code != http.StatusNotImplemented {
		t.Fatalf("expected 501 without audit log, got %d", rec.Code)
	}

	handler := newTestServer(t, &memoryLog{}, 0)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/verifications?valid=maybe", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad filter, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/verifications?page=-1", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 from query validation, got %d", rec.Code)
	}
}

func TestServer_ProtectedRoute(t *testing.T) {
	handler := newTestServer(t, nil, 0)

	req := httptest.NewRequest(http.MethodPost, "/v1/protected", nil)
	req.Header.Set(middleware.HeaderToken, "good")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/protected", nil))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without token, got %d", rec.Code)
	}
}

func TestServer_RateLimit(t *testing.T) {
	handler := newTestServer(t, nil, 1)
	first := httptest.NewRecorder()
	handler.ServeHTTP(first, httptest.NewRequest(http.MethodPost, "/v1/verify", strings.NewReader(`{"token":"good"}`)))
	second := httptest.NewRecorder()
	handler.ServeHTTP(second, httptest.NewRequest(http.MethodPost, "/v1/verify", strings.NewReader(`{"token":"good"}`)))
	if first.Code != http.StatusOK || second.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 200 then 429, got %d then %d", first.Code, second.Code)
	}
}

func TestLoadSettings(t *testing.T) {
	env := map[string]string{
		"RECAPTCHA_ADDR":        ":9090",
		"RECAPTCHA_DB_DRIVER":   "sqlite",
		"RECAPTCHA_DB_DSN":      "file:audit.db",
		"RECAPTCHA_DB_DEBUG":    "true",
		"RECAPTCHA_CACHE_TTL":   "90s",
		"RECAPTCHA_RATE_LIMIT":  "5",
		"RECAPTCHA_RETAIN_FOR":  "720h",
		"RECAPTCHA_PRUNE_EVERY": "30m",
		"LOG_LEVEL":             "   ",
	}
	cfg, err := loadSettings(context.Background(), envSettingsLoader{Lookup: func(key string) (string, bool) {
		value, ok := env[key]
		return value, ok
	}})
	if err != nil {
		t.Fatalf("load settings: %v", err)
	}
	if cfg.Addr != ":9090" || cfg.DBDriver != "sqlite" || !cfg.DBDebug || cfg.CacheTTL != 90*time.Second {
		t.Fatalf("unexpected settings %+v", cfg)
	}
	if cfg.RateLimit != 5 || cfg.RetainFor != 720*time.Hour || cfg.PruneEvery != 30*time.Minute {
		t.Fatalf("unexpected settings %+v", cfg)
	}
	if cfg.LogLevel != "info" || cfg.RateWindow != time.Minute || cfg.ProtectedAction != "submit" {
		t.Fatalf("expected defaults for unset keys, got %+v", cfg)
	}

	_, err = loadSettings(context.Background(), core.NewStaticConfigLoader(map[string]any{"db_driver": "postgres"}))
	if !errors.Is(err, cfgx.ErrValidate) {
		t.Fatalf("expected validation error for driver without dsn, got %v", err)
	}

	_, err = loadSettings(context.Background(), core.NewStaticConfigLoader(map[string]any{"rate_window": "-1m"}))
	if !errors.Is(err, cfgx.ErrValidate) {
		t.Fatalf("expected validation error for negative window, got %v", err)
	}

	_, err = loadSettings(context.Background(), core.NewStaticConfigLoader(map[string]any{"cache_ttl": "soon"}))
	if !errors.Is(err, cfgx.ErrDecode) {
		t.Fatalf("expected decode error for invalid duration, got %v", err)
	}
}
