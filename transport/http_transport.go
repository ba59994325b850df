package transport

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-recaptcha/core"
)

const KindHTTP = "http"

const defaultClientTimeout = 30 * time.Second
const defaultResponseBodyLimit int64 = 1 << 20 // 1 MiB

const formContentType = "application/x-www-form-urlencoded"

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPTransport posts the verification form through net/http.
type HTTPTransport struct {
	Client               HTTPDoer
	Timeout              time.Duration
	UserAgent            string
	MaxResponseBodyBytes int64
}

func NewHTTPTransport(client HTTPDoer) *HTTPTransport {
	if client == nil {
		client = &http.Client{Timeout: defaultClientTimeout}
	}
	return &HTTPTransport{
		Client:               client,
		UserAgent:            defaultUserAgent,
		MaxResponseBodyBytes: defaultResponseBodyLimit,
	}
}

func (*HTTPTransport) Kind() string {
	return KindHTTP
}

func (t *HTTPTransport) Send(ctx context.Context, req core.SiteVerifyRequest) ([]byte, error) {
	if t == nil || t.Client == nil {
		return nil, transportError(
			"transport: http transport requires an http client",
			core.ErrorConnectionFailed,
			http.StatusInternalServerError,
			map[string]any{"transport": KindHTTP},
		)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	requestCtx := ctx
	cancel := func() {}
	if t.Timeout > 0 {
		requestCtx, cancel = context.WithTimeout(ctx, t.Timeout)
	}
	defer cancel()

	verifyURL := strings.TrimSpace(req.URL)
	httpReq, err := http.NewRequestWithContext(requestCtx, http.MethodPost, verifyURL, strings.NewReader(req.Encode()))
	if err != nil {
		return nil, transportWrapError(
			err,
			core.ErrorConnectionFailed,
			"transport: create http request",
			http.StatusBadRequest,
			map[string]any{"transport": KindHTTP, "url": verifyURL},
		)
	}
	httpReq.Header.Set("Content-Type", formContentType)
	if agent := strings.TrimSpace(t.UserAgent); agent != "" {
		httpReq.Header.Set("User-Agent", agent)
	}

	httpRes, err := t.Client.Do(httpReq)
	if err != nil {
		return nil, transportWrapError(
			err,
			core.ErrorConnectionFailed,
			"transport: execute http request",
			http.StatusBadGateway,
			map[string]any{"transport": KindHTTP, "url": verifyURL},
		)
	}
	defer httpRes.Body.Close()

	if httpRes.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(httpRes.Body, 4<<10))
		return nil, transportError(
			fmt.Sprintf("transport: siteverify returned status %d", httpRes.StatusCode),
			core.ErrorBadResponse,
			http.StatusBadGateway,
			map[string]any{"transport": KindHTTP, "status_code": httpRes.StatusCode},
		)
	}

	maxBodyBytes := resolveResponseBodyLimit(t.MaxResponseBodyBytes)
	body, err := io.ReadAll(io.LimitReader(httpRes.Body, maxBodyBytes+1))
	if err != nil {
		return nil, transportWrapError(
			err,
			core.ErrorConnectionFailed,
			"transport: read response body",
			http.StatusBadGateway,
			map[string]any{"transport": KindHTTP, "status_code": httpRes.StatusCode},
		)
	}
	if int64(len(body)) > maxBodyBytes {
		return nil, transportError(
			fmt.Sprintf("transport: response body exceeds limit of %d bytes", maxBodyBytes),
			core.ErrorBadResponse,
			http.StatusBadGateway,
			map[string]any{
				"transport":        KindHTTP,
				"status_code":      httpRes.StatusCode,
				"response_limit_b": maxBodyBytes,
			},
		)
	}
	return body, nil
}

func resolveResponseBodyLimit(limit int64) int64 {
	if limit > 0 {
		return limit
	}
	return defaultResponseBodyLimit
}

var _ core.Transport = (*HTTPTransport)(nil)
