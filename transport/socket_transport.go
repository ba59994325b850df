package transport

import (
	"bufio"
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-recaptcha/core"
)

const KindSocket = "socket"

const defaultUserAgent = "go-recaptcha/" + core.DefaultClientVersion

// SocketTransport writes a single HTTP/1.1 request over a raw TCP or TLS
// connection and reads until the server closes it. It avoids net/http
// entirely, which keeps it usable where an http.Client is not wanted.
type SocketTransport struct {
	Timeout              time.Duration
	TLSConfig            *tls.Config
	UserAgent            string
	MaxResponseBodyBytes int64
}

func NewSocketTransport(timeout time.Duration) *SocketTransport {
	if timeout <= 0 {
		timeout = defaultClientTimeout
	}
	return &SocketTransport{
		Timeout:              timeout,
		UserAgent:            defaultUserAgent,
		MaxResponseBodyBytes: defaultResponseBodyLimit,
	}
}

func (*SocketTransport) Kind() string {
	return KindSocket
}

func (t *SocketTransport) Send(ctx context.Context, req core.SiteVerifyRequest) ([]byte, error) {
	if t == nil {
		return nil, transportError(
			"transport: socket transport is nil",
			core.ErrorConnectionFailed,
			http.StatusInternalServerError,
			map[string]any{"transport": KindSocket},
		)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	target, err := url.Parse(strings.TrimSpace(req.URL))
	if err != nil || target.Host == "" {
		return nil, transportWrapError(
			err,
			core.ErrorConnectionFailed,
			"transport: invalid verify url",
			http.StatusBadRequest,
			map[string]any{"transport": KindSocket, "url": strings.TrimSpace(req.URL)},
		)
	}

	timeout := t.Timeout
	if timeout <= 0 {
		timeout = defaultClientTimeout
	}
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := t.dial(dialCtx, target)
	if err != nil {
		return nil, transportWrapError(
			err,
			core.ErrorConnectionFailed,
			"transport: connect to verify host",
			http.StatusBadGateway,
			map[string]any{"transport": KindSocket, "host": target.Host},
		)
	}
	defer conn.Close()

	deadline, _ := dialCtx.Deadline()
	_ = conn.SetDeadline(deadline)

	if _, err := conn.Write(t.buildRequest(target, req.Encode())); err != nil {
		return nil, transportWrapError(
			err,
			core.ErrorConnectionFailed,
			"transport: write request",
			http.StatusBadGateway,
			map[string]any{"transport": KindSocket, "host": target.Host},
		)
	}

	limit := resolveResponseBodyLimit(t.MaxResponseBodyBytes)
	// headers are bounded separately from the body limit
	raw, err := io.ReadAll(io.LimitReader(conn, limit+64<<10))
	if err != nil && len(raw) == 0 {
		return nil, transportWrapError(
			err,
			core.ErrorConnectionFailed,
			"transport: read response",
			http.StatusBadGateway,
			map[string]any{"transport": KindSocket, "host": target.Host},
		)
	}
	body, err := splitResponse(raw)
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > limit {
		return nil, transportError(
			fmt.Sprintf("transport: response body exceeds limit of %d bytes", limit),
			core.ErrorBadResponse,
			http.StatusBadGateway,
			map[string]any{"transport": KindSocket, "response_limit_b": limit},
		)
	}
	return body, nil
}

func (t *SocketTransport) dial(ctx context.Context, target *url.URL) (net.Conn, error) {
	dialer := &net.Dialer{}
	switch strings.ToLower(target.Scheme) {
	case "https":
		config := &tls.Config{MinVersion: tls.VersionTLS12}
		if t.TLSConfig != nil {
			config = t.TLSConfig.Clone()
		}
		if config.ServerName == "" {
			config.ServerName = target.Hostname()
		}
		tlsDialer := &tls.Dialer{NetDialer: dialer, Config: config}
		return tlsDialer.DialContext(ctx, "tcp", hostPort(target, "443"))
	case "http":
		return dialer.DialContext(ctx, "tcp", hostPort(target, "80"))
	default:
		return nil, fmt.Errorf("transport: unsupported scheme %q", target.Scheme)
	}
}

func (t *SocketTransport) buildRequest(target *url.URL, body string) []byte {
	path := target.RequestURI()
	if path == "" {
		path = "/"
	}
	agent := strings.TrimSpace(t.UserAgent)
	if agent == "" {
		agent = defaultUserAgent
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "POST %s HTTP/1.1\r\n", path)
	fmt.Fprintf(&buf, "Host: %s\r\n", target.Host)
	fmt.Fprintf(&buf, "User-Agent: %s\r\n", agent)
	fmt.Fprintf(&buf, "Content-Type: %s\r\n", formContentType)
	fmt.Fprintf(&buf, "Content-Length: %d\r\n", len(body))
	buf.WriteString("Connection: close\r\n\r\n")
	buf.WriteString(body)
	return buf.Bytes()
}

// splitResponse checks the status line and returns everything after the first
// blank line, decoding chunked transfer encoding when announced.
func splitResponse(raw []byte) ([]byte, error) {
	head, body, found := bytes.Cut(raw, []byte("\r\n\r\n"))
	if !found {
		return nil, transportError(
			"transport: malformed http response",
			core.ErrorBadResponse,
			http.StatusBadGateway,
			map[string]any{"transport": KindSocket},
		)
	}

	lines := strings.Split(string(head), "\r\n")
	status := statusCode(lines[0])
	if status != http.StatusOK {
		return nil, transportError(
			fmt.Sprintf("transport: siteverify returned status line %q", strings.TrimSpace(lines[0])),
			core.ErrorBadResponse,
			http.StatusBadGateway,
			map[string]any{"transport": KindSocket, "status_code": status},
		)
	}

	if !isChunked(lines[1:]) {
		return body, nil
	}
	decoded, err := io.ReadAll(httputil.NewChunkedReader(bufio.NewReader(bytes.NewReader(body))))
	if err != nil {
		return nil, transportWrapError(
			err,
			core.ErrorBadResponse,
			"transport: decode chunked body",
			http.StatusBadGateway,
			map[string]any{"transport": KindSocket},
		)
	}
	return decoded, nil
}

func statusCode(line string) int {
	fields := strings.Fields(line)
	if len(fields) < 2 || !strings.HasPrefix(fields[0], "HTTP/") {
		return 0
	}
	code, err := strconv.Atoi(fields[1])
	if err != nil {
		return 0
	}
	return code
}

func isChunked(headerLines []string) bool {
	for _, line := range headerLines {
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(name), "Transfer-Encoding") &&
			strings.Contains(strings.ToLower(value), "chunked") {
			return true
		}
	}
	return false
}

func hostPort(target *url.URL, defaultPort string) string {
	if port := target.Port(); port != "" {
		return target.Host
	}
	return net.JoinHostPort(target.Hostname(), defaultPort)
}

var _ core.Transport = (*SocketTransport)(nil)
