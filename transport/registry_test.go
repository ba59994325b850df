package transport

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/goliatone/go-recaptcha/core"
)

type staticTransport struct {
	kind string
}

func (s staticTransport) Kind() string { return s.kind }

func (staticTransport) Send(context.Context, core.SiteVerifyRequest) ([]byte, error) {
	return []byte(`{"success":true}`), nil
}

func TestRegistry_RegisterGetAndKinds(t *testing.T) {
	registry := NewRegistry()
	if err := registry.Register(staticTransport{kind: "socket"}); err != nil {
		t.Fatalf("register socket transport: %v", err)
	}
	if err := registry.RegisterFactory("http", httpFactory); err != nil {
		t.Fatalf("register http factory: %v", err)
	}
	if _, ok := registry.Get("SOCKET"); !ok {
		t.Fatalf("expected case-insensitive lookup")
	}
	kinds := registry.Kinds()
	if len(kinds) != 2 || kinds[0] != "http" || kinds[1] != "socket" {
		t.Fatalf("expected sorted kinds, got %v", kinds)
	}
	if err := registry.Register(staticTransport{kind: "socket"}); err == nil {
		t.Fatalf("expected duplicate registration error")
	}
	if err := registry.Register(staticTransport{kind: " "}); err == nil {
		t.Fatalf("expected missing kind error")
	}
}

func TestRegistry_FactoryBuildsCustomTransport(t *testing.T) {
	registry := NewRegistry()
	if err := registry.RegisterFactory("custom", func(config map[string]any) (core.Transport, error) {
		kind := strings.TrimSpace(fmt.Sprint(config["kind"]))
		return staticTransport{kind: kind}, nil
	}); err != nil {
		t.Fatalf("register factory: %v", err)
	}
	transport, err := registry.Build("custom", map[string]any{"kind": "pinned"})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if transport.Kind() != "pinned" {
		t.Fatalf("expected pinned transport, got %q", transport.Kind())
	}
	if _, err := registry.Build("missing", nil); err == nil {
		t.Fatalf("expected unregistered kind error")
	}
}

func TestDefaultRegistry_BuildsConfiguredTransports(t *testing.T) {
	registry := NewDefaultRegistry()
	client := &http.Client{}

	built, err := registry.Build("http", map[string]any{"timeout": 5 * time.Second, "client": client, "user_agent": "custom/1"})
	if err != nil {
		t.Fatalf("build http: %v", err)
	}
	httpTransport, ok := built.(*HTTPTransport)
	if !ok {
		t.Fatalf("expected *HTTPTransport, got %T", built)
	}
	if httpTransport.Timeout != 5*time.Second || httpTransport.Client != client || httpTransport.UserAgent != "custom/1" {
		t.Fatalf("unexpected http transport %+v", httpTransport)
	}

	built, err = registry.Build("socket", map[string]any{"timeout": 3})
	if err != nil {
		t.Fatalf("build socket: %v", err)
	}
	socketTransport, ok := built.(*SocketTransport)
	if !ok || socketTransport.Timeout != 3*time.Second {
		t.Fatalf("unexpected socket transport %#v", built)
	}

	if _, err := registry.Build("http", map[string]any{"client": "nope"}); err == nil {
		t.Fatalf("expected invalid client error")
	}
	if _, err := registry.Build("socket", map[string]any{"timeout": "soon"}); err == nil {
		t.Fatalf("expected invalid timeout error")
	}
}

func TestDefaultRegistry_ResolvesVerifierTransport(t *testing.T) {
	verifier, err := core.NewVerifier(core.Config{Secret: "secret", Transport: "socket", TimeoutSeconds: 2},
		core.WithTransportResolver(NewDefaultRegistry()),
	)
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	socketTransport, ok := verifier.Dependencies().Transport.(*SocketTransport)
	if !ok {
		t.Fatalf("expected socket transport, got %T", verifier.Dependencies().Transport)
	}
	if socketTransport.Timeout != 2*time.Second {
		t.Fatalf("expected configured timeout, got %s", socketTransport.Timeout)
	}
}
