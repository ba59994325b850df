package transport

import (
	"crypto/tls"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-recaptcha/core"
)

// Factory builds a transport from a config map. Recognised keys are
// "timeout" (time.Duration or seconds), "client" (HTTPDoer), "tls_config"
// (*tls.Config) and "user_agent".
type Factory func(config map[string]any) (core.Transport, error)

type Registry struct {
	mu         sync.RWMutex
	transports map[string]core.Transport
	factories  map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{
		transports: map[string]core.Transport{},
		factories:  map[string]Factory{},
	}
}

// NewDefaultRegistry registers factories for the http and socket kinds.
func NewDefaultRegistry() *Registry {
	registry := NewRegistry()
	_ = registry.RegisterFactory(KindHTTP, httpFactory)
	_ = registry.RegisterFactory(KindSocket, socketFactory)
	return registry
}

func (r *Registry) Register(transport core.Transport) error {
	if r == nil {
		return fmt.Errorf("transport: registry is nil")
	}
	if transport == nil {
		return fmt.Errorf("transport: transport is nil")
	}
	kind := normalizeKind(transport.Kind())
	if kind == "" {
		return fmt.Errorf("transport: transport kind is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.transports[kind]; exists {
		return fmt.Errorf("transport: transport kind %q already registered", kind)
	}
	r.transports[kind] = transport
	return nil
}

func (r *Registry) RegisterFactory(kind string, factory Factory) error {
	if r == nil {
		return fmt.Errorf("transport: registry is nil")
	}
	kind = normalizeKind(kind)
	if kind == "" {
		return fmt.Errorf("transport: transport kind is required")
	}
	if factory == nil {
		return fmt.Errorf("transport: transport factory is nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[kind]; exists {
		return fmt.Errorf("transport: transport factory kind %q already registered", kind)
	}
	r.factories[kind] = factory
	return nil
}

// Build returns the registered instance for kind, or a new one from its
// factory.
func (r *Registry) Build(kind string, config map[string]any) (core.Transport, error) {
	if r == nil {
		return nil, fmt.Errorf("transport: registry is nil")
	}
	kind = normalizeKind(kind)
	if kind == "" {
		return nil, fmt.Errorf("transport: transport kind is required")
	}

	r.mu.RLock()
	transport, ok := r.transports[kind]
	factory := r.factories[kind]
	r.mu.RUnlock()
	if ok {
		return transport, nil
	}
	if factory == nil {
		return nil, fmt.Errorf("transport: transport kind %q not registered", kind)
	}
	built, err := factory(cloneMap(config))
	if err != nil {
		return nil, err
	}
	if built == nil {
		return nil, fmt.Errorf("transport: factory for %q returned nil transport", kind)
	}
	return built, nil
}

func (r *Registry) Get(kind string) (core.Transport, bool) {
	if r == nil {
		return nil, false
	}
	kind = normalizeKind(kind)
	r.mu.RLock()
	defer r.mu.RUnlock()
	transport, ok := r.transports[kind]
	return transport, ok
}

// Kinds lists every kind with an instance or factory, sorted.
func (r *Registry) Kinds() []string {
	if r == nil {
		return []string{}
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := map[string]struct{}{}
	for kind := range r.transports {
		seen[kind] = struct{}{}
	}
	for kind := range r.factories {
		seen[kind] = struct{}{}
	}
	kinds := make([]string, 0, len(seen))
	for kind := range seen {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds
}

func httpFactory(config map[string]any) (core.Transport, error) {
	timeout, err := timeoutFromConfig(config)
	if err != nil {
		return nil, err
	}
	var client HTTPDoer
	if value, ok := config["client"]; ok && value != nil {
		doer, ok := value.(HTTPDoer)
		if !ok {
			return nil, fmt.Errorf("transport: client must implement HTTPDoer, got %T", value)
		}
		client = doer
	}
	transport := NewHTTPTransport(client)
	transport.Timeout = timeout
	if agent := stringFromConfig(config, "user_agent"); agent != "" {
		transport.UserAgent = agent
	}
	return transport, nil
}

func socketFactory(config map[string]any) (core.Transport, error) {
	timeout, err := timeoutFromConfig(config)
	if err != nil {
		return nil, err
	}
	transport := NewSocketTransport(timeout)
	if value, ok := config["tls_config"]; ok && value != nil {
		tlsConfig, ok := value.(*tls.Config)
		if !ok {
			return nil, fmt.Errorf("transport: tls_config must be *tls.Config, got %T", value)
		}
		transport.TLSConfig = tlsConfig
	}
	if agent := stringFromConfig(config, "user_agent"); agent != "" {
		transport.UserAgent = agent
	}
	return transport, nil
}

func timeoutFromConfig(config map[string]any) (time.Duration, error) {
	value, ok := config["timeout"]
	if !ok || value == nil {
		return 0, nil
	}
	switch typed := value.(type) {
	case time.Duration:
		return typed, nil
	case int:
		return time.Duration(typed) * time.Second, nil
	case int64:
		return time.Duration(typed) * time.Second, nil
	case float64:
		return time.Duration(typed * float64(time.Second)), nil
	case string:
		parsed, err := time.ParseDuration(strings.TrimSpace(typed))
		if err != nil {
			return 0, fmt.Errorf("transport: invalid timeout %q: %w", typed, err)
		}
		return parsed, nil
	default:
		return 0, fmt.Errorf("transport: unsupported timeout type %T", value)
	}
}

func stringFromConfig(config map[string]any, key string) string {
	value, ok := config[key].(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(value)
}

func normalizeKind(kind string) string {
	return strings.TrimSpace(strings.ToLower(kind))
}

func cloneMap(input map[string]any) map[string]any {
	if len(input) == 0 {
		return map[string]any{}
	}
	output := make(map[string]any, len(input))
	for key, value := range input {
		output[key] = value
	}
	return output
}

var _ core.TransportResolver = (*Registry)(nil)
