// Package prometheus exposes verifier metrics through client_golang.
package prometheus

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-recaptcha/core"
	"github.com/prometheus/client_golang/prometheus"
)

// DefaultDurationBuckets covers 5ms to roughly 10s.
var DefaultDurationBuckets = prometheus.ExponentialBuckets(5, 2, 12)

type Option func(*Recorder)

func WithNamespace(namespace string) Option {
	return func(r *Recorder) {
		r.namespace = sanitizeName(namespace)
	}
}

func WithBuckets(buckets []float64) Option {
	return func(r *Recorder) {
		if len(buckets) > 0 {
			r.buckets = append([]float64(nil), buckets...)
		}
	}
}

// Recorder implements core.MetricsRecorder. Vectors are created on first use
// of a metric name; their label set is the sorted tag keys of that first call.
// Later calls with missing tags report them as empty.
type Recorder struct {
	registerer prometheus.Registerer
	namespace  string
	buckets    []float64

	mu         sync.Mutex
	counters   map[string]*labeledCounter
	histograms map[string]*labeledHistogram
}

type labeledCounter struct {
	vec    *prometheus.CounterVec
	labels []string
}

type labeledHistogram struct {
	vec    *prometheus.HistogramVec
	labels []string
}

func NewRecorder(registerer prometheus.Registerer, opts ...Option) *Recorder {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	r := &Recorder{
		registerer: registerer,
		buckets:    DefaultDurationBuckets,
		counters:   map[string]*labeledCounter{},
		histograms: map[string]*labeledHistogram{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

func (r *Recorder) IncCounter(_ context.Context, name string, value int64, tags map[string]string) {
	if r == nil || value < 0 {
		return
	}
	counter, err := r.counter(name, tags)
	if err != nil {
		return
	}
	counter.vec.WithLabelValues(labelValues(counter.labels, tags)...).Add(float64(value))
}

func (r *Recorder) ObserveHistogram(_ context.Context, name string, value float64, tags map[string]string) {
	if r == nil {
		return
	}
	histogram, err := r.histogram(name, tags)
	if err != nil {
		return
	}
	histogram.vec.WithLabelValues(labelValues(histogram.labels, tags)...).Observe(value)
}

func (r *Recorder) counter(name string, tags map[string]string) (*labeledCounter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.counters[name]; ok {
		return existing, nil
	}
	labels := labelNames(tags)
	vec := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: r.namespace,
		Name:      sanitizeName(name),
		Help:      "Counter for " + name + ".",
	}, labels)
	if err := r.registerer.Register(vec); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return nil, err
		}
		existing, ok := already.ExistingCollector.(*prometheus.CounterVec)
		if !ok {
			return nil, err
		}
		vec = existing
	}
	entry := &labeledCounter{vec: vec, labels: labels}
	r.counters[name] = entry
	return entry, nil
}

func (r *Recorder) histogram(name string, tags map[string]string) (*labeledHistogram, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.histograms[name]; ok {
		return existing, nil
	}
	labels := labelNames(tags)
	vec := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: r.namespace,
		Name:      sanitizeName(name),
		Help:      "Histogram for " + name + ".",
		Buckets:   r.buckets,
	}, labels)
	if err := r.registerer.Register(vec); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return nil, err
		}
		existing, ok := already.ExistingCollector.(*prometheus.HistogramVec)
		if !ok {
			return nil, err
		}
		vec = existing
	}
	entry := &labeledHistogram{vec: vec, labels: labels}
	r.histograms[name] = entry
	return entry, nil
}

func labelNames(tags map[string]string) []string {
	names := make([]string, 0, len(tags))
	for key := range tags {
		if clean := sanitizeName(key); clean != "" {
			names = append(names, clean)
		}
	}
	sort.Strings(names)
	return names
}

func labelValues(labels []string, tags map[string]string) []string {
	byName := make(map[string]string, len(tags))
	for key, value := range tags {
		byName[sanitizeName(key)] = value
	}
	values := make([]string, len(labels))
	for i, label := range labels {
		values[i] = byName[label]
	}
	return values
}

// sanitizeName maps dotted metric names to prometheus names:
// "recaptcha.verify.total" becomes "recaptcha_verify_total".
func sanitizeName(name string) string {
	name = strings.TrimSpace(name)
	var b strings.Builder
	for i, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_':
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			if i == 0 {
				b.WriteRune('_')
			}
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

var _ core.MetricsRecorder = (*Recorder)(nil)
