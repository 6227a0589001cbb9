// Package metrics provides optional Prometheus instrumentation for the
// store-backed primitives in this module. Wiring it in is always a
// caller's choice: every exported type here wraps a [store.Store] with a
// decorator, never changes behavior, and is never required to use
// pkg/bloom, pkg/memlock, or pkg/recency directly.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/brainix/bloom/pkg/store"
)

// Collectors groups the counters and histograms this package registers.
// Construct one with [NewCollectors] and register it with a
// prometheus.Registerer, or use [NewDefaultCollectors] to register against
// prometheus.DefaultRegisterer.
type Collectors struct {
	casAttempts   *prometheus.CounterVec
	casRetries    *prometheus.CounterVec
	storeLatency  *prometheus.HistogramVec
	lockAcquired  *prometheus.CounterVec
	lockContended *prometheus.CounterVec
}

// NewCollectors constructs the metric vectors without registering them.
func NewCollectors() *Collectors {
	return &Collectors{
		casAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bloom_cas_attempts_total",
			Help: "Total CompareAndSwap attempts issued by store-backed primitives, labeled by key prefix.",
		}, []string{"prefix"}),
		casRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bloom_cas_retries_total",
			Help: "Total CompareAndSwap attempts that lost the race (stale token), labeled by key prefix.",
		}, []string{"prefix"}),
		storeLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bloom_store_call_duration_seconds",
			Help:    "Latency of individual Store calls, labeled by operation.",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
		lockAcquired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "memlock_acquired_total",
			Help: "Total successful lock acquisitions, labeled by key prefix.",
		}, []string{"prefix"}),
		lockContended: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "memlock_contended_total",
			Help: "Total failed (non-blocking or timed-out) lock acquisitions, labeled by key prefix.",
		}, []string{"prefix"}),
	}
}

// NewDefaultCollectors constructs and registers a Collectors against
// prometheus.DefaultRegisterer.
func NewDefaultCollectors() *Collectors {
	c := NewCollectors()
	c.MustRegister(prometheus.DefaultRegisterer)
	return c
}

// MustRegister registers every collector with r. It panics on duplicate
// registration, matching prometheus.Registry's own MustRegister contract.
func (c *Collectors) MustRegister(r prometheus.Registerer) {
	r.MustRegister(c.casAttempts, c.casRetries, c.storeLatency, c.lockAcquired, c.lockContended)
}

// InstrumentedStore wraps a [store.Store], recording per-call latency and
// CAS attempt/retry counts against a [Collectors] instance. The prefix
// label groups keys by the primitive that owns them (see pkg/keys).
type InstrumentedStore struct {
	store.Store
	collectors *Collectors
	prefix     string
}

// Instrument wraps s so every call updates c's metrics, labeling CAS and
// lock counters with prefix (e.g. keys.BloomPrefix or keys.MemlockPrefix).
func Instrument(s store.Store, c *Collectors, prefix string) *InstrumentedStore {
	return &InstrumentedStore{Store: s, collectors: c, prefix: prefix}
}

func (s *InstrumentedStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	defer s.observe("get")()
	return s.Store.Get(ctx, key)
}

func (s *InstrumentedStore) Gets(ctx context.Context, key string) ([]byte, store.CASToken, bool, error) {
	defer s.observe("gets")()
	return s.Store.Gets(ctx, key)
}

func (s *InstrumentedStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration, noReply bool) error {
	defer s.observe("set")()
	return s.Store.Set(ctx, key, value, ttl, noReply)
}

func (s *InstrumentedStore) Add(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	defer s.observe("add")()
	stored, err := s.Store.Add(ctx, key, value, ttl)
	if err == nil {
		if stored {
			s.collectors.lockAcquired.WithLabelValues(s.prefix).Inc()
		} else {
			s.collectors.lockContended.WithLabelValues(s.prefix).Inc()
		}
	}
	return stored, err
}

func (s *InstrumentedStore) CompareAndSwap(ctx context.Context, key string, value []byte, token store.CASToken) (bool, error) {
	defer s.observe("cas")()
	s.collectors.casAttempts.WithLabelValues(s.prefix).Inc()
	swapped, err := s.Store.CompareAndSwap(ctx, key, value, token)
	if err == nil && !swapped {
		s.collectors.casRetries.WithLabelValues(s.prefix).Inc()
	}
	return swapped, err
}

func (s *InstrumentedStore) Delete(ctx context.Context, key string, noReply bool) (bool, error) {
	defer s.observe("delete")()
	return s.Store.Delete(ctx, key, noReply)
}

func (s *InstrumentedStore) observe(op string) func() {
	start := time.Now()
	return func() {
		s.collectors.storeLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}
}

var _ store.Store = (*InstrumentedStore)(nil)
