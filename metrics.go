package goGate

import (
	"sync/atomic"
	"time"
)

// MetricID identifies a counter or histogram in the in-process metrics
// system.
type MetricID uint16

const (
	// MetricGatePermit counts requests the gate let through.
	MetricGatePermit MetricID = iota
	// MetricGateUnauthenticated counts 401 gate responses.
	MetricGateUnauthenticated
	// MetricGateForbidden counts 403 gate responses.
	MetricGateForbidden
	// MetricGateBackendFailure counts 500 gate responses.
	MetricGateBackendFailure
	// MetricResolveCacheHit counts resolutions served from the session cache.
	MetricResolveCacheHit
	// MetricResolveCacheMiss counts resolutions that went to Redis.
	MetricResolveCacheMiss
	// MetricSignInSuccess counts successful sign-ins.
	MetricSignInSuccess
	// MetricSignInFailure counts rejected sign-ins.
	MetricSignInFailure
	// MetricSignInRateLimited counts sign-ins refused by the throttle.
	MetricSignInRateLimited
	// MetricSignUpSuccess counts created accounts.
	MetricSignUpSuccess
	// MetricSignUpDuplicate counts sign-ups rejected for an existing email.
	MetricSignUpDuplicate
	// MetricSignOut counts single-session sign-outs.
	MetricSignOut
	// MetricSignOutAll counts revoke-all operations.
	MetricSignOutAll
	// MetricSessionCreated counts persisted sessions.
	MetricSessionCreated
	// MetricSessionInvalidated counts revoked sessions.
	MetricSessionInvalidated
	// MetricRoleChange counts successful role updates.
	MetricRoleChange
	// MetricPasswordResetRequest counts accepted reset requests.
	MetricPasswordResetRequest
	// MetricPasswordResetConfirmSuccess counts completed resets.
	MetricPasswordResetConfirmSuccess
	// MetricPasswordResetConfirmFailure counts rejected reset confirmations.
	MetricPasswordResetConfirmFailure
	// MetricPasswordResetAttemptsExceeded counts reset tokens burned by the attempt cap.
	MetricPasswordResetAttemptsExceeded
	// MetricResolveLatency is the session resolution latency histogram.
	MetricResolveLatency
	metricIDCount
)

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics holds lock-free counters and the resolve latency histogram.
// A nil or disabled Metrics accepts every call and records nothing.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of all metrics.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics creates a [Metrics] configured by cfg.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

// Enabled reports whether counters are recorded.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// LatencyEnabled reports whether the latency histogram is recorded.
func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc increments counter id.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Add increments counter id by n.
func (m *Metrics) Add(id MetricID, n uint64) {
	if m == nil || !m.enabled || id >= metricIDCount || n == 0 {
		return
	}
	atomic.AddUint64(&m.counters[id].value, n)
}

// Observe records d in the histogram for id. Only [MetricResolveLatency]
// carries a histogram.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || id >= metricIDCount {
		return
	}
	if id != MetricResolveLatency {
		return
	}

	b := bucketIndex(d)
	atomic.AddUint64(&m.histograms[id].buckets[b], 1)
}

// Value returns the current value of counter id.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies every counter and, when enabled, the latency buckets.
// Buckets are non-cumulative.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, 1),
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := 0; i < histBucketCount; i++ {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricResolveLatency].buckets[i])
		}
		s.Histograms[MetricResolveLatency] = buckets
	}

	return s
}

func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()

	switch {
	case ms <= 5:
		return 0
	case ms <= 10:
		return 1
	case ms <= 25:
		return 2
	case ms <= 50:
		return 3
	case ms <= 100:
		return 4
	case ms <= 250:
		return 5
	case ms <= 500:
		return 6
	default:
		return 7
	}
}
