package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Snapshot captures current in-memory counters.
type Snapshot struct {
	Sends             map[string]uint64
	QuotaAllowed      uint64
	QuotaDenied       uint64
	AuthCacheHits     uint64
	AuthCacheMisses   uint64
	SMTPDurationCount uint64
	HTTPRequests      uint64

	AnalyticsEventsPublished uint64
	AnalyticsEventsDropped   uint64
	AnalyticsEventsProcessed uint64
	AnalyticsEventsFailed    uint64
	AnalyticsEventsSkipped   uint64
	AnalyticsBatchCount      uint64
	AnalyticsQueueDepth      int64
}

// InMemoryRecorder stores metrics in memory for tests.
type InMemoryRecorder struct {
	mu    sync.Mutex
	sends map[string]uint64

	quotaAllowed      atomic.Uint64
	quotaDenied       atomic.Uint64
	authCacheHits     atomic.Uint64
	authCacheMisses   atomic.Uint64
	smtpDurationCount atomic.Uint64
	httpRequests      atomic.Uint64

	analyticsPublished atomic.Uint64
	analyticsDropped   atomic.Uint64
	analyticsProcessed atomic.Uint64
	analyticsFailed    atomic.Uint64
	analyticsSkipped   atomic.Uint64
	analyticsBatches   atomic.Uint64
	analyticsDepth     atomic.Int64
}

// NewInMemory returns a Recorder that stores counters in memory.
func NewInMemory() *InMemoryRecorder {
	return &InMemoryRecorder{sends: make(map[string]uint64)}
}

// Snapshot returns a copy of the counters.
func (m *InMemoryRecorder) Snapshot() Snapshot {
	m.mu.Lock()
	sends := make(map[string]uint64, len(m.sends))
	for k, v := range m.sends {
		sends[k] = v
	}
	m.mu.Unlock()

	return Snapshot{
		Sends:                    sends,
		QuotaAllowed:             m.quotaAllowed.Load(),
		QuotaDenied:              m.quotaDenied.Load(),
		AuthCacheHits:            m.authCacheHits.Load(),
		AuthCacheMisses:          m.authCacheMisses.Load(),
		SMTPDurationCount:        m.smtpDurationCount.Load(),
		HTTPRequests:             m.httpRequests.Load(),
		AnalyticsEventsPublished: m.analyticsPublished.Load(),
		AnalyticsEventsDropped:   m.analyticsDropped.Load(),
		AnalyticsEventsProcessed: m.analyticsProcessed.Load(),
		AnalyticsEventsFailed:    m.analyticsFailed.Load(),
		AnalyticsEventsSkipped:   m.analyticsSkipped.Load(),
		AnalyticsBatchCount:      m.analyticsBatches.Load(),
		AnalyticsQueueDepth:      m.analyticsDepth.Load(),
	}
}

func (m *InMemoryRecorder) IncSend(outcome string) {
	m.mu.Lock()
	m.sends[outcome]++
	m.mu.Unlock()
}

func (m *InMemoryRecorder) ObserveSendDuration(string, time.Duration) {}

func (m *InMemoryRecorder) ObserveSMTPDuration(time.Duration) {
	m.smtpDurationCount.Add(1)
}

func (m *InMemoryRecorder) IncQuotaDecision(allowed bool) {
	if allowed {
		m.quotaAllowed.Add(1)
	} else {
		m.quotaDenied.Add(1)
	}
}

func (m *InMemoryRecorder) IncAuthCache(hit bool) {
	if hit {
		m.authCacheHits.Add(1)
	} else {
		m.authCacheMisses.Add(1)
	}
}

func (m *InMemoryRecorder) ObserveHTTPRequest(string, string, int, time.Duration) {
	m.httpRequests.Add(1)
}

func (m *InMemoryRecorder) IncAnalyticsEventPublished(status string) {
	if status == "dropped" {
		m.analyticsDropped.Add(1)
		return
	}
	m.analyticsPublished.Add(1)
}

func (m *InMemoryRecorder) IncAnalyticsEventProcessed(status string) {
	switch status {
	case "failed":
		m.analyticsFailed.Add(1)
	case "skipped":
		m.analyticsSkipped.Add(1)
	default:
		m.analyticsProcessed.Add(1)
	}
}

func (m *InMemoryRecorder) ObserveAnalyticsBatchSize(int) {
	m.analyticsBatches.Add(1)
}

func (m *InMemoryRecorder) ObserveAnalyticsBatchDuration(time.Duration) {}

func (m *InMemoryRecorder) SetAnalyticsQueueDepth(depth int64) {
	m.analyticsDepth.Store(depth)
}

func (m *InMemoryRecorder) ObserveAnalyticsIngestLag(time.Duration) {}
