package metrics

import "time"

// NoopRecorder implements Recorder with no-op methods.
type NoopRecorder struct{}

// NewNoop returns a Recorder that discards all metrics.
func NewNoop() Recorder {
	return &NoopRecorder{}
}

func (n *NoopRecorder) IncSend(string) {}
func (n *NoopRecorder) ObserveSendDuration(string, time.Duration) {}
func (n *NoopRecorder) ObserveSMTPDuration(time.Duration) {}
func (n *NoopRecorder) IncQuotaDecision(bool) {}
func (n *NoopRecorder) IncAuthCache(bool) {}
func (n *NoopRecorder) ObserveHTTPRequest(string, string, int, time.Duration) {}
func (n *NoopRecorder) IncAnalyticsEventPublished(string) {}
func (n *NoopRecorder) IncAnalyticsEventProcessed(string) {}
func (n *NoopRecorder) ObserveAnalyticsBatchSize(int) {}
func (n *NoopRecorder) ObserveAnalyticsBatchDuration(time.Duration) {}
func (n *NoopRecorder) SetAnalyticsQueueDepth(int64) {}
func (n *NoopRecorder) ObserveAnalyticsIngestLag(time.Duration) {}
