// Package metrics provides instrumentation hooks for the send pipeline.
package metrics

import "time"

// Send outcomes. Failed sends use the model.ErrorKind* values.
const OutcomeSent = "sent"

// Recorder captures metric events for the application.
type Recorder interface {
	// Dispatch metrics
	IncSend(outcome string)
	ObserveSendDuration(outcome string, duration time.Duration)
	ObserveSMTPDuration(duration time.Duration)
	IncQuotaDecision(allowed bool)
	IncAuthCache(hit bool)

	// HTTP metrics
	ObserveHTTPRequest(method, route string, status int, duration time.Duration)

	// Analytics pipeline metrics
	IncAnalyticsEventPublished(status string) // status: "success" or "dropped"
	IncAnalyticsEventProcessed(status string) // status: "success", "failed", "skipped"
	ObserveAnalyticsBatchSize(size int)
	ObserveAnalyticsBatchDuration(duration time.Duration)
	SetAnalyticsQueueDepth(depth int64)
	ObserveAnalyticsIngestLag(lag time.Duration)
}
