// Package metrics provides lightweight hooks for instrumentation.
package metrics

// Registration outcomes reported to IncRegistration.
const (
	OutcomeSuccess  = "success"
	OutcomeFull     = "full"
	OutcomeConflict = "conflict"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

// Recorder captures metric events for the application.
// Implementations can expose these to Prometheus, StatsD, etc.
type Recorder interface {
	// Event management metrics
	IncEventCreated()

	// Registration metrics
	IncRegistration(outcome string)
	IncCancellation()

	// Cache metrics
	IncCacheHit()
	IncCacheMiss()
}
