package services

import "time"

// Observer receives instrumentation callbacks from the core.
type Observer interface {
	ObserveUoW(operation, outcome string, elapsed time.Duration)
	ObserveRetry(operation string)
	ObserveAuditEvent(severity string)
	ObserveAlertFailure()
	ObserveRateLookup(result string)
}

// NopObserver discards every observation.
type NopObserver struct{}

func (NopObserver) ObserveUoW(string, string, time.Duration) {}
func (NopObserver) ObserveRetry(string)                      {}
func (NopObserver) ObserveAuditEvent(string)                 {}
func (NopObserver) ObserveAlertFailure()                     {}
func (NopObserver) ObserveRateLookup(string)                 {}
