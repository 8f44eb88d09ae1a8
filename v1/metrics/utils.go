package metrics

import (
	"time"
)

// Recorder is the metrics surface the registry writes to.
type Recorder interface {
	ObserveRegistration(artifactType, mode, outcome string)
	ObserveLookup(match, outcome string)
	ObserveRuleViolation(ruleType string)
	ObserveLimitRejection(limit string)
	RecordOperationDuration(start time.Time, operation string)
}

// ObserveRegistration counts a registration attempt.
// Example: m.ObserveRegistration("AVRO", "create", "success")
func (m *Metrics) ObserveRegistration(artifactType, mode, outcome string) {
	m.registrations.WithLabelValues(artifactType, mode, outcome).Inc()
}

// ObserveLookup counts a content lookup.
func (m *Metrics) ObserveLookup(match, outcome string) {
	m.lookups.WithLabelValues(match, outcome).Inc()
}

func (m *Metrics) ObserveRuleViolation(ruleType string) {
	m.ruleViolations.WithLabelValues(ruleType).Inc()
}

func (m *Metrics) ObserveLimitRejection(limit string) {
	m.limitRejections.WithLabelValues(limit).Inc()
}

// RecordOperationDuration observes the time elapsed since start.
// Example: defer m.RecordOperationDuration(time.Now(), "lookup")
func (m *Metrics) RecordOperationDuration(start time.Time, operation string) {
	m.operationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// Noop discards all observations.
type Noop struct{}

func (Noop) ObserveRegistration(string, string, string) {}
func (Noop) ObserveLookup(string, string) {}
func (Noop) ObserveRuleViolation(string) {}
func (Noop) ObserveLimitRejection(string) {}
func (Noop) RecordOperationDuration(time.Time, string) {}
