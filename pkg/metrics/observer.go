// Package metrics records call-engine measurements through a pluggable observer.
package metrics

import "time"

// Event names.
const (
	EventLLMLatency         = "llm_latency_ms"
	EventTTSLatency         = "tts_latency_ms"
	EventSupervisorSeverity = "supervisor_severity"
	EventEscalationOutcome  = "escalation_outcome"
	EventCallStarted        = "call_started"
	EventCallEnded          = "call_ended"
)

type MetricsEvent struct {
	Name   string
	Time   time.Time
	Value  float64
	Tags   map[string]string
	Fields map[string]any
}

type Observer interface {
	RecordEvent(ev MetricsEvent)
}

type NoopObserver struct{}

func (NoopObserver) RecordEvent(MetricsEvent) {}

// Latency builds a millisecond latency event.
func Latency(name string, started time.Time, tags map[string]string) MetricsEvent {
	now := time.Now()
	return MetricsEvent{
		Name:  name,
		Time:  now,
		Value: float64(now.Sub(started).Milliseconds()),
		Tags:  tags,
	}
}

// Count builds a unit counter event.
func Count(name string, tags map[string]string) MetricsEvent {
	return MetricsEvent{Name: name, Time: time.Now(), Value: 1, Tags: tags}
}
