package metrics

import "time"

const (
	EventTierOutcome   = "fallback_tier"
	EventChainFatal    = "fallback_chain_fatal"
	EventCacheHit      = "weather_cache_hit"
	EventCacheMiss     = "weather_cache_miss"
	EventWeatherFetch  = "weather_fetch"
	EventRateLimit     = "rate_limit"
	EventBreakerOpen   = "breaker_open"
	EventBreakerClose  = "breaker_close"
	EventBreakerDenied = "breaker_denied"
	EventRequest       = "triage_request"
	EventEscalation    = "escalation_assessed"
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

type Flusher interface {
	Flush() error
}

type NoopObserver struct{}

func (NoopObserver) RecordEvent(MetricsEvent) {}

// OrNoop returns obs, or a NoopObserver when obs is nil.
func OrNoop(obs Observer) Observer {
	if obs == nil {
		return NoopObserver{}
	}
	return obs
}

type taggedObserver struct {
	inner Observer
	tags  map[string]string
}

// WithTags returns an observer that adds tags to every event before passing
// it on. Tags already set on the event win.
func WithTags(obs Observer, tags map[string]string) Observer {
	obs = OrNoop(obs)
	if len(tags) == 0 {
		return obs
	}
	return taggedObserver{inner: obs, tags: tags}
}

func (t taggedObserver) RecordEvent(ev MetricsEvent) {
	merged := make(map[string]string, len(ev.Tags)+len(t.tags))
	for k, v := range t.tags {
		merged[k] = v
	}
	for k, v := range ev.Tags {
		merged[k] = v
	}
	ev.Tags = merged
	t.inner.RecordEvent(ev)
}
