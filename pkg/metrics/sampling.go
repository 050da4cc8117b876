package metrics

import (
	"hash/fnv"
	"math"
	"sync/atomic"
)

// SamplingObserver forwards roughly rate of all events. Events tagged with a
// request_id are sampled per request, so a kept request keeps its whole
// trace; untagged events are sampled by count.
type SamplingObserver struct {
	inner   Observer
	every   uint64
	counter atomic.Uint64
}

func NewSamplingObserver(inner Observer, rate float64) *SamplingObserver {
	s := &SamplingObserver{inner: OrNoop(inner)}
	switch {
	case rate <= 0:
		s.every = 0
	case rate >= 1:
		s.every = 1
	default:
		s.every = max(uint64(math.Round(1/rate)), 1)
	}
	return s
}

func (s *SamplingObserver) RecordEvent(ev MetricsEvent) {
	if s.keep(ev) {
		s.inner.RecordEvent(ev)
	}
}

func (s *SamplingObserver) keep(ev MetricsEvent) bool {
	switch s.every {
	case 0:
		return false
	case 1:
		return true
	}
	if id := ev.Tags["request_id"]; id != "" {
		h := fnv.New64a()
		_, _ = h.Write([]byte(id))
		return h.Sum64()%s.every == 0
	}
	return s.counter.Add(1)%s.every == 0
}
