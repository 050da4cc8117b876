package observers

import (
	"log/slog"
	"sync"
	"time"

	"github.com/harunnryd/agronomist/pkg/metrics"
)

// LatencyObserver sums the time each fallback chain spent per request and
// logs one line when the request finishes.
type LatencyObserver struct {
	mu     sync.Mutex
	traces map[string]*trace
	log    *slog.Logger
}

type trace struct {
	started time.Time
	chains  map[string]time.Duration
	tiers   map[string]int
}

func NewLatencyObserver(log *slog.Logger) *LatencyObserver {
	if log == nil {
		log = slog.Default()
	}
	return &LatencyObserver{
		traces: make(map[string]*trace),
		log:    log,
	}
}

func (o *LatencyObserver) RecordEvent(ev metrics.MetricsEvent) {
	requestID := ev.Tags["request_id"]
	if requestID == "" {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	t := o.traces[requestID]
	if t == nil {
		t = &trace{started: ev.Time, chains: map[string]time.Duration{}, tiers: map[string]int{}}
		o.traces[requestID] = t
	}
	switch ev.Name {
	case metrics.EventTierOutcome:
		chain := ev.Tags["chain"]
		t.chains[chain] += time.Duration(ev.Value) * time.Millisecond
		t.tiers[chain]++
	case metrics.EventRequest:
		o.logLocked(requestID, ev, t)
		delete(o.traces, requestID)
	}
}

// Pending reports requests that have not finished yet.
func (o *LatencyObserver) Pending() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.traces)
}

func (o *LatencyObserver) logLocked(requestID string, ev metrics.MetricsEvent, t *trace) {
	o.log.Info("latency",
		"request_id", requestID,
		"outcome", ev.Tags["outcome"],
		"stt_ms", chainMs(t, "stt"),
		"llm_ms", chainMs(t, "llm"),
		"tts_ms", chainMs(t, "tts"),
		"tiers_tried", t.tiers["stt"]+t.tiers["llm"]+t.tiers["tts"],
		"total_ms", durationMs(t.started, ev.Time),
	)
}

func chainMs(t *trace, chain string) int64 {
	if t.tiers[chain] == 0 {
		return -1
	}
	return t.chains[chain].Milliseconds()
}

func durationMs(a, b time.Time) int64 {
	if a.IsZero() || b.IsZero() {
		return -1
	}
	return b.Sub(a).Milliseconds()
}
