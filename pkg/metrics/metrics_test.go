package metrics

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestAsyncObserverCloseDrains(t *testing.T) {
	mem := NewMemoryObserver()
	async := NewAsyncObserver(mem, 64)
	for i := 0; i < 50; i++ {
		async.RecordEvent(MetricsEvent{Name: EventTierOutcome, Time: time.Now()})
	}
	async.Close()
	if got := len(mem.Named(EventTierOutcome)) + int(async.Dropped()); got != 50 {
		t.Fatalf("expected 50 delivered or dropped events, got %d", got)
	}
	async.RecordEvent(MetricsEvent{Name: EventTierOutcome})
	async.Close()
}

func TestSamplingObserverRate(t *testing.T) {
	mem := NewMemoryObserver()
	s := NewSamplingObserver(mem, 0.25)
	for i := 0; i < 100; i++ {
		s.RecordEvent(MetricsEvent{Name: EventRequest})
	}
	if got := len(mem.Named(EventRequest)); got != 25 {
		t.Fatalf("expected 25 sampled events, got %d", got)
	}

	none := NewSamplingObserver(mem, 0)
	none.RecordEvent(MetricsEvent{Name: EventCacheHit})
	if len(mem.Named(EventCacheHit)) != 0 {
		t.Fatalf("rate 0 must drop everything")
	}
}

func TestSamplingObserverKeepsWholeRequests(t *testing.T) {
	mem := NewMemoryObserver()
	s := NewSamplingObserver(mem, 0.5)
	for i := 0; i < 40; i++ {
		id := string(rune('a' + i%20))
		s.RecordEvent(MetricsEvent{Name: EventTierOutcome, Tags: map[string]string{"request_id": id}})
	}
	perRequest := map[string]int{}
	for _, ev := range mem.Named(EventTierOutcome) {
		perRequest[ev.Tags["request_id"]]++
	}
	for id, n := range perRequest {
		if n != 2 {
			t.Fatalf("request %s kept %d of 2 events", id, n)
		}
	}
}

func TestWithTagsMergesWithoutOverriding(t *testing.T) {
	mem := NewMemoryObserver()
	obs := WithTags(mem, map[string]string{"request_id": "r1", "chain": "outer"})
	obs.RecordEvent(MetricsEvent{Name: EventTierOutcome, Tags: map[string]string{"chain": "llm"}})

	evs := mem.Named(EventTierOutcome)
	if len(evs) != 1 {
		t.Fatalf("expected one event, got %d", len(evs))
	}
	if evs[0].Tags["request_id"] != "r1" || evs[0].Tags["chain"] != "llm" {
		t.Fatalf("unexpected tags %v", evs[0].Tags)
	}
	if WithTags(nil, nil) == nil {
		t.Fatalf("nil observer must become a noop")
	}
}

func TestJSONLObserverWritesOneLinePerEvent(t *testing.T) {
	var buf bytes.Buffer
	obs := NewJSONLObserver(&buf)
	obs.RecordEvent(MetricsEvent{Name: EventWeatherFetch, Time: time.Now(), Value: 12, Tags: map[string]string{"status": "ok"}})
	obs.RecordEvent(MetricsEvent{Name: EventCacheHit, Time: time.Now()})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if !strings.Contains(lines[0], `"name":"weather_fetch"`) || !strings.Contains(lines[0], `"status":"ok"`) {
		t.Fatalf("unexpected line %s", lines[0])
	}
}
