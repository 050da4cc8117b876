package metrics

import (
	"encoding/json"
	"io"
	"sync"
	"time"
)

type jsonlRecord struct {
	Time   time.Time         `json:"time"`
	Name   string            `json:"name"`
	Value  float64           `json:"value,omitempty"`
	Tags   map[string]string `json:"tags,omitempty"`
	Fields map[string]any    `json:"fields,omitempty"`
}

// JSONLObserver appends one JSON object per event to w.
type JSONLObserver struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func NewJSONLObserver(w io.Writer) *JSONLObserver {
	if w == nil {
		w = io.Discard
	}
	return &JSONLObserver{enc: json.NewEncoder(w)}
}

func (o *JSONLObserver) RecordEvent(ev MetricsEvent) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	_ = o.enc.Encode(jsonlRecord{Time: ev.Time.UTC(), Name: ev.Name, Value: ev.Value, Tags: ev.Tags, Fields: ev.Fields})
}
