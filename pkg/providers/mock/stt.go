package mock

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/harunnryd/agronomist/pkg/adapters/stt"
)

// Examples are the farmer questions the mock transcriber picks from.
var Examples = []string{
	"My tomato leaves have yellow spots after heavy rain. What should I do?",
	"I see small holes in the leaves and some insects underneath. How do I fix this?",
	"The soil is very dry and my plants are starting to wilt. I need help.",
	"There's a white powdery substance on the leaves. Is this a disease?",
	"My corn plants are yellowing from the bottom. What nutrient are they missing?",
	"I noticed brown lesions on the cotton leaves that are spreading. What can I do?",
	"There's black fungal growth on my rice leaves. Is it serious?",
}

// Transcriber returns a random example question regardless of the audio.
type Transcriber struct {
	mu  sync.Mutex
	rng *rand.Rand
}

type TranscriberOption func(*Transcriber)

// WithRand fixes the random source, mainly for tests.
func WithRand(rng *rand.Rand) TranscriberOption {
	return func(t *Transcriber) {
		if rng != nil {
			t.rng = rng
		}
	}
}

func NewTranscriber(opts ...TranscriberOption) *Transcriber {
	t := &Transcriber{rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Transcriber) Name() string { return "mock_stt" }

func (t *Transcriber) Transcribe(ctx context.Context, audio stt.Audio) (string, error) {
	t.mu.Lock()
	idx := t.rng.Intn(len(Examples))
	t.mu.Unlock()
	return Examples[idx], nil
}

var _ stt.Transcriber = (*Transcriber)(nil)
