package mock

import (
	"context"
	"time"

	"github.com/harunnryd/agronomist/pkg/adapters/tts"
	"github.com/harunnryd/agronomist/pkg/audio"
)

// Synthesizer produces a silent clip. It is the terminal TTS tier so the
// farmer always gets a playable file.
type Synthesizer struct {
	Duration   time.Duration
	SampleRate int
}

func NewSynthesizer() *Synthesizer {
	return &Synthesizer{Duration: audio.SilentDuration, SampleRate: audio.SilentSampleRate}
}

func (s *Synthesizer) Name() string { return "silent_tts" }

func (s *Synthesizer) Synthesize(ctx context.Context, text string) (tts.Audio, error) {
	return tts.WAV(audio.SilentWAV(s.Duration, s.SampleRate), s.SampleRate), nil
}

var _ tts.Synthesizer = (*Synthesizer)(nil)
