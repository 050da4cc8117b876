package tts

import "context"

// Audio is synthesized speech ready to be written to disk.
type Audio struct {
	Data        []byte
	ContentType string
	Ext         string
	SampleRate  int
}

// Synthesizer defines the contract for any TTS vendor implementation.
type Synthesizer interface {
	// Name returns adapter name for logging/metrics.
	Name() string
	// Synthesize renders text to a complete audio clip.
	Synthesize(ctx context.Context, text string) (Audio, error)
}

// WAV builds an Audio value for WAV bytes.
func WAV(data []byte, sampleRate int) Audio {
	return Audio{Data: data, ContentType: "audio/wav", Ext: ".wav", SampleRate: sampleRate}
}
