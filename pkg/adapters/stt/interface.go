package stt

import (
	"context"
	"path/filepath"
	"strings"
)

// Audio is a recorded farmer question.
type Audio struct {
	Data        []byte
	Filename    string
	ContentType string
}

// Transcriber defines the contract for any STT vendor implementation.
type Transcriber interface {
	// Name returns adapter name for logging/metrics.
	Name() string
	// Transcribe converts a complete recording to text.
	Transcribe(ctx context.Context, audio Audio) (string, error)
}

// ContentTypeFor guesses a MIME type from a file name, defaulting to WAV.
func ContentTypeFor(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".mp3":
		return "audio/mpeg"
	case ".ogg", ".oga":
		return "audio/ogg"
	case ".webm":
		return "audio/webm"
	case ".m4a", ".mp4":
		return "audio/mp4"
	case ".flac":
		return "audio/flac"
	default:
		return "audio/wav"
	}
}
