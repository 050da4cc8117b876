package audio

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSilentWAVFormat(t *testing.T) {
	wav := SilentWAV(SilentDuration, SilentSampleRate)
	f, err := ReadFormat(wav)
	if err != nil {
		t.Fatalf("read format: %v", err)
	}
	if f.SampleRate != 16000 || f.Channels != 1 || f.BitsPerSample != 16 {
		t.Fatalf("unexpected format %+v", f)
	}
	if f.Duration != 3*time.Second {
		t.Fatalf("expected 3s, got %s", f.Duration)
	}
	if len(wav) != 44+3*16000*2 {
		t.Fatalf("unexpected size %d", len(wav))
	}
	for _, b := range wav[44:] {
		if b != 0 {
			t.Fatalf("expected silence")
		}
	}
}

func TestReadFormatRejectsGarbage(t *testing.T) {
	if _, err := ReadFormat([]byte("nope")); err == nil {
		t.Fatalf("expected error")
	}
}

func TestWriteWithTranscript(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	path, err := WriteWithTranscript(dir, "reply.wav", PCMToWAV([]byte{1, 2}, 8000, 1, 2), "water at the base")
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if filepath.Base(path) != "reply.wav" {
		t.Fatalf("unexpected path %s", path)
	}
	b, err := os.ReadFile(filepath.Join(dir, "reply.txt"))
	if err != nil {
		t.Fatalf("read transcript: %v", err)
	}
	if string(b) != "water at the base" {
		t.Fatalf("unexpected transcript %q", b)
	}
}
