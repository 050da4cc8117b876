package deepgram

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/harunnryd/agronomist/pkg/adapters/stt"
	"github.com/harunnryd/agronomist/pkg/errorsx"
	"github.com/harunnryd/agronomist/pkg/resilience"

	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
)

func TestTranscribeWithoutKeyIsPermanent(t *testing.T) {
	_, err := New(Config{}).Transcribe(context.Background(), stt.Audio{Data: []byte{1}})
	if !errorsx.HasReason(err, errorsx.ReasonSTTNotConfigured) || !resilience.IsPermanent(err) {
		t.Fatalf("expected permanent not-configured error, got %v", err)
	}
}

func TestTranscribeTrimsTranscript(t *testing.T) {
	tr := New(Config{Model: "nova-2"})
	var gotModel string
	tr.transcribe = func(ctx context.Context, r io.Reader, opts *interfaces.PreRecordedTranscriptionOptions) (string, error) {
		gotModel = opts.Model
		b, _ := io.ReadAll(r)
		if len(b) != 3 {
			t.Fatalf("expected 3 bytes, got %d", len(b))
		}
		return "  brown spots on tomato leaves ", nil
	}
	text, err := tr.Transcribe(context.Background(), stt.Audio{Data: []byte{1, 2, 3}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "brown spots on tomato leaves" || gotModel != "nova-2" {
		t.Fatalf("unexpected result %q model=%q", text, gotModel)
	}
}

func TestTranscribeMapsRateLimit(t *testing.T) {
	tr := New(Config{})
	tr.transcribe = func(context.Context, io.Reader, *interfaces.PreRecordedTranscriptionOptions) (string, error) {
		return "", errors.New("status 429: too many requests")
	}
	_, err := tr.Transcribe(context.Background(), stt.Audio{Data: []byte{1}})
	if !resilience.IsRateLimit(err) {
		t.Fatalf("expected rate limit, got %v", err)
	}
}
