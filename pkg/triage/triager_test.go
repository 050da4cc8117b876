package triage

import (
	"context"
	"errors"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/harunnryd/agronomist/pkg/adapters/stt"
	"github.com/harunnryd/agronomist/pkg/adapters/tts"
	"github.com/harunnryd/agronomist/pkg/advisory"
	"github.com/harunnryd/agronomist/pkg/audio"
	"github.com/harunnryd/agronomist/pkg/classify"
	"github.com/harunnryd/agronomist/pkg/llm"
	"github.com/harunnryd/agronomist/pkg/metrics"
	"github.com/harunnryd/agronomist/pkg/notify"
	"github.com/harunnryd/agronomist/pkg/providers/elevenlabs"
	"github.com/harunnryd/agronomist/pkg/providers/openai"
	"github.com/harunnryd/agronomist/pkg/providers/piper"
	"github.com/harunnryd/agronomist/pkg/resilience"
	"github.com/harunnryd/agronomist/pkg/weather"
)

type downWeather struct{ calls int }

func (d *downWeather) Name() string { return "down" }

func (d *downWeather) Fetch(ctx context.Context, lat, lon float64) (weather.Snapshot, error) {
	d.calls++
	return weather.Snapshot{}, errors.New("connection refused")
}

type countingLLM struct {
	text  string
	err   error
	calls int
	last  string
}

func (c *countingLLM) Name() string { return "counting" }

func (c *countingLLM) Generate(ctx context.Context, input llm.Context) (llm.Response, error) {
	c.calls++
	c.last = input.LastUserText()
	return llm.Response{Text: c.text}, c.err
}

type countingSTT struct {
	text  string
	calls int
}

func (c *countingSTT) Name() string { return "counting_stt" }

func (c *countingSTT) Transcribe(ctx context.Context, a stt.Audio) (string, error) {
	c.calls++
	return c.text, nil
}

type failingTTS struct{}

func (failingTTS) Name() string { return "broken" }

func (failingTTS) Synthesize(ctx context.Context, text string) (tts.Audio, error) {
	return tts.Audio{}, errors.New("boom")
}

type hangingTTS struct{}

func (hangingTTS) Name() string { return "hanging" }

func (hangingTTS) Synthesize(ctx context.Context, text string) (tts.Audio, error) {
	<-ctx.Done()
	return tts.Audio{}, ctx.Err()
}

type recordingNotifier struct{ alerts []notify.Alert }

func (r *recordingNotifier) Name() string { return "recording" }

func (r *recordingNotifier) Notify(ctx context.Context, a notify.Alert) (string, error) {
	r.alerts = append(r.alerts, a)
	return "SM1", nil
}

func writeImage(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "crop.png")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create image: %v", err)
	}
	defer f.Close()
	if err := png.Encode(f, image.NewRGBA(image.Rect(0, 0, 8, 8))); err != nil {
		t.Fatalf("encode image: %v", err)
	}
	return path
}

func offlineWeather(p weather.Provider) *weather.Service {
	return weather.NewService(p, weather.WithRetry(resilience.RetryConfig{
		MaxAttempts: 3,
		Sleep:       func(time.Duration) {},
	}))
}

func TestHandleRequestAllProvidersUnavailable(t *testing.T) {
	outDir := t.TempDir()
	wx := &downWeather{}
	obs := metrics.NewMemoryObserver()
	tr := New(Config{OutputDir: outDir}, Providers{
		LLMs:         []llm.LLMAdapter{openai.NewAdapter("", "llama", openai.GroqBaseURL)},
		Synthesizers: []tts.Synthesizer{elevenlabs.New(elevenlabs.Config{}), piper.New(piper.Config{})},
		Weather:      offlineWeather(wx),
	}, WithObserver(obs), WithIDGenerator(func() string { return "req-1" }))

	resp := tr.HandleRequest(context.Background(), Request{
		ImagePath:   writeImage(t),
		Description: "Brown spots on my tomato leaves after heavy rain",
	})

	if !resp.OK() {
		t.Fatalf("unexpected user error %+v", resp.Error)
	}
	if resp.DetectedCrop != classify.CropTomato || resp.DetectedPart != classify.PartLeaf {
		t.Fatalf("unexpected detection %s/%s", resp.DetectedCrop, resp.DetectedPart)
	}
	if resp.Detection != "Detected: Tomato - leaf" {
		t.Fatalf("unexpected detection line %q", resp.Detection)
	}
	if resp.Tiers["llm"] != "mock_llm" || resp.Tiers["tts"] != "silent_tts" {
		t.Fatalf("unexpected tiers %v", resp.Tiers)
	}
	if !strings.Contains(strings.ToLower(resp.AdvisoryText), "fungal") {
		t.Fatalf("expected disease-themed advice, got %q", resp.AdvisoryText)
	}
	if resp.Escalation.Level != advisory.LevelMedium || !resp.Escalation.NeedsPesticideWarning {
		t.Fatalf("unexpected escalation %+v", resp.Escalation)
	}
	if !strings.Contains(resp.AdvisoryText, advisory.PesticideWarning) {
		t.Fatalf("expected pesticide warning in advisory")
	}
	if resp.Weather.Summary != weather.SummaryUnavailable || wx.calls != 3 {
		t.Fatalf("expected unavailable weather after 3 attempts, got %q calls=%d", resp.Weather.Summary, wx.calls)
	}

	if resp.AudioPath != filepath.Join(outDir, "advice-req-1.wav") {
		t.Fatalf("unexpected audio path %q", resp.AudioPath)
	}
	data, err := os.ReadFile(resp.AudioPath)
	if err != nil {
		t.Fatalf("audio not written: %v", err)
	}
	if f, err := audio.ReadFormat(data); err != nil || f.Duration != 3*time.Second {
		t.Fatalf("expected 3s silent wav, got %+v err=%v", f, err)
	}
	transcript, err := os.ReadFile(audio.TranscriptPath(resp.AudioPath))
	if err != nil || string(transcript) != resp.AdvisoryText {
		t.Fatalf("transcript sidecar mismatch: %v", err)
	}

	if got := len(obs.Named(metrics.EventTierOutcome)); got != 5 {
		t.Fatalf("expected 5 tier events (2 llm + 3 tts), got %d", got)
	}
}

func TestHandleRequestValidation(t *testing.T) {
	img := writeImage(t)
	llmStub := &countingLLM{text: "ok"}
	tr := New(Config{OutputDir: t.TempDir()}, Providers{LLMs: []llm.LLMAdapter{llmStub}})

	cases := []struct {
		name string
		req  Request
		code ErrorCode
	}{
		{"no image", Request{Description: "spots"}, CodeMissingImage},
		{"missing file", Request{ImagePath: filepath.Join(t.TempDir(), "x.jpg"), Description: "spots"}, CodeImageNotFound},
		{"no description", Request{ImagePath: img, Description: "   "}, CodeMissingDescription},
		{"bad location", Request{ImagePath: img, Description: "spots", Location: &Location{Lat: 120, Lon: 0}}, CodeInvalidLocation},
	}
	for _, tc := range cases {
		resp := tr.HandleRequest(context.Background(), tc.req)
		if resp.Error == nil || resp.Error.Code != tc.code {
			t.Fatalf("%s: expected %s, got %+v", tc.name, tc.code, resp.Error)
		}
		if resp.Error.Message == "" || resp.AudioPath != "" {
			t.Fatalf("%s: expected plain message and no audio", tc.name)
		}
	}
	if llmStub.calls != 0 {
		t.Fatalf("validation failures must not reach providers")
	}
}

func TestHandleRequestTranscribesAudio(t *testing.T) {
	sttStub := &countingSTT{text: "My corn plants are yellowing from the bottom."}
	llmStub := &countingLLM{text: "Add a balanced fertilizer."}
	tr := New(Config{OutputDir: t.TempDir(), RegionHint: "Piedmont"}, Providers{
		Transcribers: []stt.Transcriber{sttStub},
		LLMs:         []llm.LLMAdapter{llmStub},
	})

	resp := tr.HandleRequest(context.Background(), Request{ImagePath: writeImage(t), Audio: []byte("RIFF"), AudioName: "q.wav"})
	if !resp.OK() {
		t.Fatalf("unexpected error %+v", resp.Error)
	}
	if resp.Tiers["stt"] != "counting_stt" || resp.Tiers["llm"] != "counting" {
		t.Fatalf("unexpected tiers %v", resp.Tiers)
	}
	if resp.DetectedCrop != classify.CropCorn || resp.Escalation.Level != advisory.LevelLow {
		t.Fatalf("unexpected result crop=%s level=%s", resp.DetectedCrop, resp.Escalation.Level)
	}
	for _, want := range []string{"Region: Piedmont", "Crop: corn", `"""My corn plants are yellowing from the bottom."""`, weather.SummaryNoData} {
		if !strings.Contains(llmStub.last, want) {
			t.Fatalf("prompt missing %q:\n%s", want, llmStub.last)
		}
	}
}

func TestHandleRequestDescriptionWinsOverAudio(t *testing.T) {
	sttStub := &countingSTT{text: "ignored"}
	tr := New(Config{OutputDir: t.TempDir()}, Providers{Transcribers: []stt.Transcriber{sttStub}})
	resp := tr.HandleRequest(context.Background(), Request{ImagePath: writeImage(t), Description: "wilting tomato", Audio: []byte{1}})
	if !resp.OK() || sttStub.calls != 0 {
		t.Fatalf("expected description to be used without STT, calls=%d", sttStub.calls)
	}
}

func TestHandleRequestEmptyLLMAnswerIsUnknown(t *testing.T) {
	failing := &countingLLM{err: errors.New("down")}
	tr := New(Config{OutputDir: t.TempDir()}, Providers{
		LLMs:        []llm.LLMAdapter{failing},
		TerminalLLM: &countingLLM{text: "   "},
	})
	resp := tr.HandleRequest(context.Background(), Request{ImagePath: writeImage(t), Description: "tomato leaves"})
	if resp.Escalation.Level != advisory.LevelUnknown || !strings.Contains(resp.AdvisoryText, "Unable") {
		t.Fatalf("expected UNKNOWN advisory, got %+v %q", resp.Escalation, resp.AdvisoryText)
	}
	if resp.AudioPath == "" {
		t.Fatalf("expected audio even for unknown advice")
	}
}

func TestHandleRequestTerminalTTSFailureKeepsAdvice(t *testing.T) {
	tr := New(Config{OutputDir: t.TempDir()}, Providers{TerminalTTS: failingTTS{}})
	resp := tr.HandleRequest(context.Background(), Request{ImagePath: writeImage(t), Description: "holes in pepper leaves"})
	if !resp.OK() || resp.AdvisoryText == "" {
		t.Fatalf("expected advisory text, got %+v", resp)
	}
	if resp.AudioPath != "" || resp.Tiers["tts"] != "" {
		t.Fatalf("expected no audio when the terminal tier fails")
	}
}

func TestHandleRequestTierTimeoutFallsThrough(t *testing.T) {
	tr := New(Config{OutputDir: t.TempDir(), TierTimeout: 20 * time.Millisecond}, Providers{
		Synthesizers: []tts.Synthesizer{hangingTTS{}},
	})
	start := time.Now()
	resp := tr.HandleRequest(context.Background(), Request{ImagePath: writeImage(t), Description: "wilting corn stem"})
	if took := time.Since(start); took > 2*time.Second {
		t.Fatalf("hanging tier was not cut off, took %s", took)
	}
	if resp.Tiers["tts"] != "silent_tts" || resp.AudioPath == "" {
		t.Fatalf("expected the silent tier after the timeout, got tiers %v audio %q", resp.Tiers, resp.AudioPath)
	}
}

func TestTierNamesEndWithTerminal(t *testing.T) {
	tr := New(Config{}, Providers{
		Synthesizers: []tts.Synthesizer{elevenlabs.New(elevenlabs.Config{}), piper.New(piper.Config{})},
	})
	names := tr.TierNames()
	want := []string{"elevenlabs", "piper", "silent_tts"}
	if strings.Join(names["tts"], ",") != strings.Join(want, ",") {
		t.Fatalf("tts tiers %v, want %v", names["tts"], want)
	}
	if names["llm"][len(names["llm"])-1] != "mock_llm" || names["stt"][0] != "mock_stt" {
		t.Fatalf("unexpected tiers %v", names)
	}
}

func TestHandleRequestNotifiesOnHigh(t *testing.T) {
	n := &recordingNotifier{}
	tr := New(Config{OutputDir: t.TempDir()}, Providers{
		LLMs:     []llm.LLMAdapter{&countingLLM{text: "This is a severe, widespread blight."}},
		Notifier: n,
	})
	resp := tr.HandleRequest(context.Background(), Request{ImagePath: writeImage(t), Description: "potato leaves black"})
	if resp.Escalation.Level != advisory.LevelHigh || !resp.Notified {
		t.Fatalf("expected HIGH with notification, got %+v notified=%v", resp.Escalation, resp.Notified)
	}
	if len(n.alerts) != 1 || n.alerts[0].Crop != "Potato" || n.alerts[0].RequestID != resp.RequestID {
		t.Fatalf("unexpected alerts %+v", n.alerts)
	}
}

func TestAudioFileNamesAreUnique(t *testing.T) {
	tr := New(Config{OutputDir: t.TempDir()}, Providers{})
	img := writeImage(t)
	a := tr.HandleRequest(context.Background(), Request{ImagePath: img, Description: "tomato"})
	b := tr.HandleRequest(context.Background(), Request{ImagePath: img, Description: "tomato"})
	if a.RequestID == b.RequestID || a.AudioPath == b.AudioPath {
		t.Fatalf("expected distinct request ids and audio paths")
	}
}

func TestBuildPromptDefaultsRegion(t *testing.T) {
	p := BuildPrompt(PromptInput{FarmerText: "dry soil", Crop: "other", PlantPart: "soil", WeatherSummary: "x", WeatherRisks: []string{weather.RiskHeat}})
	if !strings.Contains(p, "Region: unspecified region") || !strings.Contains(p, "- "+weather.RiskHeat) {
		t.Fatalf("unexpected prompt:\n%s", p)
	}
}
