package agronomist

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harunnryd/agronomist/pkg/classify"
	"github.com/harunnryd/agronomist/pkg/metrics"
	"github.com/harunnryd/agronomist/pkg/transports/web"
	"github.com/harunnryd/agronomist/pkg/triage"
)

func offlineConfig(t *testing.T) Config {
	t.Helper()
	dir := t.TempDir()
	return Config{
		Environment:     "test",
		OutputDir:       filepath.Join(dir, "out"),
		DefaultLocation: triage.DefaultLocation,
		TierTimeout:     time.Second,
		Server:          web.Config{ServerAddr: "127.0.0.1:0", UploadDir: filepath.Join(dir, "uploads")},
		Vendors: VendorsConfig{
			LLM: []VendorConfig{{Provider: "openai"}},
			TTS: []VendorConfig{{Provider: "silent"}},
		},
		Retry:   RetryConfig{MaxAttempts: 1},
		Breaker: BreakerConfig{Enabled: true, Threshold: 3, Cooldown: time.Second},
		Weather: WeatherConfig{Provider: "none", TTL: time.Hour, Precision: 2},
		Metrics: MetricsConfig{
			File:        filepath.Join(dir, "metrics", "events.jsonl"),
			TimelineDir: filepath.Join(dir, "timeline"),
			Latency:     true,
			SampleRate:  1,
			AsyncBuffer: 64,
		},
	}
}

func writePNG(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "leaf.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, image.NewRGBA(image.Rect(0, 0, 4, 3))))
	return path
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDefaultChainsIncludeLocalTTS(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	dir := t.TempDir()
	cfg.OutputDir = filepath.Join(dir, "out")
	cfg.Server.OutputDir = cfg.OutputDir
	cfg.Server.UploadDir = filepath.Join(dir, "uploads")
	cfg.Weather.Provider = "none"

	app, err := Build(cfg, WithLogger(quietLogger()))
	require.NoError(t, err)
	defer app.Close()

	tiers := app.Triager.TierNames()
	assert.Equal(t, []string{"elevenlabs", "piper", "silent_tts"}, tiers["tts"])
	assert.Len(t, tiers["llm"], 3)
	assert.Len(t, tiers["stt"], 3)
}

func TestBuildAndHandleOffline(t *testing.T) {
	cfg := offlineConfig(t)
	mem := metrics.NewMemoryObserver()
	app, err := Build(cfg, WithLogger(quietLogger()), WithObserver(mem))
	require.NoError(t, err)

	resp := app.Triager.HandleRequest(context.Background(), triage.Request{
		ImagePath:   writePNG(t, t.TempDir()),
		Description: "Brown spots on my tomato leaves after the rain",
	})
	require.Nil(t, resp.Error)
	assert.Equal(t, classify.CropTomato, resp.DetectedCrop)
	assert.Equal(t, "mock_llm", resp.Tiers["llm"])
	assert.Equal(t, "silent_tts", resp.Tiers["tts"])
	assert.FileExists(t, resp.AudioPath)
	assert.Equal(t, cfg.OutputDir, filepath.Dir(resp.AudioPath))

	require.NoError(t, app.Close())
	require.NoError(t, app.Close())

	tiers := mem.Named(metrics.EventTierOutcome)
	require.NotEmpty(t, tiers)
	assert.Equal(t, resp.RequestID, tiers[0].Tags["request_id"])

	raw, err := os.ReadFile(cfg.Metrics.File)
	require.NoError(t, err)
	assert.Contains(t, string(raw), metrics.EventRequest)
	assert.FileExists(t, filepath.Join(cfg.Metrics.TimelineDir, resp.RequestID+".jsonl"))
}

func TestBuildRejectsUnknownProvider(t *testing.T) {
	cfg := offlineConfig(t)
	cfg.Vendors.LLM = []VendorConfig{{Provider: "carrier-pigeon"}}
	_, err := Build(cfg, WithLogger(quietLogger()))
	assert.ErrorContains(t, err, "vendors.llm[0]")

	cfg = offlineConfig(t)
	cfg.Classifier.CropPriority = []string{"banana"}
	_, err = Build(cfg, WithLogger(quietLogger()))
	assert.ErrorContains(t, err, "crop_priority")
}

func TestClassifierPriorityIsApplied(t *testing.T) {
	c, err := buildClassifier(ClassifierConfig{CropPriority: []string{"rice"}})
	require.NoError(t, err)
	// "grain" scores corn, wheat and rice equally
	crop, _ := c.ClassifyCrop("the grain is discoloured")
	assert.Equal(t, classify.CropRice, crop)
}

func TestWebServesThroughApp(t *testing.T) {
	cfg := offlineConfig(t)
	cfg.Metrics = MetricsConfig{SampleRate: 1}
	app, err := Build(cfg, WithLogger(quietLogger()))
	require.NoError(t, err)
	defer app.Close()

	img, err := os.ReadFile(writePNG(t, t.TempDir()))
	require.NoError(t, err)
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	require.NoError(t, w.WriteField("description", "aphids on my pepper plants"))
	part, err := w.CreateFormFile("image", "leaf.png")
	require.NoError(t, err)
	_, err = part.Write(img)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/triage", body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	rec := httptest.NewRecorder()
	app.Web.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var out web.APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, classify.CropPepper, out.DetectedCrop)
	require.NotEmpty(t, out.AudioURL)

	audio := httptest.NewRecorder()
	app.Web.Handler().ServeHTTP(audio, httptest.NewRequest(http.MethodGet, out.AudioURL, nil))
	assert.Equal(t, http.StatusOK, audio.Code)
	assert.Equal(t, "RIFF", audio.Body.String()[:4])
}

func TestStartAndDrain(t *testing.T) {
	cfg := offlineConfig(t)
	cfg.OutputRetention = time.Hour
	require.NoError(t, os.MkdirAll(cfg.OutputDir, 0o755))
	stale := filepath.Join(cfg.OutputDir, "advice-old.wav")
	require.NoError(t, os.WriteFile(stale, []byte("RIFF"), 0o644))
	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(stale, old, old))

	app, err := Build(cfg, WithLogger(quietLogger()))
	require.NoError(t, err)
	defer app.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, app.Start(ctx))
	assert.NoFileExists(t, stale)
	assert.NoError(t, app.Drain())
}
