package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/harunnryd/agronomist/pkg/adapters/stt"
	"github.com/harunnryd/agronomist/pkg/errorsx"
	"github.com/harunnryd/agronomist/pkg/resilience"
)

// Transcriber calls an OpenAI-compatible /audio/transcriptions endpoint
// (OpenAI Whisper or Groq).
type Transcriber struct {
	APIKey   string
	Model    string
	BaseURL  string
	Language string
	Client   *http.Client
	name     string
}

func NewTranscriber(apiKey, model, baseURL string) *Transcriber {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if model == "" {
		model = "whisper-1"
		if providerName(baseURL) == "groq" {
			model = "whisper-large-v3"
		}
	}
	return &Transcriber{
		APIKey:  apiKey,
		Model:   model,
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  &http.Client{Timeout: 30 * time.Second},
		name:    providerName(baseURL) + "_whisper",
	}
}

func (t *Transcriber) Name() string { return t.name }

func (t *Transcriber) Transcribe(ctx context.Context, audio stt.Audio) (string, error) {
	if t.APIKey == "" {
		return "", errorsx.Wrap(resilience.Permanent(ErrNotConfigured), errorsx.ReasonSTTNotConfigured)
	}
	if len(audio.Data) == 0 {
		return "", errorsx.Wrap(fmt.Errorf("empty audio"), errorsx.ReasonSTTTranscribe)
	}
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	filename := audio.Filename
	if filename == "" {
		filename = "audio.wav"
	}
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("creating form file: %w", err)
	}
	if _, err := io.Copy(part, bytes.NewReader(audio.Data)); err != nil {
		return "", fmt.Errorf("writing audio: %w", err)
	}
	_ = writer.WriteField("model", t.Model)
	if t.Language != "" {
		_ = writer.WriteField("language", t.Language)
	}
	_ = writer.WriteField("response_format", "json")
	writer.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.BaseURL+"/audio/transcriptions", body)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+t.APIKey)

	resp, err := t.Client.Do(req)
	if err != nil {
		return "", errorsx.Wrap(err, errorsx.ReasonSTTTranscribe)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusTooManyRequests {
		b, _ := io.ReadAll(resp.Body)
		return "", errorsx.Wrap(resilience.RateLimitError{Provider: t.name, Message: string(b)}, errorsx.ReasonSTTRateLimit)
	}
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return "", errorsx.Wrap(fmt.Errorf("%s returned %d: %s", t.name, resp.StatusCode, string(b)), errorsx.ReasonSTTTranscribe)
	}
	var out struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", errorsx.Wrap(fmt.Errorf("decoding transcription: %w", err), errorsx.ReasonSTTTranscribe)
	}
	return strings.TrimSpace(out.Text), nil
}

var _ stt.Transcriber = (*Transcriber)(nil)
