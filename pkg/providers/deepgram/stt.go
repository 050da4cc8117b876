package deepgram

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/harunnryd/agronomist/pkg/adapters/stt"
	"github.com/harunnryd/agronomist/pkg/errorsx"
	"github.com/harunnryd/agronomist/pkg/logging"
	"github.com/harunnryd/agronomist/pkg/resilience"

	api "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/rest"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	client "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"
)

var ErrNotConfigured = errors.New("deepgram api key not set")

type Config struct {
	APIKey      string `mapstructure:"api_key"`
	Model       string `mapstructure:"model"`
	Language    string `mapstructure:"language"`
	SmartFormat bool   `mapstructure:"smart_format"`
}

// transcribeFunc sends a recording to Deepgram and returns the first
// alternative of the first channel.
type transcribeFunc func(ctx context.Context, r io.Reader, opts *interfaces.PreRecordedTranscriptionOptions) (string, error)

// Transcriber uses Deepgram's prerecorded REST endpoint.
type Transcriber struct {
	cfg        Config
	transcribe transcribeFunc
	logger     *slog.Logger
}

func New(cfg Config) *Transcriber {
	if cfg.Model == "" {
		cfg.Model = "nova-2"
	}
	t := &Transcriber{
		cfg:    cfg,
		logger: logging.NewComponentLogger(slog.Default(), "deepgram_stt"),
	}
	if cfg.APIKey != "" {
		t.transcribe = restTranscribe(cfg.APIKey)
	}
	return t
}

func restTranscribe(apiKey string) transcribeFunc {
	client.InitWithDefault()
	dg := api.New(client.NewREST(apiKey, &interfaces.ClientOptions{}))
	return func(ctx context.Context, r io.Reader, opts *interfaces.PreRecordedTranscriptionOptions) (string, error) {
		res, err := dg.FromStream(ctx, r, opts)
		if err != nil {
			return "", err
		}
		if res == nil || res.Results == nil || len(res.Results.Channels) == 0 ||
			len(res.Results.Channels[0].Alternatives) == 0 {
			return "", nil
		}
		return res.Results.Channels[0].Alternatives[0].Transcript, nil
	}
}

func (t *Transcriber) Name() string { return "deepgram" }

func (t *Transcriber) Transcribe(ctx context.Context, audio stt.Audio) (string, error) {
	if t.transcribe == nil {
		return "", errorsx.Wrap(resilience.Permanent(ErrNotConfigured), errorsx.ReasonSTTNotConfigured)
	}
	if len(audio.Data) == 0 {
		return "", errorsx.Wrap(fmt.Errorf("empty audio"), errorsx.ReasonSTTTranscribe)
	}
	opts := &interfaces.PreRecordedTranscriptionOptions{
		Model:       t.cfg.Model,
		Language:    t.cfg.Language,
		SmartFormat: t.cfg.SmartFormat,
		Punctuate:   true,
	}
	t.logger.Debug("sending recording to deepgram",
		slog.String("model", t.cfg.Model),
		slog.Int("bytes", len(audio.Data)))
	text, err := t.transcribe(ctx, bytes.NewReader(audio.Data), opts)
	if err != nil {
		if strings.Contains(err.Error(), "429") {
			return "", errorsx.Wrap(resilience.RateLimitError{Provider: "deepgram", Message: err.Error()}, errorsx.ReasonSTTRateLimit)
		}
		return "", errorsx.Wrap(fmt.Errorf("deepgram transcribe: %w", err), errorsx.ReasonSTTTranscribe)
	}
	return strings.TrimSpace(text), nil
}

var _ stt.Transcriber = (*Transcriber)(nil)
