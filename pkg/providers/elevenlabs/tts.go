package elevenlabs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/harunnryd/agronomist/pkg/adapters/tts"
	"github.com/harunnryd/agronomist/pkg/audio"
	"github.com/harunnryd/agronomist/pkg/errorsx"
	"github.com/harunnryd/agronomist/pkg/logging"
	"github.com/harunnryd/agronomist/pkg/resilience"
)

const (
	DefaultBaseURL = "wss://api.elevenlabs.io"
	DefaultVoiceID = "21m00Tcm4TlvDq8ikWAM"
	DefaultModelID = "eleven_turbo_v2_5"
)

var ErrNotConfigured = errors.New("elevenlabs api key not set")

type Config struct {
	APIKey     string        `mapstructure:"api_key"`
	VoiceID    string        `mapstructure:"voice_id"`
	ModelID    string        `mapstructure:"model_id"`
	BaseURL    string        `mapstructure:"base_url"`
	SampleRate int           `mapstructure:"sample_rate"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// Synthesizer renders a full advisory through the stream-input websocket
// and wraps the PCM it receives in a WAV container.
type Synthesizer struct {
	cfg    Config
	dialer websocket.Dialer
	logger *slog.Logger
}

func New(cfg Config) *Synthesizer {
	if cfg.VoiceID == "" {
		cfg.VoiceID = DefaultVoiceID
	}
	if cfg.ModelID == "" {
		cfg.ModelID = DefaultModelID
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Synthesizer{
		cfg:    cfg,
		dialer: websocket.Dialer{Proxy: http.ProxyFromEnvironment, HandshakeTimeout: 10 * time.Second},
		logger: logging.NewComponentLogger(slog.Default(), "elevenlabs_tts"),
	}
}

func (s *Synthesizer) Name() string { return "elevenlabs" }

func (s *Synthesizer) Synthesize(ctx context.Context, text string) (tts.Audio, error) {
	if s.cfg.APIKey == "" {
		return tts.Audio{}, errorsx.Wrap(resilience.Permanent(ErrNotConfigured), errorsx.ReasonTTSNotConfigured)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return tts.Audio{}, errorsx.Wrap(errors.New("empty text"), errorsx.ReasonTTSSynthesize)
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	u, err := s.buildURL()
	if err != nil {
		return tts.Audio{}, err
	}
	conn, resp, err := s.dialer.DialContext(ctx, u, http.Header{"xi-api-key": []string{s.cfg.APIKey}})
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusTooManyRequests {
			s.logger.Error("elevenlabs rate limit exceeded", slog.String("status", resp.Status))
			return tts.Audio{}, errorsx.Wrap(resilience.RateLimitError{Provider: "elevenlabs", Message: resp.Status}, errorsx.ReasonTTSRateLimit)
		}
		return tts.Audio{}, errorsx.Errorf(errorsx.ReasonTTSConnect, "elevenlabs connect: %w", err)
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	for _, payload := range []map[string]any{
		{
			"text": " ",
			"voice_settings": map[string]any{
				"stability":        0.5,
				"similarity_boost": 0.8,
			},
		},
		{"text": text + " ", "try_trigger_generation": true},
		{"text": ""},
	} {
		if err := send(conn, payload); err != nil {
			return tts.Audio{}, errorsx.Errorf(errorsx.ReasonTTSSynthesize, "elevenlabs send: %w", err)
		}
	}

	pcm, err := s.collect(conn)
	if err != nil {
		return tts.Audio{}, errorsx.Wrap(err, errorsx.ReasonTTSSynthesize)
	}
	if len(pcm) == 0 {
		return tts.Audio{}, errorsx.Wrap(errors.New("elevenlabs returned no audio"), errorsx.ReasonEmptyResult)
	}
	s.logger.Debug("elevenlabs synthesis complete", slog.Int("pcm_bytes", len(pcm)))
	return tts.WAV(audio.PCMToWAV(pcm, s.cfg.SampleRate, 1, 2), s.cfg.SampleRate), nil
}

func (s *Synthesizer) collect(conn *websocket.Conn) ([]byte, error) {
	var pcm []byte
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) && len(pcm) > 0 {
				return pcm, nil
			}
			return nil, fmt.Errorf("elevenlabs read: %w", err)
		}
		chunk, final, err := decodeMessage(data)
		if err != nil {
			s.logger.Warn("elevenlabs message decode error", slog.String("error", err.Error()))
			continue
		}
		pcm = append(pcm, chunk...)
		if final {
			return pcm, nil
		}
	}
}

type message struct {
	Audio   string `json:"audio"`
	IsFinal bool   `json:"isFinal"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

func decodeMessage(data []byte) ([]byte, bool, error) {
	var msg message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, false, err
	}
	if msg.Error != "" {
		return nil, false, fmt.Errorf("%s: %s", msg.Error, msg.Message)
	}
	if msg.Audio == "" {
		return nil, msg.IsFinal, nil
	}
	raw, err := base64.StdEncoding.DecodeString(msg.Audio)
	if err != nil {
		return nil, false, err
	}
	return raw, msg.IsFinal, nil
}

func (s *Synthesizer) buildURL() (string, error) {
	base, err := url.Parse(strings.TrimRight(s.cfg.BaseURL, "/"))
	if err != nil {
		return "", fmt.Errorf("elevenlabs base url: %w", err)
	}
	base.Path += "/v1/text-to-speech/" + s.cfg.VoiceID + "/stream-input"
	q := url.Values{}
	q.Set("model_id", s.cfg.ModelID)
	q.Set("output_format", fmt.Sprintf("pcm_%d", s.cfg.SampleRate))
	base.RawQuery = q.Encode()
	return base.String(), nil
}

func send(conn *websocket.Conn, payload map[string]any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, b)
}

var _ tts.Synthesizer = (*Synthesizer)(nil)
