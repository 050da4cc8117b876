// Package piper synthesizes speech through a local Piper server speaking
// the Wyoming protocol. Each event on the wire is
//
//	<json_length> <payload_length>\n
//	<json_bytes>\n
//	<payload_bytes>
package piper

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/harunnryd/agronomist/pkg/adapters/tts"
	"github.com/harunnryd/agronomist/pkg/audio"
	"github.com/harunnryd/agronomist/pkg/errorsx"
	"github.com/harunnryd/agronomist/pkg/logging"
	"github.com/harunnryd/agronomist/pkg/resilience"
)

const DefaultVoice = "en_US-lessac-medium"

var ErrNotConfigured = errors.New("piper endpoint not set")

type Config struct {
	Endpoint string        `mapstructure:"endpoint"`
	Voice    string        `mapstructure:"voice"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type Synthesizer struct {
	endpoint string
	voice    string
	timeout  time.Duration
	logger   *slog.Logger
}

func New(cfg Config) *Synthesizer {
	endpoint := strings.TrimPrefix(cfg.Endpoint, "tcp://")
	if cfg.Voice == "" {
		cfg.Voice = DefaultVoice
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Synthesizer{
		endpoint: endpoint,
		voice:    cfg.Voice,
		timeout:  cfg.Timeout,
		logger:   logging.NewComponentLogger(slog.Default(), "piper_tts"),
	}
}

func (s *Synthesizer) Name() string { return "piper" }

func (s *Synthesizer) Synthesize(ctx context.Context, text string) (tts.Audio, error) {
	if s.endpoint == "" {
		return tts.Audio{}, errorsx.Wrap(resilience.Permanent(ErrNotConfigured), errorsx.ReasonTTSNotConfigured)
	}
	if strings.TrimSpace(text) == "" {
		return tts.Audio{}, errorsx.Wrap(errors.New("empty text"), errorsx.ReasonTTSSynthesize)
	}

	dialer := net.Dialer{Timeout: 10 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", s.endpoint)
	if err != nil {
		return tts.Audio{}, errorsx.Errorf(errorsx.ReasonTTSConnect, "connecting to piper: %w", err)
	}
	defer conn.Close()
	deadline := time.Now().Add(s.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetDeadline(deadline)

	s.logger.Debug("piper synthesize", slog.Int("text_length", len(text)), slog.String("voice", s.voice))
	err = writeEvent(conn, event{
		Type: "synthesize",
		Data: map[string]any{"text": text, "voice": map[string]any{"name": s.voice}},
	}, nil)
	if err != nil {
		return tts.Audio{}, errorsx.Errorf(errorsx.ReasonTTSSynthesize, "sending synthesize event: %w", err)
	}

	wav, rate, err := readAudio(bufio.NewReader(conn))
	if err != nil {
		return tts.Audio{}, errorsx.Wrap(err, errorsx.ReasonTTSSynthesize)
	}
	return tts.WAV(wav, rate), nil
}

// readAudio consumes audio-start, audio-chunk* and audio-stop and returns
// the PCM wrapped as WAV.
func readAudio(r *bufio.Reader) ([]byte, int, error) {
	var (
		pcm      bytes.Buffer
		rate     = 22050
		channels = 1
		width    = 2
	)
	for {
		evt, payload, err := readEvent(r)
		if err != nil {
			return nil, 0, fmt.Errorf("reading piper event: %w", err)
		}
		switch evt.Type {
		case "audio-start":
			if v, ok := evt.Data["rate"].(float64); ok {
				rate = int(v)
			}
			if v, ok := evt.Data["channels"].(float64); ok {
				channels = int(v)
			}
			if v, ok := evt.Data["width"].(float64); ok {
				width = int(v)
			}
		case "audio-chunk":
			pcm.Write(payload)
		case "audio-stop":
			if pcm.Len() == 0 {
				return nil, 0, errors.New("piper returned no audio")
			}
			return audio.PCMToWAV(pcm.Bytes(), rate, channels, width), rate, nil
		case "error":
			msg, _ := evt.Data["text"].(string)
			if msg == "" {
				msg = "unknown error"
			}
			return nil, 0, fmt.Errorf("piper error: %s", msg)
		}
	}
}

type event struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data,omitempty"`
}

func writeEvent(w io.Writer, evt event, payload []byte) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshalling event: %w", err)
	}
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%d %d\n", len(body), len(payload))
	buf.Write(body)
	buf.WriteByte('\n')
	buf.Write(payload)
	_, err = w.Write(buf.Bytes())
	return err
}

func readEvent(r *bufio.Reader) (event, []byte, error) {
	header, err := r.ReadString('\n')
	if err != nil {
		return event{}, nil, fmt.Errorf("reading header: %w", err)
	}
	parts := strings.Fields(header)
	if len(parts) != 2 {
		return event{}, nil, fmt.Errorf("invalid wyoming header: %q", header)
	}
	jsonLen, err := strconv.Atoi(parts[0])
	if err != nil {
		return event{}, nil, fmt.Errorf("parsing json length: %w", err)
	}
	payloadLen, err := strconv.Atoi(parts[1])
	if err != nil {
		return event{}, nil, fmt.Errorf("parsing payload length: %w", err)
	}
	body := make([]byte, jsonLen+1)
	if _, err := io.ReadFull(r, body); err != nil {
		return event{}, nil, fmt.Errorf("reading json: %w", err)
	}
	var evt event
	if err := json.Unmarshal(body[:jsonLen], &evt); err != nil {
		return event{}, nil, fmt.Errorf("unmarshalling event: %w", err)
	}
	var payload []byte
	if payloadLen > 0 {
		payload = make([]byte, payloadLen)
		if _, err := io.ReadFull(r, payload); err != nil {
			return event{}, nil, fmt.Errorf("reading payload: %w", err)
		}
	}
	return evt, payload, nil
}

var _ tts.Synthesizer = (*Synthesizer)(nil)
