// Package triage runs one farmer question end to end: transcription,
// classification, weather context, LLM advice, escalation rules and
// speech synthesis, each external step behind a fallback chain.
package triage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/harunnryd/agronomist/pkg/adapters/stt"
	"github.com/harunnryd/agronomist/pkg/adapters/tts"
	"github.com/harunnryd/agronomist/pkg/advisory"
	"github.com/harunnryd/agronomist/pkg/audio"
	"github.com/harunnryd/agronomist/pkg/classify"
	"github.com/harunnryd/agronomist/pkg/errorsx"
	"github.com/harunnryd/agronomist/pkg/fallback"
	"github.com/harunnryd/agronomist/pkg/imagemeta"
	"github.com/harunnryd/agronomist/pkg/llm"
	"github.com/harunnryd/agronomist/pkg/logging"
	"github.com/harunnryd/agronomist/pkg/metrics"
	"github.com/harunnryd/agronomist/pkg/notify"
	"github.com/harunnryd/agronomist/pkg/providers/mock"
	"github.com/harunnryd/agronomist/pkg/redact"
	"github.com/harunnryd/agronomist/pkg/weather"
)

const DefaultTierTimeout = 45 * time.Second

type Config struct {
	OutputDir       string
	RegionHint      string
	DefaultLocation *Location
	TierTimeout     time.Duration
}

// Providers lists the non-terminal tiers of each chain in order. Nil
// terminals are replaced by the offline mocks.
type Providers struct {
	Transcribers []stt.Transcriber
	LLMs         []llm.LLMAdapter
	Synthesizers []tts.Synthesizer

	TerminalSTT stt.Transcriber
	TerminalLLM llm.LLMAdapter
	TerminalTTS tts.Synthesizer

	Weather  *weather.Service
	Notifier notify.Notifier
}

type Triager struct {
	cfg        Config
	p          Providers
	classifier *classify.Classifier
	log        *slog.Logger
	obs        metrics.Observer
	newID      func() string
	now        func() time.Time
}

type Option func(*Triager)

func WithClassifier(c *classify.Classifier) Option {
	return func(t *Triager) {
		if c != nil {
			t.classifier = c
		}
	}
}

func WithLogger(log *slog.Logger) Option {
	return func(t *Triager) {
		if log != nil {
			t.log = log
		}
	}
}

func WithObserver(obs metrics.Observer) Option {
	return func(t *Triager) { t.obs = metrics.OrNoop(obs) }
}

// WithIDGenerator replaces uuid request IDs, for tests.
func WithIDGenerator(fn func() string) Option {
	return func(t *Triager) {
		if fn != nil {
			t.newID = fn
		}
	}
}

func New(cfg Config, p Providers, opts ...Option) *Triager {
	if cfg.OutputDir == "" {
		cfg.OutputDir = "outputs"
	}
	if cfg.DefaultLocation == nil {
		loc := DefaultLocation
		cfg.DefaultLocation = &loc
	}
	if cfg.TierTimeout <= 0 {
		cfg.TierTimeout = DefaultTierTimeout
	}
	if p.TerminalSTT == nil {
		p.TerminalSTT = mock.NewTranscriber()
	}
	if p.TerminalLLM == nil {
		p.TerminalLLM = mock.NewLLMAdapter()
	}
	if p.TerminalTTS == nil {
		p.TerminalTTS = mock.NewSynthesizer()
	}
	if p.Weather == nil {
		p.Weather = weather.NewService(nil)
	}
	if p.Notifier == nil {
		p.Notifier = notify.Noop{}
	}
	t := &Triager{
		cfg:        cfg,
		p:          p,
		classifier: classify.New(),
		log:        slog.Default(),
		obs:        metrics.NoopObserver{},
		newID:      uuid.NewString,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.log = logging.NewComponentLogger(t.log, "triage")
	return t
}

// HandleRequest never returns a Go error. Validation problems come back in
// Response.Error; every later step degrades instead of failing.
func (t *Triager) HandleRequest(ctx context.Context, req Request) Response {
	start := t.now()
	resp := Response{RequestID: t.newID(), Tiers: map[string]string{}}
	t = t.scoped(resp.RequestID)
	log := t.log.With(slog.String("request_id", resp.RequestID))

	if uerr := t.validate(req, &resp); uerr != nil {
		return t.reject(log, resp, uerr)
	}

	text := strings.TrimSpace(req.Description)
	if text == "" {
		log.Info("transcribing farmer audio", slog.Int("bytes", len(req.Audio)))
		out, err := t.transcribe(ctx, log, req)
		if err != nil || strings.TrimSpace(out.Payload) == "" {
			return t.reject(log, resp, newUserError(CodeAudioNotUnderstood))
		}
		resp.Tiers["stt"] = out.TierName
		text = strings.TrimSpace(out.Payload)
	}
	resp.Description = text

	cls := t.classifier.Classify(text)
	resp.Classification = cls
	resp.DetectedCrop, resp.DetectedPart = cls.Crop, cls.PlantPart
	resp.Detection = DetectionLine(cls.Crop, cls.PlantPart)
	log.Info("analysis started",
		slog.String("crop", string(cls.Crop)),
		slog.String("part", string(cls.PlantPart)),
		slog.Float64("confidence", cls.Confidence),
		slog.String("text", redact.Text(text)))

	loc := *t.cfg.DefaultLocation
	if req.Location != nil {
		loc = *req.Location
	}
	snap := t.p.Weather.Get(ctx, loc.Lat, loc.Lon)
	resp.Weather = snap
	resp.WeatherRisks = weather.ScoreRisk(snap)
	summary := snap.Summary
	if summary == "" {
		summary = weather.Summarize(snap)
	}

	prompt := BuildPrompt(PromptInput{
		FarmerText:     text,
		Crop:           string(cls.Crop),
		PlantPart:      string(cls.PlantPart),
		RegionHint:     t.cfg.RegionHint,
		WeatherSummary: summary,
		ImageHint:      resp.Image.Hint(),
	})
	raw := ""
	if out, err := t.advise(ctx, log, prompt); err == nil {
		resp.Tiers["llm"] = out.TierName
		raw = out.Payload
	}

	// an empty answer yields the UNKNOWN disclaimer
	safe, assessment := advisory.Apply(raw)
	resp.AdvisoryText = safe
	resp.Escalation = assessment
	t.record(metrics.EventEscalation, map[string]string{"level": string(assessment.Level)})

	if out, err := t.speak(ctx, log, resp.RequestID, safe); err == nil {
		resp.Tiers["tts"] = out.TierName
		resp.AudioPath = out.Payload
	}

	if assessment.Level == advisory.LevelHigh {
		resp.Notified = t.escalate(ctx, log, resp)
	}

	log.Info("analysis complete",
		slog.String("level", string(assessment.Level)),
		slog.String("audio_path", resp.AudioPath),
		slog.Duration("took", t.now().Sub(start)))
	t.record(metrics.EventRequest, map[string]string{
		"outcome": "ok",
		"crop":    string(cls.Crop),
		"part":    string(cls.PlantPart),
		"level":   string(assessment.Level),
	})
	return resp
}

func (t *Triager) validate(req Request, resp *Response) *UserError {
	if strings.TrimSpace(req.ImagePath) == "" {
		return newUserError(CodeMissingImage)
	}
	info, err := imagemeta.Inspect(req.ImagePath)
	switch {
	case errors.Is(err, imagemeta.ErrMissing):
		return newUserError(CodeImageNotFound)
	case errors.Is(err, imagemeta.ErrNotImage):
		return newUserError(CodeInvalidImage)
	case err != nil:
		return newUserError(CodeImageNotFound)
	}
	resp.Image = info
	if strings.TrimSpace(req.Description) == "" && len(req.Audio) == 0 {
		return newUserError(CodeMissingDescription)
	}
	if req.Location != nil && !validLocation(*req.Location) {
		return newUserError(CodeInvalidLocation)
	}
	return nil
}

func (t *Triager) reject(log *slog.Logger, resp Response, uerr *UserError) Response {
	log.Warn("request rejected", slog.String("code", string(uerr.Code)))
	resp.Error = uerr
	t.record(metrics.EventRequest, map[string]string{"outcome": string(uerr.Code)})
	return resp
}

func (t *Triager) transcribe(ctx context.Context, log *slog.Logger, req Request) (fallback.Outcome[string], error) {
	in := stt.Audio{Data: req.Audio, Filename: req.AudioName, ContentType: stt.ContentTypeFor(req.AudioName)}
	tier := func(tr stt.Transcriber) fallback.Tier[string] {
		return fallback.Tier[string]{Name: tr.Name(), Attempt: func(ctx context.Context) fallback.Result[string] {
			ctx, cancel := context.WithTimeout(ctx, t.cfg.TierTimeout)
			defer cancel()
			text, err := tr.Transcribe(ctx, in)
			return fallback.FromCall(text, err, errorsx.ReasonSTTTranscribe)
		}}
	}
	tiers := make([]fallback.Tier[string], 0, len(t.p.Transcribers))
	for _, tr := range t.p.Transcribers {
		tiers = append(tiers, tier(tr))
	}
	chain := fallback.NewChain("stt", tier(t.p.TerminalSTT),
		fallback.WithTiers(tiers...),
		fallback.WithEmpty(blank),
		fallback.WithLogger[string](log),
		fallback.WithObserver[string](t.obs))
	return chain.Run(ctx)
}

func (t *Triager) advise(ctx context.Context, log *slog.Logger, prompt string) (fallback.Outcome[string], error) {
	input := llm.Prompt(SystemPrompt, prompt)
	tier := func(a llm.LLMAdapter) fallback.Tier[string] {
		return fallback.Tier[string]{Name: a.Name(), Attempt: func(ctx context.Context) fallback.Result[string] {
			ctx, cancel := context.WithTimeout(ctx, t.cfg.TierTimeout)
			defer cancel()
			resp, err := a.Generate(ctx, input)
			return fallback.FromCall(strings.TrimSpace(resp.Text), err, errorsx.ReasonLLMGenerate)
		}}
	}
	tiers := make([]fallback.Tier[string], 0, len(t.p.LLMs))
	for _, a := range t.p.LLMs {
		tiers = append(tiers, tier(a))
	}
	chain := fallback.NewChain("llm", tier(t.p.TerminalLLM),
		fallback.WithTiers(tiers...),
		fallback.WithEmpty(blank),
		fallback.WithLogger[string](log),
		fallback.WithObserver[string](t.obs))
	return chain.Run(ctx)
}

// speak synthesizes text and writes it under OutputDir. The payload is the
// written audio path.
func (t *Triager) speak(ctx context.Context, log *slog.Logger, requestID, text string) (fallback.Outcome[string], error) {
	tier := func(s tts.Synthesizer) fallback.Tier[string] {
		return fallback.Tier[string]{Name: s.Name(), Attempt: func(ctx context.Context) fallback.Result[string] {
			ctx, cancel := context.WithTimeout(ctx, t.cfg.TierTimeout)
			defer cancel()
			out, err := s.Synthesize(ctx, text)
			if err != nil {
				return fallback.FromCall("", err, errorsx.ReasonTTSSynthesize)
			}
			if len(out.Data) == 0 {
				return fallback.Fail[string](errorsx.ReasonEmptyResult, nil)
			}
			ext := out.Ext
			if ext == "" {
				ext = ".wav"
			}
			path, err := audio.WriteWithTranscript(t.cfg.OutputDir, AudioFileName(requestID, ext), out.Data, text)
			if err != nil {
				return fallback.Fail[string](errorsx.ReasonTTSWrite, err)
			}
			return fallback.Ok(path)
		}}
	}
	tiers := make([]fallback.Tier[string], 0, len(t.p.Synthesizers))
	for _, s := range t.p.Synthesizers {
		tiers = append(tiers, tier(s))
	}
	chain := fallback.NewChain("tts", tier(t.p.TerminalTTS),
		fallback.WithTiers(tiers...),
		fallback.WithLogger[string](log),
		fallback.WithObserver[string](t.obs))
	return chain.Run(ctx)
}

func (t *Triager) escalate(ctx context.Context, log *slog.Logger, resp Response) bool {
	id, err := t.p.Notifier.Notify(ctx, notify.Alert{
		RequestID: resp.RequestID,
		Crop:      resp.DetectedCrop.Title(),
		PlantPart: string(resp.DetectedPart),
		Level:     string(resp.Escalation.Level),
		Summary:   redact.Text(resp.Description),
	})
	if err != nil {
		log.Error("escalation notification failed",
			slog.String("notifier", t.p.Notifier.Name()),
			slog.String("error", err.Error()))
		return false
	}
	if id == "" {
		return false
	}
	log.Info("escalation notification sent",
		slog.String("notifier", t.p.Notifier.Name()),
		slog.String("id", id))
	return true
}

// scoped tags every event of one request with its ID.
// TierNames lists each chain's tiers in the order they are tried, terminal
// tier last.
func (t *Triager) TierNames() map[string][]string {
	out := map[string][]string{}
	for _, s := range t.p.Transcribers {
		out["stt"] = append(out["stt"], s.Name())
	}
	out["stt"] = append(out["stt"], t.p.TerminalSTT.Name())
	for _, l := range t.p.LLMs {
		out["llm"] = append(out["llm"], l.Name())
	}
	out["llm"] = append(out["llm"], t.p.TerminalLLM.Name())
	for _, s := range t.p.Synthesizers {
		out["tts"] = append(out["tts"], s.Name())
	}
	out["tts"] = append(out["tts"], t.p.TerminalTTS.Name())
	return out
}

func (t *Triager) scoped(requestID string) *Triager {
	cp := *t
	cp.obs = metrics.WithTags(t.obs, map[string]string{"request_id": requestID})
	return &cp
}

func (t *Triager) record(name string, tags map[string]string) {
	t.obs.RecordEvent(metrics.MetricsEvent{Name: name, Time: t.now(), Value: 1, Tags: tags})
}

// AudioFileName is unique per request so concurrent requests never
// overwrite each other's output.
func AudioFileName(requestID, ext string) string {
	return fmt.Sprintf("advice-%s%s", requestID, ext)
}

func blank(s string) bool { return strings.TrimSpace(s) == "" }
