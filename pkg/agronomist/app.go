package agronomist

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/harunnryd/agronomist/pkg/adapters/stt"
	"github.com/harunnryd/agronomist/pkg/adapters/tts"
	"github.com/harunnryd/agronomist/pkg/classify"
	"github.com/harunnryd/agronomist/pkg/llm"
	"github.com/harunnryd/agronomist/pkg/logging"
	"github.com/harunnryd/agronomist/pkg/metrics"
	"github.com/harunnryd/agronomist/pkg/notify"
	"github.com/harunnryd/agronomist/pkg/observers"
	"github.com/harunnryd/agronomist/pkg/redact"
	"github.com/harunnryd/agronomist/pkg/resilience"
	"github.com/harunnryd/agronomist/pkg/transports"
	"github.com/harunnryd/agronomist/pkg/transports/web"
	"github.com/harunnryd/agronomist/pkg/triage"
	"github.com/harunnryd/agronomist/pkg/weather"
)

// App holds the wired triage pipeline and its transports.
type App struct {
	Config   Config
	Log      *slog.Logger
	Triager  *triage.Triager
	Weather  *weather.Service
	Web      *web.Transport
	Observer metrics.Observer

	transports []transports.Transport
	closers    []func() error
	closeOnce  sync.Once
	now        func() time.Time
}

type buildOptions struct {
	registry *ProviderRegistry
	log      *slog.Logger
	observer metrics.Observer
}

type Option func(*buildOptions)

// WithRegistry replaces the built-in provider registry.
func WithRegistry(reg *ProviderRegistry) Option {
	return func(o *buildOptions) { o.registry = reg }
}

// WithLogger skips logging.InitLogger and uses log as is.
func WithLogger(log *slog.Logger) Option {
	return func(o *buildOptions) { o.log = log }
}

// WithObserver adds an observer next to the configured sinks.
func WithObserver(obs metrics.Observer) Option {
	return func(o *buildOptions) { o.observer = obs }
}

// Build wires every component described by cfg. Close releases what it
// opened.
func Build(cfg Config, opts ...Option) (*App, error) {
	o := buildOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.registry == nil {
		o.registry = DefaultRegistry()
	}

	app := &App{Config: cfg, now: time.Now}
	redact.SetEnabled(cfg.Privacy.RedactPII)

	log := o.log
	if log == nil {
		l, closer, err := logging.InitLogger(cfg.Log)
		if err != nil {
			return nil, err
		}
		log = l
		app.closers = append(app.closers, closer.Close)
	}
	app.Log = log

	obs, err := app.buildObserver(cfg.Metrics, o.observer)
	if err != nil {
		_ = app.Close()
		return nil, err
	}
	app.Observer = obs

	classifier, err := buildClassifier(cfg.Classifier)
	if err != nil {
		_ = app.Close()
		return nil, err
	}

	providers, err := app.buildProviders(o.registry)
	if err != nil {
		_ = app.Close()
		return nil, err
	}

	loc := cfg.DefaultLocation
	app.Triager = triage.New(triage.Config{
		OutputDir:       cfg.OutputDir,
		RegionHint:      cfg.RegionHint,
		DefaultLocation: &loc,
		TierTimeout:     cfg.TierTimeout,
	}, providers,
		triage.WithClassifier(classifier),
		triage.WithLogger(log),
		triage.WithObserver(obs))

	serverCfg := cfg.Server
	serverCfg.OutputDir = cfg.OutputDir
	app.Web = web.New(serverCfg, app.Triager, log)
	app.transports = append(app.transports, app.Web)

	log.Info("agronomist configured",
		slog.String("environment", cfg.Environment),
		slog.Any("stt", tierNames(providers.Transcribers, func(t stt.Transcriber) string { return t.Name() })),
		slog.Any("llm", tierNames(providers.LLMs, func(a llm.LLMAdapter) string { return a.Name() })),
		slog.Any("tts", tierNames(providers.Synthesizers, func(s tts.Synthesizer) string { return s.Name() })),
		slog.String("notifier", providers.Notifier.Name()),
		slog.String("output_dir", cfg.OutputDir))
	return app, nil
}

func (a *App) buildProviders(reg *ProviderRegistry) (triage.Providers, error) {
	var p triage.Providers
	for i, v := range a.Config.Vendors.STT {
		tr, err := reg.BuildSTT(v)
		if err != nil {
			return p, fmt.Errorf("vendors.stt[%d]: %w", i, err)
		}
		p.Transcribers = append(p.Transcribers, tr)
	}
	for i, v := range a.Config.Vendors.LLM {
		adapter, err := reg.BuildLLM(v)
		if err != nil {
			return p, fmt.Errorf("vendors.llm[%d]: %w", i, err)
		}
		p.LLMs = append(p.LLMs, a.wrapLLM(adapter))
	}
	for i, v := range a.Config.Vendors.TTS {
		s, err := reg.BuildTTS(v)
		if err != nil {
			return p, fmt.Errorf("vendors.tts[%d]: %w", i, err)
		}
		p.Synthesizers = append(p.Synthesizers, s)
	}

	wcfg := a.Config.Weather
	provider, err := reg.BuildWeather(wcfg.Provider, wcfg.Settings)
	if err != nil {
		return p, fmt.Errorf("weather: %w", err)
	}
	a.Weather = weather.NewService(provider,
		weather.WithTTL(wcfg.TTL),
		weather.WithPrecision(wcfg.Precision),
		weather.WithRetry(wcfg.Retry.Resilience()),
		weather.WithLogger(a.Log),
		weather.WithObserver(a.Observer))
	p.Weather = a.Weather
	p.Notifier = notify.New(a.Config.Notify)
	return p, nil
}

// wrapLLM applies retry outside the rate-limit breaker so an open breaker
// is not retried.
func (a *App) wrapLLM(adapter llm.LLMAdapter) llm.LLMAdapter {
	if a.Config.Breaker.Enabled {
		cb := llm.NewCircuitBreakerAdapter(adapter,
			resilience.NewCircuitBreaker(a.Config.Breaker.Threshold, a.Config.Breaker.Cooldown))
		cb.SetObserver(a.Observer)
		adapter = cb
	}
	return llm.NewRetryAdapter(adapter, a.Config.Retry.Resilience(), a.Log)
}

// buildObserver samples the log and JSONL sinks only; latency and timeline
// need every event of a request.
func (a *App) buildObserver(cfg MetricsConfig, extra metrics.Observer) (metrics.Observer, error) {
	sinks := []metrics.Observer{observers.NewLoggerObserver(a.Log)}
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
			return nil, fmt.Errorf("create metrics dir: %w", err)
		}
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open metrics file: %w", err)
		}
		a.closers = append(a.closers, f.Close)
		sinks = append(sinks, metrics.NewJSONLObserver(f))
	}
	var sampled metrics.Observer = observers.NewMultiObserver(sinks...)
	if cfg.SampleRate < 1 {
		sampled = metrics.NewSamplingObserver(sampled, cfg.SampleRate)
	}

	all := []metrics.Observer{sampled}
	if cfg.TimelineDir != "" {
		tl := observers.NewTimelineObserver(cfg.TimelineDir)
		a.closers = append(a.closers, tl.Close)
		all = append(all, tl)
	}
	if cfg.Latency {
		all = append(all, observers.NewLatencyObserver(logging.NewComponentLogger(a.Log, "latency")))
	}
	if extra != nil {
		all = append(all, extra)
	}
	var obs metrics.Observer = observers.NewMultiObserver(all...)
	if cfg.AsyncBuffer > 0 {
		async := metrics.NewAsyncObserver(obs, cfg.AsyncBuffer)
		a.closers = append(a.closers, func() error {
			async.Close()
			if n := async.Dropped(); n > 0 {
				a.Log.Warn("metrics events dropped", slog.Int64("count", n))
			}
			return nil
		})
		obs = async
	}
	return obs, nil
}

func buildClassifier(cfg ClassifierConfig) (*classify.Classifier, error) {
	crops := make([]classify.Crop, 0, len(cfg.CropPriority))
	for _, name := range cfg.CropPriority {
		c, err := classify.ParseCrop(name)
		if err != nil {
			return nil, fmt.Errorf("classifier.crop_priority: %w", err)
		}
		crops = append(crops, c)
	}
	parts := make([]classify.PlantPart, 0, len(cfg.PartPriority))
	for _, name := range cfg.PartPriority {
		p, err := classify.ParsePlantPart(name)
		if err != nil {
			return nil, fmt.Errorf("classifier.part_priority: %w", err)
		}
		parts = append(parts, p)
	}
	return classify.New(classify.WithCropPriority(crops...), classify.WithPartPriority(parts...)), nil
}

// Start purges expired audio, then starts every transport. It returns the
// first transport that fails to start.
func (a *App) Start(ctx context.Context) error {
	a.purgeOutputs()
	tiers := a.Triager.TierNames()
	a.Log.Info("fallback chains",
		slog.Any("stt", tiers["stt"]),
		slog.Any("llm", tiers["llm"]),
		slog.Any("tts", tiers["tts"]))
	if a.Config.OutputRetention > 0 {
		go a.purgeLoop(ctx)
	}
	for _, t := range a.transports {
		if err := t.Start(ctx); err != nil {
			return fmt.Errorf("start %s: %w", t.Name(), err)
		}
		fields := []any{slog.String("transport", t.Name())}
		if rr, ok := t.(transports.ReadyReporter); ok {
			for k, v := range rr.ReadyFields() {
				fields = append(fields, slog.Any(k, v))
			}
		}
		a.Log.Info("transport ready", fields...)
	}
	return nil
}

// Drain stops accepting requests and waits for in-flight ones.
func (a *App) Drain() error {
	var errs error
	for _, t := range a.transports {
		errs = errors.Join(errs, t.Stop())
	}
	return errs
}

// Close flushes observers and closes files, newest first.
func (a *App) Close() error {
	var errs error
	a.closeOnce.Do(func() {
		for i := len(a.closers) - 1; i >= 0; i-- {
			errs = errors.Join(errs, a.closers[i]())
		}
	})
	return errs
}

func (a *App) purgeLoop(ctx context.Context) {
	every := a.Config.OutputRetention / 4
	if every < time.Minute {
		every = time.Minute
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.purgeOutputs()
		}
	}
}

func (a *App) purgeOutputs() {
	if a.Config.OutputRetention <= 0 {
		return
	}
	n, err := observers.PurgeArtifacts(a.Config.OutputDir, a.Config.OutputRetention, a.now(), ".wav", ".mp3", ".txt")
	if err != nil {
		a.Log.Warn("output purge failed", slog.String("error", err.Error()))
	}
	if n > 0 {
		a.Log.Info("expired audio removed", slog.Int("files", n))
	}
}

func tierNames[T any](list []T, name func(T) string) []string {
	out := make([]string, 0, len(list)+1)
	for _, v := range list {
		out = append(out, name(v))
	}
	return append(out, "mock")
}

var _ io.Closer = (*App)(nil)
