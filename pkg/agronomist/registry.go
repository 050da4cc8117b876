package agronomist

import (
	"fmt"
	"sort"
	"strings"

	"github.com/harunnryd/agronomist/pkg/adapters/stt"
	"github.com/harunnryd/agronomist/pkg/adapters/tts"
	"github.com/harunnryd/agronomist/pkg/configutil"
	"github.com/harunnryd/agronomist/pkg/llm"
	"github.com/harunnryd/agronomist/pkg/providers/deepgram"
	"github.com/harunnryd/agronomist/pkg/providers/elevenlabs"
	"github.com/harunnryd/agronomist/pkg/providers/mock"
	"github.com/harunnryd/agronomist/pkg/providers/openai"
	"github.com/harunnryd/agronomist/pkg/providers/piper"
	"github.com/harunnryd/agronomist/pkg/weather"
)

type STTFactory func(settings map[string]any) (stt.Transcriber, error)
type LLMFactory func(settings map[string]any) (llm.LLMAdapter, error)
type TTSFactory func(settings map[string]any) (tts.Synthesizer, error)
type WeatherFactory func(settings map[string]any) (weather.Provider, error)

// ProviderRegistry maps configured provider names to constructors. Names
// are case-insensitive.
type ProviderRegistry struct {
	stt     map[string]STTFactory
	llm     map[string]LLMFactory
	tts     map[string]TTSFactory
	weather map[string]WeatherFactory
}

func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{
		stt:     make(map[string]STTFactory),
		llm:     make(map[string]LLMFactory),
		tts:     make(map[string]TTSFactory),
		weather: make(map[string]WeatherFactory),
	}
}

func (r *ProviderRegistry) RegisterSTT(name string, factory STTFactory) {
	r.stt[normalizeName(name)] = factory
}

func (r *ProviderRegistry) RegisterLLM(name string, factory LLMFactory) {
	r.llm[normalizeName(name)] = factory
}

func (r *ProviderRegistry) RegisterTTS(name string, factory TTSFactory) {
	r.tts[normalizeName(name)] = factory
}

func (r *ProviderRegistry) RegisterWeather(name string, factory WeatherFactory) {
	r.weather[normalizeName(name)] = factory
}

func (r *ProviderRegistry) BuildSTT(v VendorConfig) (stt.Transcriber, error) {
	fn := r.stt[normalizeName(v.Provider)]
	if fn == nil {
		return nil, fmt.Errorf("stt provider not registered: %s", v.Provider)
	}
	return fn(v.Settings)
}

func (r *ProviderRegistry) BuildLLM(v VendorConfig) (llm.LLMAdapter, error) {
	fn := r.llm[normalizeName(v.Provider)]
	if fn == nil {
		return nil, fmt.Errorf("llm provider not registered: %s", v.Provider)
	}
	return fn(v.Settings)
}

func (r *ProviderRegistry) BuildTTS(v VendorConfig) (tts.Synthesizer, error) {
	fn := r.tts[normalizeName(v.Provider)]
	if fn == nil {
		return nil, fmt.Errorf("tts provider not registered: %s", v.Provider)
	}
	return fn(v.Settings)
}

// BuildWeather returns a nil provider for "" and "none", which makes the
// weather service answer with the no-data snapshot.
func (r *ProviderRegistry) BuildWeather(provider string, settings map[string]any) (weather.Provider, error) {
	name := normalizeName(provider)
	if name == "" || name == "none" {
		return nil, nil
	}
	fn := r.weather[name]
	if fn == nil {
		return nil, fmt.Errorf("weather provider not registered: %s", provider)
	}
	return fn(settings)
}

// Names lists the registered providers per kind, sorted.
func (r *ProviderRegistry) Names() map[string][]string {
	return map[string][]string{
		"stt":     sortedKeys(r.stt),
		"llm":     sortedKeys(r.llm),
		"tts":     sortedKeys(r.tts),
		"weather": sortedKeys(r.weather),
	}
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

type openAISettings struct {
	APIKey      string   `mapstructure:"api_key"`
	Model       string   `mapstructure:"model"`
	BaseURL     string   `mapstructure:"base_url"`
	Temperature *float64 `mapstructure:"temperature"`
	MaxTokens   int      `mapstructure:"max_tokens"`
	Language    string   `mapstructure:"language"`
}

var openAISchema = configutil.SchemaOf(openAISettings{})

type deepgramSettings struct {
	APIKey      string `mapstructure:"api_key"`
	Model       string `mapstructure:"model"`
	Language    string `mapstructure:"language"`
	SmartFormat *bool  `mapstructure:"smart_format"`
}

func decode(kind string, settings map[string]any, schema configutil.Schema, out any) error {
	if err := configutil.ValidateSettings(settings, schema); err != nil {
		return fmt.Errorf("%s settings: %w", kind, err)
	}
	if err := configutil.DecodeSettings(settings, out); err != nil {
		return fmt.Errorf("%s settings: %w", kind, err)
	}
	return nil
}

// DefaultRegistry knows every built-in provider. A missing API key is not a
// configuration error: the tier is kept and fails fast at request time so
// the chain moves on.
func DefaultRegistry() *ProviderRegistry {
	reg := NewProviderRegistry()

	whisper := func(defaultBase string) STTFactory {
		return func(settings map[string]any) (stt.Transcriber, error) {
			var s openAISettings
			if err := decode("stt", settings, openAISchema, &s); err != nil {
				return nil, err
			}
			if s.BaseURL == "" {
				s.BaseURL = defaultBase
			}
			tr := openai.NewTranscriber(s.APIKey, s.Model, s.BaseURL)
			tr.Language = s.Language
			return tr, nil
		}
	}
	reg.RegisterSTT("openai", whisper(openai.DefaultBaseURL))
	reg.RegisterSTT("groq", whisper(openai.GroqBaseURL))
	reg.RegisterSTT("deepgram", func(settings map[string]any) (stt.Transcriber, error) {
		var s deepgramSettings
		if err := decode("stt", settings, configutil.SchemaOf(s), &s); err != nil {
			return nil, err
		}
		return deepgram.New(deepgram.Config{
			APIKey:      s.APIKey,
			Model:       s.Model,
			Language:    s.Language,
			SmartFormat: configutil.BoolValue(s.SmartFormat, true),
		}), nil
	})
	reg.RegisterSTT("mock", func(map[string]any) (stt.Transcriber, error) {
		return mock.NewTranscriber(), nil
	})

	chat := func(defaultBase, defaultModel string) LLMFactory {
		return func(settings map[string]any) (llm.LLMAdapter, error) {
			var s openAISettings
			if err := decode("llm", settings, openAISchema, &s); err != nil {
				return nil, err
			}
			if s.BaseURL == "" {
				s.BaseURL = defaultBase
			}
			if s.Model == "" {
				s.Model = defaultModel
			}
			a := openai.NewAdapter(s.APIKey, s.Model, s.BaseURL)
			if s.Temperature != nil {
				a.Temperature = *s.Temperature
			}
			if s.MaxTokens > 0 {
				a.MaxTokens = s.MaxTokens
			}
			return a, nil
		}
	}
	reg.RegisterLLM("openai", chat(openai.DefaultBaseURL, "gpt-4o-mini"))
	reg.RegisterLLM("groq", chat(openai.GroqBaseURL, "llama-3.1-8b-instant"))
	reg.RegisterLLM("mock", func(map[string]any) (llm.LLMAdapter, error) {
		return mock.NewLLMAdapter(), nil
	})

	reg.RegisterTTS("elevenlabs", func(settings map[string]any) (tts.Synthesizer, error) {
		var cfg elevenlabs.Config
		if err := decode("tts", settings, configutil.SchemaOf(cfg), &cfg); err != nil {
			return nil, err
		}
		return elevenlabs.New(cfg), nil
	})
	reg.RegisterTTS("piper", func(settings map[string]any) (tts.Synthesizer, error) {
		var cfg piper.Config
		if err := decode("tts", settings, configutil.SchemaOf(cfg, "endpoint"), &cfg); err != nil {
			return nil, err
		}
		if err := configutil.RequireString(cfg.Endpoint, "vendors.tts.settings.endpoint"); err != nil {
			return nil, err
		}
		return piper.New(cfg), nil
	})
	reg.RegisterTTS("silent", func(map[string]any) (tts.Synthesizer, error) {
		return mock.NewSynthesizer(), nil
	})

	reg.RegisterWeather("openweathermap", func(settings map[string]any) (weather.Provider, error) {
		var cfg weather.OpenWeatherConfig
		if err := decode("weather", settings, configutil.SchemaOf(cfg), &cfg); err != nil {
			return nil, err
		}
		return weather.NewOpenWeatherProvider(cfg), nil
	})
	return reg
}
