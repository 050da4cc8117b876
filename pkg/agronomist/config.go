// Package agronomist loads configuration, builds providers by name and
// wires them into a runnable triage application.
package agronomist

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/harunnryd/agronomist/pkg/cache"
	"github.com/harunnryd/agronomist/pkg/logging"
	"github.com/harunnryd/agronomist/pkg/notify"
	"github.com/harunnryd/agronomist/pkg/resilience"
	"github.com/harunnryd/agronomist/pkg/transports/web"
	"github.com/harunnryd/agronomist/pkg/triage"
)

// EnvPrefix prefixes every config key in the environment, e.g.
// AGRONOMIST_SERVER_ADDR.
const EnvPrefix = "AGRONOMIST"

type Config struct {
	Environment     string           `mapstructure:"environment"`
	Log             logging.Config   `mapstructure:"log"`
	OutputDir       string           `mapstructure:"output_dir" validate:"required"`
	OutputRetention time.Duration    `mapstructure:"output_retention" validate:"gte=0"`
	RegionHint      string           `mapstructure:"region_hint"`
	DefaultLocation triage.Location  `mapstructure:"default_location"`
	TierTimeout     time.Duration    `mapstructure:"tier_timeout" validate:"gt=0"`
	Server          web.Config       `mapstructure:"server"`
	Vendors         VendorsConfig    `mapstructure:"vendors"`
	Retry           RetryConfig      `mapstructure:"retry"`
	Breaker         BreakerConfig    `mapstructure:"breaker"`
	Weather         WeatherConfig    `mapstructure:"weather"`
	Classifier      ClassifierConfig `mapstructure:"classifier"`
	Metrics         MetricsConfig    `mapstructure:"metrics"`
	Notify          notify.Config    `mapstructure:"notify"`
	Privacy         PrivacyConfig    `mapstructure:"privacy"`
}

// VendorConfig names one provider tier and its free-form settings.
type VendorConfig struct {
	Provider string         `mapstructure:"provider" validate:"required"`
	Settings map[string]any `mapstructure:"settings"`
}

// VendorsConfig lists the non-terminal tiers of each chain, tried in order.
// The offline mock always runs last.
type VendorsConfig struct {
	STT []VendorConfig `mapstructure:"stt" validate:"dive"`
	LLM []VendorConfig `mapstructure:"llm" validate:"dive"`
	TTS []VendorConfig `mapstructure:"tts" validate:"dive"`
}

type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts" validate:"gte=0,lte=10"`
	BaseDelay   time.Duration `mapstructure:"base_delay" validate:"gte=0"`
	MaxDelay    time.Duration `mapstructure:"max_delay" validate:"gte=0"`
}

// Resilience converts to the retry policy used by the adapters.
func (r RetryConfig) Resilience() resilience.RetryConfig {
	return resilience.RetryConfig{
		MaxAttempts: r.MaxAttempts,
		BaseDelay:   r.BaseDelay,
		MaxDelay:    r.MaxDelay,
	}
}

type BreakerConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Threshold int           `mapstructure:"threshold" validate:"gte=0"`
	Cooldown  time.Duration `mapstructure:"cooldown" validate:"gte=0"`
}

type WeatherConfig struct {
	Provider  string         `mapstructure:"provider"`
	Settings  map[string]any `mapstructure:"settings"`
	TTL       time.Duration  `mapstructure:"ttl" validate:"gt=0"`
	Precision int            `mapstructure:"precision" validate:"gte=0,lte=6"`
	Retry     RetryConfig    `mapstructure:"retry"`
}

// ClassifierConfig overrides the tie-break order. Empty lists keep the
// declaration order of the keyword tables.
type ClassifierConfig struct {
	CropPriority []string `mapstructure:"crop_priority"`
	PartPriority []string `mapstructure:"part_priority"`
}

type MetricsConfig struct {
	File        string  `mapstructure:"file"`
	TimelineDir string  `mapstructure:"timeline_dir"`
	Latency     bool    `mapstructure:"latency"`
	SampleRate  float64 `mapstructure:"sample_rate" validate:"gte=0,lte=1"`
	AsyncBuffer int     `mapstructure:"async_buffer" validate:"gte=0"`
}

type PrivacyConfig struct {
	RedactPII bool `mapstructure:"redact_pii"`
}

// plainEnv binds the unprefixed variable names operators already use.
var plainEnv = map[string]string{
	"log.debug":          "DEBUG",
	"output_dir":         "OUTPUT_AUDIO_DIR",
	"region_hint":        "REGION_HINT",
	"notify.account_sid": "TWILIO_ACCOUNT_SID",
	"notify.auth_token":  "TWILIO_AUTH_TOKEN",
	"notify.from":        "TWILIO_FROM_NUMBER",
	"notify.to":          "TWILIO_TO_NUMBER",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", "")
	v.SetDefault("log.debug", false)
	v.SetDefault("log.max_size_mb", logging.DefaultMaxSizeMB)
	v.SetDefault("log.max_backups", logging.DefaultMaxBackups)
	v.SetDefault("log.max_age_days", 0)
	v.SetDefault("output_dir", "output_audio")
	v.SetDefault("output_retention", 0)
	v.SetDefault("region_hint", "")
	v.SetDefault("default_location.lat", triage.DefaultLocation.Lat)
	v.SetDefault("default_location.lon", triage.DefaultLocation.Lon)
	v.SetDefault("tier_timeout", triage.DefaultTierTimeout)

	v.SetDefault("server.addr", ":7860")
	v.SetDefault("server.upload_dir", "uploads")
	v.SetDefault("server.max_upload_bytes", 20<<20)
	v.SetDefault("server.request_timeout", 3*time.Minute)

	v.SetDefault("vendors.stt", []map[string]any{
		{"provider": "groq", "settings": map[string]any{"api_key": "${GROQ_API_KEY}"}},
		{"provider": "deepgram", "settings": map[string]any{"api_key": "${DEEPGRAM_API_KEY}"}},
	})
	v.SetDefault("vendors.llm", []map[string]any{
		{"provider": "openai", "settings": map[string]any{"api_key": "${OPENAI_API_KEY}", "model": "gpt-4o-mini"}},
		{"provider": "groq", "settings": map[string]any{"api_key": "${GROQ_API_KEY}", "model": "llama-3.1-8b-instant"}},
	})
	v.SetDefault("vendors.tts", []map[string]any{
		{"provider": "elevenlabs", "settings": map[string]any{"api_key": "${ELEVENLABS_API_KEY}"}},
		{"provider": "piper", "settings": map[string]any{"endpoint": "${PIPER_ENDPOINT:-" + DefaultPiperEndpoint + "}"}},
	})

	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.base_delay", time.Second)
	v.SetDefault("retry.max_delay", 4*time.Second)
	v.SetDefault("breaker.enabled", true)
	v.SetDefault("breaker.threshold", 3)
	v.SetDefault("breaker.cooldown", 30*time.Second)

	v.SetDefault("weather.provider", "openweathermap")
	v.SetDefault("weather.settings", map[string]any{"api_key": "${WEATHER_API_KEY}"})
	v.SetDefault("weather.ttl", cache.DefaultTTL)
	v.SetDefault("weather.precision", 2)
	v.SetDefault("weather.retry.max_attempts", 3)
	v.SetDefault("weather.retry.base_delay", time.Second)
	v.SetDefault("weather.retry.max_delay", 4*time.Second)

	v.SetDefault("classifier.crop_priority", []string{})
	v.SetDefault("classifier.part_priority", []string{})

	v.SetDefault("metrics.file", "")
	v.SetDefault("metrics.timeline_dir", "")
	v.SetDefault("metrics.latency", true)
	v.SetDefault("metrics.sample_rate", 1.0)
	v.SetDefault("metrics.async_buffer", 256)

	v.SetDefault("notify.account_sid", "")
	v.SetDefault("notify.auth_token", "")
	v.SetDefault("notify.from", "")
	v.SetDefault("notify.to", "")

	v.SetDefault("privacy.redact_pii", true)
}

// LoadConfig reads defaults, an optional YAML file and the environment, in
// increasing order of precedence. A .env file in the working directory is
// loaded first when present. path may be empty.
func LoadConfig(path string) (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range plainEnv {
		prefixed := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, env); err != nil {
			return Config{}, fmt.Errorf("bind env %s: %w", env, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal: %w", err)
	}

	expandEnvStrings(&cfg)
	cfg.Server.OutputDir = cfg.OutputDir

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid fields: %s", strings.Join(fields, ", "))
		}
		return err
	}
	return nil
}

func expandEnvStrings(cfg *Config) {
	expandValue(reflect.ValueOf(cfg))
	for _, list := range [][]VendorConfig{cfg.Vendors.STT, cfg.Vendors.LLM, cfg.Vendors.TTS} {
		for i := range list {
			list[i].Settings = expandSettings(list[i].Settings)
		}
	}
	cfg.Weather.Settings = expandSettings(cfg.Weather.Settings)
}

func expandSettings(settings map[string]any) map[string]any {
	if settings == nil {
		return nil
	}
	for k, v := range settings {
		settings[k] = expandAny(v)
	}
	return settings
}

// DefaultPiperEndpoint is the local Wyoming server tried after the premium
// TTS tier.
const DefaultPiperEndpoint = "tcp://localhost:10200"

// expandEnv replaces ${VAR} and ${VAR:-fallback} references.
func expandEnv(s string) string {
	return os.Expand(s, func(ref string) string {
		name, fallback, hasFallback := strings.Cut(ref, ":-")
		if v, ok := os.LookupEnv(name); ok && (v != "" || !hasFallback) {
			return v
		}
		return fallback
	})
}

func expandAny(v any) any {
	switch val := v.(type) {
	case string:
		return expandEnv(val)
	case []any:
		for i := range val {
			val[i] = expandAny(val[i])
		}
		return val
	case map[string]any:
		for k, v := range val {
			val[k] = expandAny(v)
		}
		return val
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, v := range val {
			ks, ok := k.(string)
			if !ok {
				continue
			}
			out[ks] = expandAny(v)
		}
		return out
	default:
		return v
	}
}

func expandValue(v reflect.Value) {
	if !v.IsValid() {
		return
	}
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return
		}
		expandValue(v.Elem())
		return
	}
	switch v.Kind() {
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			expandValue(v.Field(i))
		}
	case reflect.String:
		if v.CanSet() {
			v.SetString(expandEnv(v.String()))
		}
	case reflect.Slice, reflect.Array:
		for i := 0; i < v.Len(); i++ {
			expandValue(v.Index(i))
		}
	}
}
