// Package config loads the engine configuration from YAML, the environment
// and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/adapters/tts"
	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/configutil"
	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/dialogue"
	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/logging"
	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/persona"
	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/provider"
	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/providers/mock"
	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/settings"
)

type Config struct {
	Environment   string             `mapstructure:"environment"`
	Log           logging.Options    `mapstructure:"log"`
	HTTP          HTTPConfig         `mapstructure:"http"`
	Auth          AuthConfig         `mapstructure:"auth"`
	Dialogue      dialogue.Config    `mapstructure:"dialogue"`
	Session       SessionConfig      `mapstructure:"session"`
	Supervisor    SupervisorConfig   `mapstructure:"supervisor"`
	Providers     ProvidersConfig    `mapstructure:"providers"`
	Telephony     settings.Telephony `mapstructure:"telephony"`
	Escalation    EscalationConfig   `mapstructure:"escalation"`
	IVR           IVRConfig          `mapstructure:"ivr"`
	PublicBaseURL string             `mapstructure:"public_base_url"`
	Personas      []persona.Persona  `mapstructure:"personas"`
	Archive       ArchiveConfig      `mapstructure:"archive"`
	Events        EventsConfig       `mapstructure:"events"`
	Metrics       MetricsConfig      `mapstructure:"metrics"`
	Privacy       PrivacyConfig      `mapstructure:"privacy"`
}

type HTTPConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// IVRConfig bounds each voice webhook leg. The provider abandons a webhook
// after 15s, so LegTimeout must stay below that.
type IVRConfig struct {
	LegTimeout time.Duration `mapstructure:"leg_timeout"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

type SessionConfig struct {
	Grace         time.Duration `mapstructure:"grace"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

type SupervisorConfig struct {
	Window  int           `mapstructure:"window"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// ProvidersConfig holds the startup credentials. LLM and TTS blocks are free
// maps so the same schema serves the admin update.
type ProvidersConfig struct {
	Default       map[string]any `mapstructure:"default"`
	Phone         map[string]any `mapstructure:"phone"`
	TTS           map[string]any `mapstructure:"tts"`
	OllamaBaseURL string         `mapstructure:"ollama_base_url"`
	OllamaModel   string         `mapstructure:"ollama_model"`
	Mock          MockConfig     `mapstructure:"mock"`
	Breaker       BreakerConfig  `mapstructure:"breaker"`
}

type MockConfig struct {
	ResponseText string      `mapstructure:"response_text"`
	Rules        []mock.Rule `mapstructure:"rules"`
}

type BreakerConfig struct {
	Threshold int           `mapstructure:"threshold"`
	Cooldown  time.Duration `mapstructure:"cooldown"`
}

type EscalationConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

// ArchiveConfig selects where ended calls are written.
type ArchiveConfig struct {
	Backend     string        `mapstructure:"backend"`
	PostgresDSN string        `mapstructure:"postgres_dsn"`
	RedisURL    string        `mapstructure:"redis_url"`
	RedisPrefix string        `mapstructure:"redis_prefix"`
	Retention   time.Duration `mapstructure:"retention"`
}

type EventsConfig struct {
	NATSURL       string `mapstructure:"nats_url"`
	Stream        string `mapstructure:"stream"`
	SubjectPrefix string `mapstructure:"subject_prefix"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Buffer  int  `mapstructure:"buffer"`
}

type PrivacyConfig struct {
	RedactPII bool `mapstructure:"redact_pii"`
}

const (
	ArchiveNone     = "none"
	ArchiveMemory   = "memory"
	ArchivePostgres = "postgres"
	ArchiveRedis    = "redis"
)

// Load reads path (optional) after loading .env when present. Keys can be
// overridden with CALLENGINE_ prefixed variables, e.g. CALLENGINE_HTTP_ADDR.
func Load(path string) (Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return Config{}, err
	}
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("CALLENGINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if strings.TrimSpace(path) != "" {
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
	if len(cfg.Personas) == 0 {
		cfg.Personas = persona.Default()
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func loadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.read_timeout", "15s")
	v.SetDefault("http.write_timeout", "60s")
	v.SetDefault("http.shutdown_timeout", "10s")
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("dialogue.browser_max_tokens", 300)
	v.SetDefault("dialogue.phone_max_tokens", 150)
	v.SetDefault("dialogue.temperature", 0.7)
	v.SetDefault("dialogue.summary_max_tokens", 150)
	v.SetDefault("dialogue.llm_timeout", "30s")
	v.SetDefault("dialogue.tts_timeout", "15s")
	v.SetDefault("dialogue.archive_timeout", "10s")
	v.SetDefault("dialogue.phone_idle", "10m")
	v.SetDefault("dialogue.phone_llm_timeout", "6s")
	v.SetDefault("dialogue.phone_supervisor_timeout", "3s")
	v.SetDefault("ivr.leg_timeout", "12s")
	v.SetDefault("session.grace", "60s")
	v.SetDefault("session.sweep_interval", "1m")
	v.SetDefault("supervisor.window", 6)
	v.SetDefault("supervisor.timeout", "15s")
	v.SetDefault("providers.ollama_base_url", "")
	v.SetDefault("providers.ollama_model", "")
	v.SetDefault("providers.breaker.threshold", 3)
	v.SetDefault("providers.breaker.cooldown", "30s")
	v.SetDefault("escalation.timeout", "20s")
	v.SetDefault("public_base_url", "")
	v.SetDefault("archive.backend", ArchiveMemory)
	v.SetDefault("archive.redis_prefix", "calls:")
	v.SetDefault("archive.retention", "720h")
	v.SetDefault("events.nats_url", "")
	v.SetDefault("events.stream", "CALLS")
	v.SetDefault("events.subject_prefix", "calls")
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.buffer", 256)
	v.SetDefault("privacy.redact_pii", true)
	v.SetDefault("telephony.account_sid", "")
	v.SetDefault("telephony.auth_token", "")
	v.SetDefault("telephony.from_number", "")
	v.SetDefault("telephony.operator_number", "")
}

const maxWebhookWait = 15 * time.Second

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	if c.IVR.LegTimeout <= 0 || c.IVR.LegTimeout >= maxWebhookWait {
		return fmt.Errorf("ivr.leg_timeout must be between 0 and %s, got %s", maxWebhookWait, c.IVR.LegTimeout)
	}
	if phone := c.Dialogue.PhoneLLMTimeout + c.Dialogue.PhoneSupervisorTimeout; phone > c.IVR.LegTimeout {
		return fmt.Errorf("dialogue.phone_llm_timeout plus dialogue.phone_supervisor_timeout (%s) exceeds ivr.leg_timeout (%s)", phone, c.IVR.LegTimeout)
	}
	switch strings.ToLower(c.Archive.Backend) {
	case ArchiveNone, ArchiveMemory:
	case ArchivePostgres:
		if strings.TrimSpace(c.Archive.PostgresDSN) == "" {
			return fmt.Errorf("archive.postgres_dsn is required for the postgres backend")
		}
	case ArchiveRedis:
		if strings.TrimSpace(c.Archive.RedisURL) == "" {
			return fmt.Errorf("archive.redis_url is required for the redis backend")
		}
	default:
		return fmt.Errorf("archive.backend must be one of none, memory, postgres, redis, got %q", c.Archive.Backend)
	}
	if _, err := persona.NewRegistry(c.Personas); err != nil {
		return fmt.Errorf("personas: %w", err)
	}
	if _, err := c.Snapshot(); err != nil {
		return err
	}
	return nil
}

var ttsSchema = configutil.Schema{
	Required: []string{"provider"},
	Optional: []string{"api_key", "model"},
}

// Snapshot builds the initial hot-swappable settings.
func (c Config) Snapshot() (settings.Snapshot, error) {
	snap := settings.Snapshot{
		OllamaBaseURL: strings.TrimSpace(c.Providers.OllamaBaseURL),
		OllamaModel:   strings.TrimSpace(c.Providers.OllamaModel),
		Telephony:     c.Telephony,
		PublicBaseURL: strings.TrimSpace(c.PublicBaseURL),
	}
	var err error
	if snap.DefaultLLM, err = provider.DecodeLLM(c.Providers.Default); err != nil {
		return settings.Snapshot{}, fmt.Errorf("providers.default: %w", err)
	}
	if snap.PhoneLLM, err = provider.DecodeLLM(c.Providers.Phone); err != nil {
		return settings.Snapshot{}, fmt.Errorf("providers.phone: %w", err)
	}
	if len(c.Providers.TTS) > 0 {
		var speech tts.Config
		if err := ttsSchema.Decode(c.Providers.TTS, &speech); err != nil {
			return settings.Snapshot{}, fmt.Errorf("providers.tts: %w", err)
		}
		snap.TTS = &speech
	}
	if err := snap.Validate(); err != nil {
		return settings.Snapshot{}, err
	}
	return snap, nil
}

func expandEnvStrings(cfg *Config) {
	expandValue(reflect.ValueOf(cfg))
	cfg.Providers.Default = expandSettings(cfg.Providers.Default)
	cfg.Providers.Phone = expandSettings(cfg.Providers.Phone)
	cfg.Providers.TTS = expandSettings(cfg.Providers.TTS)
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

func expandAny(v any) any {
	switch val := v.(type) {
	case string:
		return os.ExpandEnv(val)
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
			v.SetString(os.ExpandEnv(v.String()))
		}
	case reflect.Slice, reflect.Array:
		for i := 0; i < v.Len(); i++ {
			expandValue(v.Index(i))
		}
	}
}
