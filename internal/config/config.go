package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"

	DefaultFallbackNudge = "چرا شروع کردی را به خاطر بیاور — هر دقیقه مطالعه تو را به هدف آیلتس نزدیک‌تر می‌کند."
)

// Config holds runtime configuration loaded from environment variables.
type Config struct {
	Port                   string        `mapstructure:"port" validate:"required,numeric"`
	StoreDriver            string        `mapstructure:"store_driver" validate:"oneof=postgres memory"`
	DatabaseURL            string        `mapstructure:"database_url" validate:"required_if=StoreDriver postgres"`
	JWTSecret              string        `mapstructure:"jwt_secret" validate:"required"`
	JWTIssuer              string        `mapstructure:"jwt_issuer" validate:"required"`
	AccessTTLSeconds       int64         `mapstructure:"access_ttl_seconds" validate:"gt=0"`
	RefreshTTLSeconds      int64         `mapstructure:"refresh_ttl_seconds" validate:"gt=0"`
	CorsOriginsRaw         string        `mapstructure:"cors_origins"`
	CorsOrigins            []string      `mapstructure:"-"`
	LogMode                string        `mapstructure:"log_mode" validate:"oneof=development production"`
	LogDir                 string        `mapstructure:"log_dir"`
	LogRetentionDays       int           `mapstructure:"log_retention_days" validate:"gte=1,lte=7"`
	OpenAIAPIKey           string        `mapstructure:"openai_api_key"`
	OpenAIModel            string        `mapstructure:"openai_model" validate:"required"`
	OpenAIBaseURL          string        `mapstructure:"openai_base_url" validate:"required,url"`
	NudgeGenerationTimeout time.Duration `mapstructure:"nudge_generation_timeout" validate:"gt=0"`
	NudgesPerReflection    int           `mapstructure:"nudges_per_reflection" validate:"gte=0,lte=10"`
	FallbackNudgeText      string        `mapstructure:"fallback_nudge_text" validate:"required"`
	OtelEnabled            bool          `mapstructure:"otel_enabled"`
	OtelServiceName        string        `mapstructure:"otel_service_name"`
}

func (c Config) AccessTTL() time.Duration {
	return time.Duration(c.AccessTTLSeconds) * time.Second
}

func (c Config) RefreshTTL() time.Duration {
	return time.Duration(c.RefreshTTLSeconds) * time.Second
}

func (c Config) Addr() string {
	return ":" + c.Port
}

// Load reads the environment. The caller loads .env first when it wants one.
func Load() (Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("port", "8080")
	v.SetDefault("store_driver", StoreDriverPostgres)
	v.SetDefault("database_url", "")
	v.SetDefault("jwt_secret", "")
	v.SetDefault("jwt_issuer", "neuronudge")
	v.SetDefault("access_ttl_seconds", 7200)
	v.SetDefault("refresh_ttl_seconds", 1209600)
	v.SetDefault("cors_origins", "")
	v.SetDefault("log_mode", "development")
	v.SetDefault("log_dir", "storage/logs")
	v.SetDefault("log_retention_days", 7)
	v.SetDefault("openai_api_key", "")
	v.SetDefault("openai_model", "gpt-4o-mini")
	v.SetDefault("openai_base_url", "https://api.openai.com/v1")
	v.SetDefault("nudge_generation_timeout", "20s")
	v.SetDefault("nudges_per_reflection", 2)
	v.SetDefault("fallback_nudge_text", DefaultFallbackNudge)
	v.SetDefault("otel_enabled", false)
	v.SetDefault("otel_service_name", "neuronudge")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("invalid configuration format: %w", err)
	}
	cfg.StoreDriver = strings.ToLower(strings.TrimSpace(cfg.StoreDriver))
	cfg.LogMode = strings.ToLower(strings.TrimSpace(cfg.LogMode))
	cfg.CorsOrigins = parseCSV(cfg.CorsOriginsRaw)

	validate, trans, err := newValidator()
	if err != nil {
		return Config{}, err
	}
	if err := validate.Struct(cfg); err != nil {
		validationErrors, ok := err.(validator.ValidationErrors)
		if !ok {
			return Config{}, fmt.Errorf("invalid configuration: %w", err)
		}
		msgs := make([]string, 0, len(validationErrors))
		for _, e := range validationErrors {
			msgs = append(msgs, e.Translate(trans))
		}
		return Config{}, fmt.Errorf("invalid configuration: %s", strings.Join(msgs, ", "))
	}
	return cfg, nil
}

func parseCSV(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		value := strings.TrimSpace(part)
		if value != "" {
			items = append(items, value)
		}
	}
	return items
}
