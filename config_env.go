package authcore

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// Env is the process environment the server needs.
type Env struct {
	JWTSecret   string
	DatabaseURL string
	RedisURL    string
	ConfigFile  string
	HTTPAddr    string
	SentryDSN   string
	AppEnv      string
}

// LoadEnv reads AUTH_JWT_SECRET, DATABASE_URL and REDIS_URL, all required,
// plus the optional AUTH_CONFIG_FILE, HTTP_ADDR, SENTRY_DSN and APP_ENV.
func LoadEnv() (Env, error) {
	var missing []string
	required := func(name string) string {
		v := strings.TrimSpace(os.Getenv(name))
		if v == "" {
			missing = append(missing, name)
		}
		return v
	}

	env := Env{
		JWTSecret:   required("AUTH_JWT_SECRET"),
		DatabaseURL: required("DATABASE_URL"),
		RedisURL:    required("REDIS_URL"),
		ConfigFile:  strings.TrimSpace(os.Getenv("AUTH_CONFIG_FILE")),
		HTTPAddr:    envOrDefault("HTTP_ADDR", ":8080"),
		SentryDSN:   strings.TrimSpace(os.Getenv("SENTRY_DSN")),
		AppEnv:      envOrDefault("APP_ENV", "development"),
	}
	if len(missing) > 0 {
		return env, fmt.Errorf("missing required env: %s", strings.Join(missing, ", "))
	}
	return env, nil
}

// Config builds the engine configuration: defaults, then the optional TOML
// overlay, then the secret from the environment.
func (e Env) Config() (Config, error) {
	cfg := DefaultConfig()
	if e.ConfigFile != "" {
		if err := LoadConfigFile(e.ConfigFile, &cfg); err != nil {
			return Config{}, err
		}
	}
	cfg.JWT.Secret = e.JWTSecret
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadConfigFile decodes a TOML file over cfg. Keys missing from the file
// keep their current values; unknown keys are an error.
func LoadConfigFile(path string, cfg *Config) error {
	if cfg == nil {
		return errors.New("nil config")
	}
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return fmt.Errorf("%w: unknown keys in %s: %s", ErrInvalidConfig, path, strings.Join(keys, ", "))
	}
	return nil
}

func envOrDefault(name, fallback string) string {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	return value
}
