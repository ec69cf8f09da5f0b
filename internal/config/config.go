package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds exporter configuration loaded from the environment.
type Config struct {
	AppEnv               string
	Addr                 string
	FlowerHosts          []string
	PollInterval         time.Duration
	ConnRetryDelay       time.Duration
	StatusRetryDelay     time.Duration
	RequestTimeout       time.Duration
	LogFormat            string
	LogLevel             string
	TracingEnabled       bool
	OTLPEndpoint         string
	TracingSamplingRatio float64
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:               valueOrDefault(k.String("APP_ENV"), "development"),
		Addr:                 valueOrDefault(k.String("ADDR"), "0.0.0.0:8888"),
		FlowerHosts:          splitHosts(valueOrDefault(k.String("FLOWER_HOSTS_LIST"), "http://127.0.0.1:5555")),
		PollInterval:         parseDuration(k.String("POLL_INTERVAL"), "1s"),
		ConnRetryDelay:       parseDuration(k.String("CONN_RETRY_DELAY"), "5s"),
		StatusRetryDelay:     parseDuration(k.String("STATUS_RETRY_DELAY"), "1s"),
		RequestTimeout:       parseDuration(k.String("REQUEST_TIMEOUT"), "10s"),
		LogFormat:            valueOrDefault(k.String("LOG_FORMAT"), "json"),
		LogLevel:             valueOrDefault(k.String("LOG_LEVEL"), "info"),
		TracingEnabled:       parseBool(k.String("OBS_ENABLE_TRACING")),
		OTLPEndpoint:         strings.TrimSpace(k.String("OBS_OTLP_ENDPOINT")),
		TracingSamplingRatio: k.Float64("OBS_TRACING_SAMPLING_RATIO"),
	}
	if cfg.TracingSamplingRatio <= 0 {
		cfg.TracingSamplingRatio = 1.0
	}

	if len(cfg.FlowerHosts) == 0 {
		return nil, fmt.Errorf("FLOWER_HOSTS_LIST must name at least one host")
	}
	// The host string is used verbatim as the "flower" label value, so two
	// identical entries would silently merge their series.
	if dup := firstDuplicate(cfg.FlowerHosts); dup != "" {
		return nil, fmt.Errorf("FLOWER_HOSTS_LIST contains duplicate host %q", dup)
	}

	return cfg, nil
}

// HTTPAddr returns the address the scrape server should bind to.
func (c *Config) HTTPAddr() string {
	addr := strings.TrimSpace(c.Addr)
	if addr == "" {
		return "0.0.0.0:8888"
	}
	return addr
}

func splitHosts(value string) []string {
	fields := strings.FieldsFunc(value, func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\n' || r == ','
	})
	result := make([]string, 0, len(fields))
	for _, field := range fields {
		trimmed := strings.TrimRight(strings.TrimSpace(field), "/")
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func firstDuplicate(values []string) string {
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			return v
		}
		seen[v] = struct{}{}
	}
	return ""
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
