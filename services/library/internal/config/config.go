package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the default config location; LIBRARY_CONFIG overrides it.
const ConfigPath = "config.yaml"

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port                    string   `yaml:"port"`
	DatabaseURL             string   `yaml:"databaseURL"`
	LogLevel                string   `yaml:"logLevel"`
	RedisAddr               string   `yaml:"redisAddr"`
	RedisPassword           string   `yaml:"redisPassword"`
	EventStream             string   `yaml:"eventStream"`
	WriteRateLimitPerMinute int      `yaml:"writeRateLimitPerMinute"`
	LateLoanDays            int      `yaml:"lateLoanDays"`
	DefaultPageSize         int      `yaml:"defaultPageSize"`
	MaxPageSize             int      `yaml:"maxPageSize"`
	TrustedProxies          []string `yaml:"trustedProxies"`
	CORSAllowedOrigins      []string `yaml:"corsAllowedOrigins"`
	ShutdownTimeoutSeconds  int      `yaml:"shutdownTimeoutSeconds"`
}

// ResolvePath returns path, LIBRARY_CONFIG, or ConfigPath in that order.
func ResolvePath(path string) string {
	if strings.TrimSpace(path) != "" {
		return path
	}
	if v := strings.TrimSpace(os.Getenv("LIBRARY_CONFIG")); v != "" {
		return v
	}
	return ConfigPath
}

// Load reads config from path, applies environment overrides and validates.
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	path = ResolvePath(path)
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *FileConfig) error {
	if v := os.Getenv("LIBRARY_PORT"); v != "" {
		cfg.Port = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("LIBRARY_EVENT_STREAM"); v != "" {
		cfg.EventStream = v
	}
	if v := os.Getenv("LIBRARY_TRUSTED_PROXIES"); v != "" {
		cfg.TrustedProxies = splitCSV(v)
	}
	if v := os.Getenv("LIBRARY_CORS_ALLOWED_ORIGINS"); v != "" {
		cfg.CORSAllowedOrigins = splitCSV(v)
	}
	ints := []struct {
		env string
		dst *int
	}{
		{"LIBRARY_WRITE_RATE_LIMIT_PER_MINUTE", &cfg.WriteRateLimitPerMinute},
		{"LIBRARY_LATE_LOAN_DAYS", &cfg.LateLoanDays},
		{"LIBRARY_DEFAULT_PAGE_SIZE", &cfg.DefaultPageSize},
		{"LIBRARY_MAX_PAGE_SIZE", &cfg.MaxPageSize},
		{"LIBRARY_SHUTDOWN_TIMEOUT_SECONDS", &cfg.ShutdownTimeoutSeconds},
	}
	for _, item := range ints {
		v := strings.TrimSpace(os.Getenv(item.env))
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: %s must be an integer, got %q", item.env, v)
		}
		*item.dst = n
	}
	return nil
}

func applyDefaults(cfg *FileConfig) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.LateLoanDays == 0 {
		cfg.LateLoanDays = 4
	}
	if cfg.DefaultPageSize == 0 {
		cfg.DefaultPageSize = 10
	}
	if cfg.MaxPageSize == 0 {
		cfg.MaxPageSize = 100
	}
	if cfg.WriteRateLimitPerMinute == 0 {
		cfg.WriteRateLimitPerMinute = 60
	}
	if cfg.ShutdownTimeoutSeconds == 0 {
		cfg.ShutdownTimeoutSeconds = 10
	}
}

func validateConfig(cfg FileConfig) error {
	if strings.TrimSpace(cfg.Port) == "" {
		return errors.New("config: port is required (set in config.yaml or LIBRARY_PORT)")
	}
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		return errors.New("config: databaseURL is required (set in config.yaml or DATABASE_URL)")
	}
	if cfg.LateLoanDays < 0 {
		return errors.New("config: lateLoanDays must not be negative")
	}
	if cfg.DefaultPageSize < 0 || cfg.MaxPageSize < 0 {
		return errors.New("config: page sizes must not be negative")
	}
	if cfg.DefaultPageSize > cfg.MaxPageSize {
		return fmt.Errorf("config: defaultPageSize (%d) exceeds maxPageSize (%d)", cfg.DefaultPageSize, cfg.MaxPageSize)
	}
	if cfg.WriteRateLimitPerMinute < 0 {
		return errors.New("config: writeRateLimitPerMinute must not be negative")
	}
	if strings.TrimSpace(cfg.EventStream) != "" && strings.TrimSpace(cfg.RedisAddr) == "" {
		return errors.New("config: eventStream requires redisAddr")
	}
	if cfg.ShutdownTimeoutSeconds < 0 {
		return errors.New("config: shutdownTimeoutSeconds must not be negative")
	}
	return nil
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}
