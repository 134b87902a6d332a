// Package config holds the service and CLI settings.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ramworld21/sda-auditor/scanner"
)

// Config holds all configurable parameters for the application.
type Config struct {
	Port            int           `yaml:"port"`
	TokensPath      string        `yaml:"tokens_path"` // "" = built-in token set
	WatchTokens     bool          `yaml:"watch_tokens"`
	CaptureDir      string        `yaml:"capture_dir"`
	PoolSize        int           `yaml:"pool_size"`
	NoSandbox       bool          `yaml:"no_sandbox"`
	UserAgent       string        `yaml:"user_agent"`
	MaxJobs         int           `yaml:"max_concurrent_jobs"`
	JobTTL          time.Duration `yaml:"job_ttl"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
	ScanTimeout     time.Duration `yaml:"scan_timeout"`
	CaptureTimeout  time.Duration `yaml:"capture_timeout"`
	AllowedSuffixes []string      `yaml:"allowed_suffixes"`
	TrustProxy      bool          `yaml:"trust_proxy"`

	FetchRate  float64 `yaml:"fetch_rate"`
	FetchBurst int     `yaml:"fetch_burst"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Default returns a Config with sensible production defaults.
func Default() Config {
	return Config{
		Port:            8080,
		CaptureDir:      "captures",
		PoolSize:        scanner.DefaultPoolSize,
		MaxJobs:         4,
		JobTTL:          time.Hour,
		CleanupInterval: 5 * time.Minute,
		ScanTimeout:     scanner.DefaultAuditTimeout,
		CaptureTimeout:  scanner.DefaultCaptureTimeout,
		AllowedSuffixes: append([]string(nil), scanner.DefaultAllowedSuffixes...),

		FetchRate:  5,
		FetchBurst: 5,

		LogLevel:  "info",
		LogFormat: "auto",

		ShutdownTimeout: 10 * time.Second,
	}
}

// Load starts from Default, applies the YAML file at path when path is not
// empty, then the environment.
func Load(path string, getenv func(string) string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if getenv == nil {
		getenv = os.Getenv
	}
	if err := cfg.applyEnv(getenv); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv(getenv func(string) string) error {
	var errs []error
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}
	flag := func(key string, dst *bool) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v == "true" || v == "1"
		}
	}

	num("SDA_PORT", &c.Port)
	str("SDA_TOKENS", &c.TokensPath)
	flag("SDA_WATCH_TOKENS", &c.WatchTokens)
	str("SDA_CAPTURE_DIR", &c.CaptureDir)
	num("SDA_POOL_SIZE", &c.PoolSize)
	str("SDA_USER_AGENT", &c.UserAgent)
	num("SDA_MAX_JOBS", &c.MaxJobs)
	dur("SDA_JOB_TTL", &c.JobTTL)
	dur("SDA_SCAN_TIMEOUT", &c.ScanTimeout)
	dur("SDA_CAPTURE_TIMEOUT", &c.CaptureTimeout)
	num("SDA_FETCH_BURST", &c.FetchBurst)
	str("SDA_LOG_LEVEL", &c.LogLevel)
	str("SDA_LOG_FORMAT", &c.LogFormat)
	flag("CHROMEDP_NO_SANDBOX", &c.NoSandbox)
	flag("TRUST_PROXY", &c.TrustProxy)

	if v := strings.TrimSpace(getenv("SDA_FETCH_RATE")); v != "" {
		r, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("SDA_FETCH_RATE: %w", err))
		} else {
			c.FetchRate = r
		}
	}
	if v, ok := lookup(getenv, "SDA_ALLOWED_SUFFIXES"); ok {
		c.AllowedSuffixes = splitList(v)
	}
	return errors.Join(errs...)
}

// lookup distinguishes an unset variable from "-", which clears a list.
func lookup(getenv func(string) string, key string) (string, bool) {
	v := strings.TrimSpace(getenv(key))
	if v == "" {
		return "", false
	}
	if v == "-" {
		return "", true
	}
	return v, true
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate rejects settings the service cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if c.PoolSize <= 0 {
		errs = append(errs, errors.New("pool_size must be positive"))
	}
	if c.MaxJobs <= 0 {
		errs = append(errs, errors.New("max_concurrent_jobs must be positive"))
	}
	if c.ScanTimeout <= 0 {
		errs = append(errs, errors.New("scan_timeout must be positive"))
	}
	if c.CaptureTimeout <= 0 {
		errs = append(errs, errors.New("capture_timeout must be positive"))
	}
	if c.JobTTL <= 0 || c.CleanupInterval <= 0 {
		errs = append(errs, errors.New("job_ttl and cleanup_interval must be positive"))
	}
	if c.FetchRate < 0 || c.FetchBurst < 0 {
		errs = append(errs, errors.New("fetch_rate and fetch_burst must not be negative"))
	}
	if c.WatchTokens && c.TokensPath == "" {
		errs = append(errs, errors.New("watch_tokens needs tokens_path"))
	}
	return errors.Join(errs...)
}
