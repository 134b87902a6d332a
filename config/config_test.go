package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestDefault_HasSensibleValues(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 3*time.Minute, cfg.ScanTimeout)
	assert.Equal(t, 20*time.Second, cfg.CaptureTimeout)
	assert.Contains(t, cfg.AllowedSuffixes, ".gov.sa")
	assert.False(t, cfg.TrustProxy)
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sda.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
port: 9090
tokens_path: tokens.yaml
watch_tokens: true
job_ttl: 30m
scan_timeout: 90s
allowed_suffixes: [".gov.sa"]
log_level: debug
`), 0o644))

	cfg, err := Load(path, env(map[string]string{
		"SDA_PORT":             "7070",
		"CHROMEDP_NO_SANDBOX":  "true",
		"TRUST_PROXY":          "1",
		"SDA_FETCH_RATE":       "2.5",
		"SDA_ALLOWED_SUFFIXES": ".gov.sa, .edu.sa",
		"SDA_CAPTURE_TIMEOUT":  "5s",
	}))
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Port, "env wins over file")
	assert.Equal(t, "tokens.yaml", cfg.TokensPath)
	assert.True(t, cfg.WatchTokens)
	assert.Equal(t, 30*time.Minute, cfg.JobTTL)
	assert.Equal(t, 90*time.Second, cfg.ScanTimeout)
	assert.Equal(t, 5*time.Second, cfg.CaptureTimeout)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.NoSandbox)
	assert.True(t, cfg.TrustProxy)
	assert.Equal(t, 2.5, cfg.FetchRate)
	assert.Equal(t, []string{".gov.sa", ".edu.sa"}, cfg.AllowedSuffixes)
	assert.Equal(t, 5*time.Minute, cfg.CleanupInterval, "unset keys keep defaults")
}

func TestLoad_DashClearsAllowList(t *testing.T) {
	cfg, err := Load("", env(map[string]string{"SDA_ALLOWED_SUFFIXES": "-"}))
	require.NoError(t, err)
	assert.Empty(t, cfg.AllowedSuffixes)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), env(nil))
	assert.ErrorContains(t, err, "read config")

	_, err = Load("", env(map[string]string{"SDA_PORT": "eighty", "SDA_JOB_TTL": "soon"}))
	assert.ErrorContains(t, err, "SDA_PORT")
	assert.ErrorContains(t, err, "SDA_JOB_TTL")

	_, err = Load("", env(map[string]string{"SDA_WATCH_TOKENS": "true"}))
	assert.ErrorContains(t, err, "watch_tokens needs tokens_path")

	_, err = Load("", env(map[string]string{"SDA_POOL_SIZE": "0"}))
	assert.ErrorContains(t, err, "pool_size")

	_, err = Load("", env(map[string]string{"SDA_CAPTURE_TIMEOUT": "-1s"}))
	assert.ErrorContains(t, err, "capture_timeout")
}
