package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func validConfig() *Config {
	cfg := Defaults()
	for name, p := range cfg.Providers {
		p.APIKey = "key-" + name
		cfg.Providers[name] = p
	}
	return cfg
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 250, cfg.Providers["finnhub"].DailyQuota)
	assert.Equal(t, []int{9, 15}, cfg.Orchestrator.FundamentalsHours)
	assert.Equal(t, 0.001, cfg.Portfolio.FeeRate)
	assert.Equal(t, 0.30, cfg.Risk.MaxSectorPct)
	assert.Equal(t, 0.20, cfg.Risk.MaxDrawdownPct)
	assert.Equal(t, 20, cfg.Risk.MaxPositions)
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
server:
  host: 127.0.0.1
  port: 9090
providers:
  finnhub:
    enabled: true
    api_key: fh-key
    daily_quota: 250
orchestrator:
  daily_pacing: 2s
risk:
  min_confidence: 85
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "fh-key", cfg.Providers["finnhub"].APIKey)
	assert.Equal(t, 2*time.Second, cfg.Orchestrator.DailyPacing)
	assert.Equal(t, 85.0, cfg.Risk.MinConfidence)
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("TEST_FINNHUB_KEY", "secret-key")
	path := writeConfig(t, `
providers:
  finnhub:
    enabled: true
    api_key: ${TEST_FINNHUB_KEY}
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "secret-key", cfg.Providers["finnhub"].APIKey)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	assert.Error(t, err)
}

func TestValidate_OK(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
}

func TestValidate_BadPort(t *testing.T) {
	cfg := validConfig()
	cfg.Server.Port = 0
	assert.Error(t, cfg.Validate())
}

func TestValidate_EnabledProviderNeedsKey(t *testing.T) {
	cfg := validConfig()
	p := cfg.Providers["finnhub"]
	p.APIKey = ""
	cfg.Providers["finnhub"] = p
	assert.Error(t, cfg.Validate())
}

func TestValidate_UnknownProvider(t *testing.T) {
	cfg := validConfig()
	cfg.Providers["bloomberg"] = ProviderConfig{Enabled: true, APIKey: "x"}
	assert.Error(t, cfg.Validate())
}

func TestValidate_NoProvidersEnabled(t *testing.T) {
	cfg := validConfig()
	for name, p := range cfg.Providers {
		p.Enabled = false
		cfg.Providers[name] = p
	}
	assert.Error(t, cfg.Validate())
}

func TestValidate_RiskBounds(t *testing.T) {
	cfg := validConfig()
	cfg.Risk.MaxPositionPct = 1.5
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.Risk.MinConfidence = 150
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.Risk.MaxDrawdownPct = 1.2
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.Risk.MaxPositions = 0
	assert.Error(t, cfg.Validate())
}

func TestValidate_FundamentalsHours(t *testing.T) {
	cfg := validConfig()
	cfg.Orchestrator.FundamentalsHours = []int{25}
	assert.Error(t, cfg.Validate())
}

func TestValidate_ArchiveS3NeedsBucket(t *testing.T) {
	cfg := validConfig()
	cfg.Archive.Type = "s3"
	assert.Error(t, cfg.Validate())

	cfg.Archive.S3.Bucket = "moda-archive"
	assert.NoError(t, cfg.Validate())
}
