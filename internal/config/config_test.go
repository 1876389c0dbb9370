package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
settings:
  loglevel: debug
  proxy: http://127.0.0.1:8080
  timeout: 5s
alias:
  Cold: 1BoatSLRHtKNngkdXEeobR76b53LETtpyT
exchanges:
  kraken:
    maker_fee_percent: 0.16
    taker_fee_percent: 0.26
  binance:
    api_url: http://localhost:9999
journal:
  dsn: postgres://dodo@localhost/dodo
`

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dodo.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Settings.LogLevel)
	assert.Equal(t, "http://127.0.0.1:8080", cfg.Settings.Proxy)
	assert.Equal(t, 5*time.Second, cfg.Settings.Timeout)
	assert.Equal(t, filepath.Join(filepath.Dir(path), "dodo.log"), cfg.Settings.LogFile)

	assert.Equal(t, 0.16, cfg.Exchange("kraken").MakerFeePercent)
	assert.Equal(t, 0.26, cfg.Exchange("Kraken").TakerFeePercent)
	assert.Equal(t, "http://localhost:9999", cfg.Exchange("binance").APIURL)
	assert.Equal(t, ExchangeConfig{}, cfg.Exchange("bitstamp"))

	assert.Equal(t, "postgres://dodo@localhost/dodo", cfg.Journal.DSN)

	assert.Equal(t, "1BoatSLRHtKNngkdXEeobR76b53LETtpyT", cfg.ResolveAlias("cold"))
	assert.Equal(t, "1BoatSLRHtKNngkdXEeobR76b53LETtpyT", cfg.ResolveAlias("COLD"))
	assert.Equal(t, "3J98t1WpEZ73CNmQviecrnyiWrnqRhWNLy", cfg.ResolveAlias("3J98t1WpEZ73CNmQviecrnyiWrnqRhWNLy"))
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dodo.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0o600))
	t.Setenv("DODO_SETTINGS_LOGLEVEL", "warn")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.Settings.LogLevel)
}

func TestLoadConfig_WritesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dodo.yaml")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.FileExists(t, path)
	assert.Equal(t, "info", cfg.Settings.LogLevel)
	assert.Equal(t, 30*time.Second, cfg.Settings.Timeout)
	assert.Empty(t, cfg.Settings.Proxy)
	assert.Empty(t, cfg.Journal.DSN)
	assert.Empty(t, cfg.Alias)
}
