package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	appName  = "dodo"
	fileName = "dodo.yaml"
)

// Config stores all configuration for the application.
// The values are read by viper from a config file or DODO_ prefixed environment variables.
type Config struct {
	Settings  SettingsConfig
	Alias     map[string]string
	Exchanges map[string]ExchangeConfig
	Journal   JournalConfig
}

// SettingsConfig defines process wide settings.
type SettingsConfig struct {
	LogLevel string        `mapstructure:"loglevel"`
	LogFile  string        `mapstructure:"logfile"`
	Proxy    string        `mapstructure:"proxy"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// ExchangeConfig defines settings for a specific exchange.
// Non-zero fee percents take precedence over the fees reported by the exchange.
type ExchangeConfig struct {
	MakerFeePercent float64 `mapstructure:"maker_fee_percent"`
	TakerFeePercent float64 `mapstructure:"taker_fee_percent"`
	APIURL          string  `mapstructure:"api_url"`
	WSURL           string  `mapstructure:"ws_url"`
}

// JournalConfig defines the order journal database. An empty DSN disables it.
type JournalConfig struct {
	DSN string `mapstructure:"dsn"`
}

// Exchange returns the settings of the named exchange, zero valued if absent.
func (c *Config) Exchange(name string) ExchangeConfig {
	return c.Exchanges[strings.ToLower(name)]
}

// ResolveAlias maps a withdrawal alias to its address. Unknown names are returned as is.
func (c *Config) ResolveAlias(name string) string {
	if address, ok := c.Alias[strings.ToLower(name)]; ok {
		return address
	}
	return name
}

// DefaultPath returns the config file location inside the user config directory.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate user config dir: %w", err)
	}
	return filepath.Join(dir, appName, fileName), nil
}

// LoadConfig reads configuration from file or environment variables.
// A default config file is written first if none exists at path.
func LoadConfig(path string) (config Config, err error) {
	if path == "" {
		if path, err = DefaultPath(); err != nil {
			return
		}
	}

	if _, statErr := os.Stat(path); errors.Is(statErr, fs.ErrNotExist) {
		if err = WriteDefault(path); err != nil {
			return
		}
	}

	// .env is optional
	_ = godotenv.Load()

	v := newViper(filepath.Dir(path))
	v.SetConfigFile(path)

	if err = v.ReadInConfig(); err != nil {
		err = fmt.Errorf("read config %s: %w", path, err)
		return
	}

	err = v.Unmarshal(&config)
	return
}

// WriteDefault writes a config file holding the default settings.
func WriteDefault(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	v := newViper(dir)
	v.Set("alias", map[string]string{})
	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("write default config: %w", err)
	}
	return nil
}

func newViper(dir string) *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")

	v.SetEnvPrefix(strings.ToUpper(appName))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("settings.loglevel", "info")
	v.SetDefault("settings.logfile", filepath.Join(dir, appName+".log"))
	v.SetDefault("settings.proxy", "")
	v.SetDefault("settings.timeout", "30s")
	v.SetDefault("journal.dsn", "")
	return v
}
