package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Proxy     ProxyConfig     `yaml:"proxy" mapstructure:"proxy"`
	Browser   BrowserConfig   `yaml:"browser" mapstructure:"browser"`
	Harvest   HarvestConfig   `yaml:"harvest" mapstructure:"harvest"`
	Enrich    EnrichConfig    `yaml:"enrich" mapstructure:"enrich"`
	Contactly ContactlyConfig `yaml:"contactly" mapstructure:"contactly"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ProxyConfig configures the endpoint pool. Endpoints are given as
// "user:pass@host:port" or "host:port".
type ProxyConfig struct {
	Endpoints []string `yaml:"endpoints" mapstructure:"endpoints"`
}

// BrowserConfig configures the headless browser sessions.
type BrowserConfig struct {
	NavTimeoutSecs  int `yaml:"nav_timeout_secs" mapstructure:"nav_timeout_secs"`
	WaitTimeoutSecs int `yaml:"wait_timeout_secs" mapstructure:"wait_timeout_secs"`
}

// HarvestConfig configures the per-source scrape orchestration.
type HarvestConfig struct {
	SourcesPath          string `yaml:"sources_path" mapstructure:"sources_path"`
	RequestDelayMillis   int    `yaml:"request_delay_ms" mapstructure:"request_delay_ms"`
	MaxConcurrentSources int    `yaml:"max_concurrent_sources" mapstructure:"max_concurrent_sources"`
}

// RequestDelay returns the politeness delay between page loads of one source.
func (c HarvestConfig) RequestDelay() time.Duration {
	return time.Duration(c.RequestDelayMillis) * time.Millisecond
}

// EnrichConfig configures the contact-enrichment chain.
type EnrichConfig struct {
	Enabled  bool `yaml:"enabled" mapstructure:"enabled"`
	MaxLeads int  `yaml:"max_leads" mapstructure:"max_leads"`
}

// ContactlyConfig holds contact-service API settings.
type ContactlyConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// ServerConfig configures the webhook server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("HARVEST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "harvest.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("browser.nav_timeout_secs", 30)
	v.SetDefault("browser.wait_timeout_secs", 15)
	v.SetDefault("harvest.sources_path", "sources.yaml")
	v.SetDefault("harvest.request_delay_ms", 2000)
	v.SetDefault("harvest.max_concurrent_sources", 2)
	v.SetDefault("enrich.enabled", false)
	v.SetDefault("enrich.max_leads", 25)
	v.SetDefault("contactly.base_url", "https://api.contactly.io/v1")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
