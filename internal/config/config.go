// Package config loads and validates scraper configuration via Viper.
package config

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/sitegrab/sitegrab/internal/scraper"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Scraper ScraperConfig `mapstructure:"scraper"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	Output  OutputConfig  `mapstructure:"output"`
	DB      DBConfig      `mapstructure:"db"`
	Storage StorageConfig `mapstructure:"storage"`
	PubSub  PubSubConfig  `mapstructure:"pubsub"`
	Ops     OpsConfig     `mapstructure:"ops"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ScraperConfig governs the fetch engine.
type ScraperConfig struct {
	Concurrency    int    `mapstructure:"concurrency"`
	DelaySeconds   int    `mapstructure:"delay_seconds"`
	UserAgent      string `mapstructure:"user_agent"`
	AcceptLanguage string `mapstructure:"accept_language"`
}

// HTTPConfig configures per-attempt HTTP behavior and retries.
type HTTPConfig struct {
	TimeoutSeconds   int `mapstructure:"timeout_seconds"`
	MaxRetries       int `mapstructure:"max_retries"`
	BackoffInitialMs int `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs     int `mapstructure:"backoff_max_ms"`
}

// OutputConfig sets the local result directory.
type OutputConfig struct {
	Dir string `mapstructure:"dir"`
}

// DBConfig controls the optional Postgres result store.
type DBConfig struct {
	DSN           string `mapstructure:"dsn"`
	PagesTable    string `mapstructure:"pages_table"`
	FailuresTable string `mapstructure:"failures_table"`
	MaxOpenConns  int    `mapstructure:"max_open_conns"`
}

// StorageConfig controls the optional GCS archive of raw HTML.
type StorageConfig struct {
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// PubSubConfig holds metadata for the optional completion-event publisher.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// OpsConfig controls the operational HTTP listener.
type OpsConfig struct {
	MetricsAddr string `mapstructure:"metrics_addr"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SITEGRAB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("scraper.concurrency", 5)
	v.SetDefault("scraper.delay_seconds", 2)
	v.SetDefault("scraper.accept_language", "en-US,en;q=0.5")
	v.SetDefault("http.timeout_seconds", 30)
	v.SetDefault("http.max_retries", 3)
	v.SetDefault("http.backoff_initial_ms", 1000)
	v.SetDefault("http.backoff_max_ms", 30000)
	v.SetDefault("output.dir", "scraping_results")
	v.SetDefault("db.pages_table", "pages")
	v.SetDefault("db.failures_table", "failures")
	v.SetDefault("storage.prefix", "pages")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Scraper.Concurrency <= 0 {
		return fmt.Errorf("scraper.concurrency must be > 0")
	}
	if c.Scraper.DelaySeconds < 0 {
		return fmt.Errorf("scraper.delay_seconds must be >= 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.HTTP.MaxRetries <= 0 {
		return fmt.Errorf("http.max_retries must be > 0")
	}
	if strings.TrimSpace(c.Output.Dir) == "" {
		return fmt.Errorf("output.dir must be set")
	}
	return nil
}

// Settings converts the loaded configuration into engine settings.
func (c Config) Settings() scraper.Settings {
	headers := http.Header{}
	headers.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
	headers.Set("Accept-Language", c.Scraper.AcceptLanguage)
	headers.Set("Connection", "keep-alive")

	return scraper.Settings{
		Timeout:           time.Duration(c.HTTP.TimeoutSeconds) * time.Second,
		MaxRetries:        c.HTTP.MaxRetries,
		BaseBackoff:       time.Duration(c.HTTP.BackoffInitialMs) * time.Millisecond,
		MaxBackoff:        time.Duration(c.HTTP.BackoffMaxMs) * time.Millisecond,
		Concurrency:       c.Scraper.Concurrency,
		InterRequestDelay: time.Duration(c.Scraper.DelaySeconds) * time.Second,
		UserAgent:         c.Scraper.UserAgent,
		Headers:           headers,
	}
}
