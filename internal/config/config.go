// Package config loads and validates crawler configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	API     APIConfig     `mapstructure:"api"`
	Crawl   CrawlConfig   `mapstructure:"crawl"`
	DB      DBConfig      `mapstructure:"db"`
	Paths   PathsConfig   `mapstructure:"paths"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig controls the status HTTP server.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// APIConfig governs the upstream tag API client: endpoint, credentials
// and retry/rate-limit pacing.
type APIConfig struct {
	BaseURL               string `mapstructure:"base_url"`
	UserAgent             string `mapstructure:"user_agent"`
	Payload               string `mapstructure:"payload"`
	Timestamp             string `mapstructure:"timestamp"`
	Session               string `mapstructure:"session"`
	TimeoutSeconds        int    `mapstructure:"timeout_seconds"`
	MaxRetries            int    `mapstructure:"max_retries"`
	RetryDelaySeconds     int    `mapstructure:"retry_delay_seconds"`
	RateLimitDelaySeconds int    `mapstructure:"rate_limit_delay_seconds"`
	RequestDelayMs        int    `mapstructure:"request_delay_ms"`
}

// CrawlConfig bounds the per-tag pagination loop.
type CrawlConfig struct {
	MaxPages int `mapstructure:"max_pages"`
	// Loop detection: abort a tag when more than LoopRepeatThreshold
	// consecutive pages return an identical address count while the
	// page number is past LoopPageThreshold.
	LoopRepeatThreshold int `mapstructure:"loop_repeat_threshold"`
	LoopPageThreshold   int `mapstructure:"loop_page_threshold"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN                 string `mapstructure:"dsn"`
	MaxConns            int32  `mapstructure:"max_conns"`
	ConnectAttempts     int    `mapstructure:"connect_attempts"`
	ConnectDelaySeconds int    `mapstructure:"connect_delay_seconds"`
}

// PathsConfig locates the taxonomy document and the checkpoint file.
type PathsConfig struct {
	TaxonomyFile   string `mapstructure:"taxonomy_file"`
	CheckpointFile string `mapstructure:"checkpoint_file"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("TAGCRAWLER")
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
	v.SetDefault("server.port", 8080)
	v.SetDefault("api.base_url", "https://api.example.com")
	v.SetDefault("api.user_agent", "tagcrawler/1.0")
	v.SetDefault("api.timeout_seconds", 30)
	v.SetDefault("api.max_retries", 3)
	v.SetDefault("api.retry_delay_seconds", 5)
	v.SetDefault("api.rate_limit_delay_seconds", 60)
	v.SetDefault("api.request_delay_ms", 1000)
	v.SetDefault("crawl.max_pages", 2000)
	v.SetDefault("crawl.loop_repeat_threshold", 10)
	v.SetDefault("crawl.loop_page_threshold", 1000)
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.connect_attempts", 5)
	v.SetDefault("db.connect_delay_seconds", 3)
	v.SetDefault("paths.taxonomy_file", "data/tags_by_category.json")
	v.SetDefault("paths.checkpoint_file", "data/crawl_progress.json")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url is required")
	}
	if c.API.TimeoutSeconds <= 0 {
		return fmt.Errorf("api.timeout_seconds must be > 0")
	}
	if c.API.MaxRetries <= 0 {
		return fmt.Errorf("api.max_retries must be > 0")
	}
	if c.Crawl.MaxPages <= 0 {
		return fmt.Errorf("crawl.max_pages must be > 0")
	}
	if c.Crawl.LoopRepeatThreshold <= 0 {
		return fmt.Errorf("crawl.loop_repeat_threshold must be > 0")
	}
	if c.DB.DSN == "" {
		return fmt.Errorf("db.dsn is required")
	}
	if c.DB.ConnectAttempts <= 0 {
		return fmt.Errorf("db.connect_attempts must be > 0")
	}
	if c.Paths.TaxonomyFile == "" {
		return fmt.Errorf("paths.taxonomy_file is required")
	}
	if c.Paths.CheckpointFile == "" {
		return fmt.Errorf("paths.checkpoint_file is required")
	}
	return nil
}

// RequestTimeout converts the HTTP timeout into a duration.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.API.TimeoutSeconds) * time.Second
}
