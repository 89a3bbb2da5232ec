// Package config loads and validates bot configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all configuration knobs for the bot.
type Config struct {
	Site    SiteConfig    `mapstructure:"site"`
	DB      DBConfig      `mapstructure:"db"`
	Fetch   FetchConfig   `mapstructure:"fetch"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	Post    PostConfig    `mapstructure:"post"`
	Reply   ReplyConfig   `mapstructure:"reply"`
	Ops     OpsConfig     `mapstructure:"ops"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// SiteConfig identifies the host instance and credentials.
type SiteConfig struct {
	BaseURL     string `mapstructure:"base_url"`
	AccessToken string `mapstructure:"access_token"`
	UserAgent   string `mapstructure:"user_agent"`
}

// DBConfig locates the sqlite database.
type DBConfig struct {
	Path string `mapstructure:"path"`
}

// FetchConfig governs the outbox crawl.
type FetchConfig struct {
	Concurrency       int      `mapstructure:"concurrency"`
	InstanceBlacklist []string `mapstructure:"instance_blacklist"`
	Lang              string   `mapstructure:"lang"`
	LearnFromCW       bool     `mapstructure:"learn_from_cw"`
}

// HTTPConfig configures outbound HTTP behavior.
type HTTPConfig struct {
	TimeoutSeconds   int     `mapstructure:"timeout_seconds"`
	MaxRetries       int     `mapstructure:"max_retries"`
	BackoffInitialMs int     `mapstructure:"backoff_initial_ms"`
	PerHostRPS       float64 `mapstructure:"per_host_rps"`
}

// PostConfig tunes generated posts.
type PostConfig struct {
	CW                     string `mapstructure:"cw"`
	MaxLength              int    `mapstructure:"max_length"`
	StripPairedPunctuation bool   `mapstructure:"strip_paired_punctuation"`
}

// ReplyConfig tunes the mention-listener service.
type ReplyConfig struct {
	MaxThreadLength int `mapstructure:"max_thread_length"`
}

// OpsConfig controls the optional debug/metrics listener. An empty
// address disables it.
type OpsConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("FEDIBOOKS")
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
	v.SetDefault("site.user_agent", "fedibooks/1.0 (+https://github.com/astrikos/fedibooks)")
	v.SetDefault("db.path", "posts.db")
	v.SetDefault("fetch.concurrency", 4)
	v.SetDefault("fetch.learn_from_cw", false)
	v.SetDefault("http.timeout_seconds", 15)
	v.SetDefault("http.max_retries", 2)
	v.SetDefault("http.backoff_initial_ms", 250)
	v.SetDefault("http.per_host_rps", 2.0)
	v.SetDefault("post.max_length", 500)
	v.SetDefault("post.strip_paired_punctuation", false)
	v.SetDefault("reply.max_thread_length", 3)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Site.BaseURL == "" {
		return fmt.Errorf("site.base_url must be set")
	}
	if c.Site.AccessToken == "" {
		return fmt.Errorf("site.access_token must be set")
	}
	if c.DB.Path == "" {
		return fmt.Errorf("db.path must be set")
	}
	if c.Fetch.Concurrency <= 0 {
		return fmt.Errorf("fetch.concurrency must be > 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.Reply.MaxThreadLength <= 0 {
		return fmt.Errorf("reply.max_thread_length must be > 0")
	}
	return nil
}

// HTTPTimeout converts the configured timeout into a duration.
func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// BackoffInitial converts the configured retry backoff into a duration.
func (c Config) BackoffInitial() time.Duration {
	return time.Duration(c.HTTP.BackoffInitialMs) * time.Millisecond
}

// BlacklistedInstance reports whether instance is on the blacklist.
func (c Config) BlacklistedInstance(instance string) bool {
	for _, b := range c.Fetch.InstanceBlacklist {
		if strings.EqualFold(b, instance) {
			return true
		}
	}
	return false
}
