// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	DB        DBConfig        `mapstructure:"db"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Resources ResourceConfig  `mapstructure:"resources"`
	Scrape    ScrapeConfig    `mapstructure:"scrape"`
	Retention RetentionConfig `mapstructure:"retention"`
	Tasks     TaskConfig      `mapstructure:"tasks"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// DBConfig controls the Postgres pool.
type DBConfig struct {
	DSN                string `mapstructure:"dsn"`
	MaxConns           int32  `mapstructure:"max_conns"`
	MinConns           int32  `mapstructure:"min_conns"`
	ConnLifetimeMinute int    `mapstructure:"conn_lifetime_minutes"`
}

// RedisConfig selects the distributed broker; disabled means in-memory.
type RedisConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
}

// ResourceConfig tunes sampling and the configurable throttle thresholds.
type ResourceConfig struct {
	DataPath              string  `mapstructure:"data_path"`
	MinFreeDiskPercent    float64 `mapstructure:"min_free_disk_percent"`
	MaxCPUPercent         float64 `mapstructure:"max_cpu_percent"`
	SampleIntervalSeconds int     `mapstructure:"sample_interval_seconds"`
}

// TavilyConfig controls the search-API scrape unit.
type TavilyConfig struct {
	Enabled      bool     `mapstructure:"enabled"`
	APIKey       string   `mapstructure:"api_key"`
	MaxResults   int      `mapstructure:"max_results"`
	RateLimitRPM int      `mapstructure:"rate_limit_rpm"`
	Queries      []string `mapstructure:"queries"`
}

// BoardSelectors maps CSS selectors for one HTML board.
type BoardSelectors struct {
	Card     string `mapstructure:"card"`
	Title    string `mapstructure:"title"`
	Company  string `mapstructure:"company"`
	Location string `mapstructure:"location"`
	Salary   string `mapstructure:"salary"`
	Link     string `mapstructure:"link"`
}

// BoardConfig describes one HTML job board unit.
type BoardConfig struct {
	Name       string         `mapstructure:"name"`
	URL        string         `mapstructure:"url"`
	Enabled    bool           `mapstructure:"enabled"`
	MaxRecords int            `mapstructure:"max_records"`
	DelayMs    int            `mapstructure:"delay_ms"`
	Selectors  BoardSelectors `mapstructure:"selectors"`
}

// ScrapeConfig bundles the source units and fan-out limits.
type ScrapeConfig struct {
	MaxConcurrent int           `mapstructure:"max_concurrent"`
	UserAgent     string        `mapstructure:"user_agent"`
	Tavily        TavilyConfig  `mapstructure:"tavily"`
	Boards        []BoardConfig `mapstructure:"boards"`
}

// RetentionConfig sets the lifecycle windows.
type RetentionConfig struct {
	ExpiredDays         int `mapstructure:"expired_days"`
	ArchiveDays         int `mapstructure:"archive_days"`
	BatchSize           int `mapstructure:"batch_size"`
	ProbeTimeoutSeconds int `mapstructure:"probe_timeout_seconds"`
}

// TaskConfig tunes the background runner.
type TaskConfig struct {
	Workers             int `mapstructure:"workers"`
	MaxAttempts         int `mapstructure:"max_attempts"`
	RetryBackoffSeconds int `mapstructure:"retry_backoff_seconds"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("JOBINTEL")
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
	v.SetDefault("logging.development", true)
	v.SetDefault("db.max_conns", 8)
	v.SetDefault("db.min_conns", 1)
	v.SetDefault("db.conn_lifetime_minutes", 30)
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("resources.data_path", "/")
	v.SetDefault("resources.min_free_disk_percent", 15)
	v.SetDefault("resources.max_cpu_percent", 85)
	v.SetDefault("resources.sample_interval_seconds", 30)
	v.SetDefault("scrape.max_concurrent", 4)
	v.SetDefault("scrape.user_agent", "jobintel/1.0")
	v.SetDefault("scrape.tavily.enabled", true)
	v.SetDefault("scrape.tavily.max_results", 20)
	v.SetDefault("scrape.tavily.rate_limit_rpm", 30)
	v.SetDefault("retention.expired_days", 30)
	v.SetDefault("retention.archive_days", 90)
	v.SetDefault("retention.batch_size", 100)
	v.SetDefault("retention.probe_timeout_seconds", 10)
	v.SetDefault("tasks.workers", 2)
	v.SetDefault("tasks.max_attempts", 3)
	v.SetDefault("tasks.retry_backoff_seconds", 30)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.Redis.Enabled && c.Redis.URL == "" {
		return fmt.Errorf("redis.url must be set when redis is enabled")
	}
	if c.Resources.MinFreeDiskPercent <= 0 || c.Resources.MinFreeDiskPercent >= 100 {
		return fmt.Errorf("resources.min_free_disk_percent must be between 0 and 100")
	}
	if c.Resources.MaxCPUPercent <= 0 || c.Resources.MaxCPUPercent > 100 {
		return fmt.Errorf("resources.max_cpu_percent must be between 0 and 100")
	}
	if c.Retention.ExpiredDays <= 0 || c.Retention.ArchiveDays <= 0 {
		return fmt.Errorf("retention windows must be > 0")
	}
	if c.Retention.ArchiveDays < c.Retention.ExpiredDays {
		return fmt.Errorf("retention.archive_days must be >= retention.expired_days")
	}
	for _, board := range c.Scrape.Boards {
		if board.Name == "" || board.URL == "" {
			return fmt.Errorf("every scrape board needs a name and url")
		}
	}
	return nil
}

// SampleInterval converts the configured seconds into a duration.
func (c Config) SampleInterval() time.Duration {
	return time.Duration(c.Resources.SampleIntervalSeconds) * time.Second
}

// ProbeTimeout converts the configured seconds into a duration.
func (c Config) ProbeTimeout() time.Duration {
	return time.Duration(c.Retention.ProbeTimeoutSeconds) * time.Second
}

// RetryBackoff converts the configured seconds into a duration.
func (c Config) RetryBackoff() time.Duration {
	return time.Duration(c.Tasks.RetryBackoffSeconds) * time.Second
}
