package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"marketwatch/internal/logging"
)

// Config materialises application configuration. The core packages receive
// the relevant sections at construction time and never read the environment
// themselves.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Logging  logging.Config `mapstructure:"logging"`
	Database DatabaseConfig `mapstructure:"database"`
	Server   ServerConfig   `mapstructure:"server"`
	API      APIConfig      `mapstructure:"api"`
	Sync     SyncConfig     `mapstructure:"sync"`
	Export   ExportConfig   `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
}

// ServerConfig covers the HTTP API surface.
type ServerConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
	AdminToken string `mapstructure:"admin_token"`
}

// APIConfig captures upstream data source connectivity. An empty key is a
// normal, reported condition at sync time, not a startup failure.
type APIConfig struct {
	IndexKey       string        `mapstructure:"index_key"`
	IndexBaseURL   string        `mapstructure:"index_base_url"`
	RateKey        string        `mapstructure:"rate_key"`
	RateBaseURL    string        `mapstructure:"rate_base_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// SyncConfig governs the sync and seed jobs.
type SyncConfig struct {
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
	SeedDelay       time.Duration `mapstructure:"seed_delay"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("MARKETWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "marketwatch")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("server.listen_addr", ":8080")
	// Registered empty so environment-only values are seen by Unmarshal.
	v.SetDefault("server.admin_token", "")
	v.SetDefault("database.dsn", "")
	v.SetDefault("api.index_key", "")
	v.SetDefault("api.rate_key", "")

	v.SetDefault("api.index_base_url", "https://apis.data.go.kr/1160100/service/GetMarketIndexInfoService")
	v.SetDefault("api.rate_base_url", "https://www.koreaexim.go.kr/site/program/financial/exchangeJSON")
	v.SetDefault("api.request_timeout", "15s")
	v.SetDefault("api.user_agent", "marketwatch/1.0")

	v.SetDefault("sync.advisory_lock_key", int64(12345))
	v.SetDefault("sync.seed_delay", "200ms")

	v.SetDefault("export.max_data_points", 100000)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.migrations_path", "migrations")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Server.ListenAddr == "" {
		return fmt.Errorf("server.listen_addr must not be empty")
	}
	if c.API.RequestTimeout <= 0 {
		return fmt.Errorf("api.request_timeout must be greater than zero")
	}
	if c.Sync.SeedDelay < 0 {
		return fmt.Errorf("sync.seed_delay cannot be negative")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	return nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
