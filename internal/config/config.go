package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds the service settings
type Config struct {
	Server struct {
		Addr            string        `mapstructure:"addr"`
		ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	} `mapstructure:"server"`
	Database struct {
		URL string `mapstructure:"url"`
	} `mapstructure:"database"`
	Auth struct {
		JWTSecret string        `mapstructure:"jwt_secret"`
		TokenTTL  time.Duration `mapstructure:"token_ttl"`
	} `mapstructure:"auth"`
	Log struct {
		Level string `mapstructure:"level"`
	} `mapstructure:"log"`
	Feed struct {
		BroadcastInterval time.Duration `mapstructure:"broadcast_interval"`

		// TriggerToken authenticates the reference price feed. Empty disables it.
		TriggerToken string `mapstructure:"trigger_token"`
	} `mapstructure:"feed"`
	CORS struct {
		AllowedOrigins []string `mapstructure:"allowed_origins"`
	} `mapstructure:"cors"`
	Engine struct {
		RecentTradesLimit int `mapstructure:"recent_trades_limit"`
	} `mapstructure:"engine"`
}

// EnvPrefix prefixes every environment override, e.g. POOLSHARE_SERVER_ADDR
const EnvPrefix = "POOLSHARE"

// Load reads defaults, an optional config file and POOLSHARE_* environment
// variables, in increasing precedence. A .env file in the working directory
// is loaded into the environment first when present.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("database.url", "")
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl", 24*time.Hour)
	v.SetDefault("log.level", "info")
	v.SetDefault("feed.broadcast_interval", 5*time.Second)
	v.SetDefault("feed.trigger_token", "")
	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("engine.recent_trades_limit", 50)
}

// Validate rejects settings the service cannot run with
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required")
	}
	if c.Auth.TokenTTL <= 0 {
		return errors.New("auth.token_ttl must be positive")
	}
	if c.Feed.BroadcastInterval <= 0 {
		return errors.New("feed.broadcast_interval must be positive")
	}
	if c.Engine.RecentTradesLimit <= 0 {
		return errors.New("engine.recent_trades_limit must be positive")
	}
	return nil
}
