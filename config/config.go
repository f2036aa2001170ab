package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port           string         `mapstructure:"port"`
	Environment    string         `mapstructure:"environment"`
	AllowedOrigins []string       `mapstructure:"allowed_origins"`
	JWTSecret      string         `mapstructure:"jwt_secret"`
	JoinTimeout    time.Duration  `mapstructure:"join_timeout"`
	Redis          RedisConfig    `mapstructure:"redis"`
	Database       DatabaseConfig `mapstructure:"database"`
	Provider       ProviderConfig `mapstructure:"provider"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

type ProviderConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	APIKey    string        `mapstructure:"api_key"`
	APISecret string        `mapstructure:"api_secret"`
	Timeout   time.Duration `mapstructure:"timeout"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SIGNALING")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("port", "8080")
	v.SetDefault("environment", "development")
	v.SetDefault("allowed_origins", "http://localhost:3000,http://localhost:5173")
	v.SetDefault("jwt_secret", "change-me-in-production")
	v.SetDefault("join_timeout", "800ms")
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", "6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("database.dsn", "telehealth.db")
	v.SetDefault("provider.base_url", "https://video.provider.example")
	v.SetDefault("provider.api_key", "")
	v.SetDefault("provider.api_secret", "")
	v.SetDefault("provider.timeout", "5s")
	v.SetDefault("provider.token_ttl", "1h")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Origins come in comma-separated from the environment.
	if raw := v.GetString("allowed_origins"); raw != "" {
		cfg.AllowedOrigins = strings.Split(raw, ",")
	}
	return &cfg, nil
}

// Addr returns the Redis host:port address.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%s", r.Host, r.Port)
}
