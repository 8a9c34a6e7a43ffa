package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type ServerCfg struct {
	Port                string `mapstructure:"port"`
	ReadTimeoutSeconds  int    `mapstructure:"read_timeout_seconds"`
	WriteTimeoutSeconds int    `mapstructure:"write_timeout_seconds"`
	BodyLimitMB         int    `mapstructure:"body_limit_mb"`
	RateLimitPerMin     int    `mapstructure:"rate_limit_per_min"`
}

type BackendCfg struct {
	// Mode selects the backend binding: "mongo" or "memory".
	Mode string `mapstructure:"mode"`
}

type MongoCfg struct {
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
}

type RedisCfg struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

type S3Cfg struct {
	Region string `mapstructure:"region"`
	Bucket string `mapstructure:"bucket"`
}

type KafkaCfg struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type JwtCfg struct {
	Secret     string `mapstructure:"secret"`
	TTLMinutes int    `mapstructure:"ttl_minutes"`
}

type MetricsCfg struct {
	Addr string `mapstructure:"addr"`
}

type LogCfg struct {
	Development bool `mapstructure:"development"`
}

type Config struct {
	Server  ServerCfg  `mapstructure:"server"`
	Backend BackendCfg `mapstructure:"backend"`
	Mongo   MongoCfg   `mapstructure:"mongo"`
	Redis   RedisCfg   `mapstructure:"redis"`
	S3      S3Cfg      `mapstructure:"s3"`
	Kafka   KafkaCfg   `mapstructure:"kafka"`
	JWT     JwtCfg     `mapstructure:"jwt"`
	Metrics MetricsCfg `mapstructure:"metrics"`
	Log     LogCfg     `mapstructure:"log"`
	// Derived
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	TokenTTL     time.Duration
}

func Load(path string) (*Config, error) {
	// .env is optional; real env always wins
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(path)
	v.AutomaticEnv()
	v.SetEnvPrefix("APP")
	// allow nested override: APP_SERVER_PORT etc.
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.Server.Port == "" {
		cfg.Server.Port = "8080"
	}
	if cfg.Server.ReadTimeoutSeconds == 0 {
		cfg.Server.ReadTimeoutSeconds = 15
	}
	if cfg.Server.WriteTimeoutSeconds == 0 {
		cfg.Server.WriteTimeoutSeconds = 15
	}
	if cfg.Server.BodyLimitMB == 0 {
		cfg.Server.BodyLimitMB = 10
	}
	if cfg.Server.RateLimitPerMin == 0 {
		cfg.Server.RateLimitPerMin = 120
	}
	if cfg.Backend.Mode == "" {
		cfg.Backend.Mode = "memory"
	}
	if cfg.Redis.Prefix == "" {
		cfg.Redis.Prefix = "webchat"
	}
	if cfg.JWT.TTLMinutes == 0 {
		cfg.JWT.TTLMinutes = 24 * 60
	}
	cfg.ReadTimeout = time.Duration(cfg.Server.ReadTimeoutSeconds) * time.Second
	cfg.WriteTimeout = time.Duration(cfg.Server.WriteTimeoutSeconds) * time.Second
	cfg.TokenTTL = time.Duration(cfg.JWT.TTLMinutes) * time.Minute
	return &cfg, nil
}
