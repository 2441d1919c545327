package config

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// BucketLimits is one rate-governor bucket: a sliding window plus an
// independent burst window. A message must fit in both.
type BucketLimits struct {
	Limit       int           `mapstructure:"limit"`
	Window      time.Duration `mapstructure:"window"`
	BurstLimit  int           `mapstructure:"burst_limit"`
	BurstWindow time.Duration `mapstructure:"burst_window"`
}

type RateLimits struct {
	Chat      BucketLimits `mapstructure:"chat"`
	Signaling BucketLimits `mapstructure:"signaling"`
	Default   BucketLimits `mapstructure:"default"`
}

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	Secret     string        `mapstructure:"secret"`
	JWTSecret  string        `mapstructure:"jwt_secret"`
	RedisURL   string        `mapstructure:"redis_url"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`

	MaxPresenters int `mapstructure:"max_presenters"`
	MaxViewers    int `mapstructure:"max_viewers"`

	GuestSessionTTL  time.Duration `mapstructure:"guest_session_ttl"`
	ActiveUserTTL    time.Duration `mapstructure:"active_user_ttl"`
	HeartbeatTimeout time.Duration `mapstructure:"heartbeat_timeout"`
	SweepInterval    time.Duration `mapstructure:"sweep_interval"`

	Rate RateLimits `mapstructure:"rate"`

	StunServer     string `mapstructure:"stun_server"`
	TurnServer     string `mapstructure:"turn_server"`
	TurnServerTCP  string `mapstructure:"turn_server_tcp"`
	TurnUsername   string `mapstructure:"turn_username"`
	TurnCredential string `mapstructure:"turn_credential"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("redis_url", "")
	v.SetDefault("max_presenters", 2)
	v.SetDefault("max_viewers", 3)
	v.SetDefault("guest_session_ttl", "24h")
	v.SetDefault("active_user_ttl", "90s")
	v.SetDefault("heartbeat_timeout", "30s")
	v.SetDefault("sweep_interval", "1m")

	v.SetDefault("rate.chat.limit", 60)
	v.SetDefault("rate.chat.window", "60s")
	v.SetDefault("rate.chat.burst_limit", 10)
	v.SetDefault("rate.chat.burst_window", "1s")
	v.SetDefault("rate.signaling.limit", 300)
	v.SetDefault("rate.signaling.window", "60s")
	v.SetDefault("rate.signaling.burst_limit", 30)
	v.SetDefault("rate.signaling.burst_window", "1s")
	v.SetDefault("rate.default.limit", 120)
	v.SetDefault("rate.default.window", "60s")
	v.SetDefault("rate.default.burst_limit", 20)
	v.SetDefault("rate.default.burst_window", "1s")

	v.SetDefault("stun_server", "stun:stun.relay.metered.ca:80")
	v.SetDefault("turn_server", "turn:standard.relay.metered.ca:443")
	v.SetDefault("turn_server_tcp", "turns:standard.relay.metered.ca:443?transport=tcp")

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
