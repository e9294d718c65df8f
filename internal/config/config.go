package config

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type ChannelEntry struct {
	ID   int    `mapstructure:"id"`
	Name string `mapstructure:"name"`
}

type Config struct {
	Mode          string         `mapstructure:"mode"`
	Port          int            `mapstructure:"port"`
	Secret        string         `mapstructure:"secret"`
	ReadLimit     int64          `mapstructure:"read_limit"`
	SendBuffer    int            `mapstructure:"send_buffer"`
	WriteTimeout  time.Duration  `mapstructure:"write_timeout"`
	PingPeriod    time.Duration  `mapstructure:"ping_period"`
	LeaseDuration time.Duration  `mapstructure:"lease_duration"`
	SweepInterval time.Duration  `mapstructure:"sweep_interval"`
	KickThreshold int            `mapstructure:"kick_threshold"`
	Channels      []ChannelEntry `mapstructure:"channels"`
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
	v.SetDefault("read_limit", 65536)
	v.SetDefault("send_buffer", 64)
	v.SetDefault("write_timeout", "5s")
	v.SetDefault("ping_period", "54s")
	v.SetDefault("lease_duration", "45s")
	v.SetDefault("sweep_interval", "1s")
	v.SetDefault("kick_threshold", 50)
	v.SetDefault("channels", []map[string]any{
		{"id": 1, "name": "Dispatch"},
		{"id": 2, "name": "Drivers"},
		{"id": 3, "name": "Airport"},
		{"id": 4, "name": "Events"},
	})

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
