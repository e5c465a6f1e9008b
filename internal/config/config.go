package config

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type RedisConfig struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

type StoreConfig struct {
	Backend string      `mapstructure:"backend"` // memory | redis
	Redis   RedisConfig `mapstructure:"redis"`
}

type SyncConfig struct {
	PublishInterval time.Duration `mapstructure:"publish_interval"`
	DriftThreshold  time.Duration `mapstructure:"drift_threshold"`
}

type ShareConfig struct {
	// OfferLateJoiners controls whether a sharer offers a session to
	// participants who join after the share started.
	OfferLateJoiners bool `mapstructure:"offer_late_joiners"`
	Width            int  `mapstructure:"width"`
	Height           int  `mapstructure:"height"`
	FrameRate        int  `mapstructure:"frame_rate"`
	Audio            bool `mapstructure:"audio"`
}

type ChatConfig struct {
	RateLimit  int           `mapstructure:"rate_limit"`
	RateWindow time.Duration `mapstructure:"rate_window"`
}

type Config struct {
	Mode       string      `mapstructure:"mode"`
	Port       int         `mapstructure:"port"`
	StaticPath string      `mapstructure:"static_path"`
	ICEServers []string    `mapstructure:"ice_servers"`
	Store      StoreConfig `mapstructure:"store"`
	Sync       SyncConfig  `mapstructure:"sync"`
	Share      ShareConfig `mapstructure:"share"`
	Chat       ChatConfig  `mapstructure:"chat"`
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
	v.SetDefault("static_path", "./web")
	v.SetDefault("ice_servers", []string{
		"stun:stun.l.google.com:19302",
		"stun:stun1.l.google.com:19302",
	})
	v.SetDefault("store.backend", "memory")
	v.SetDefault("store.redis.addr", "localhost:6379")
	v.SetDefault("store.redis.db", 0)
	v.SetDefault("store.redis.key_prefix", "wp:")
	v.SetDefault("sync.publish_interval", "500ms")
	v.SetDefault("sync.drift_threshold", "1s")
	v.SetDefault("share.offer_late_joiners", false)
	v.SetDefault("share.width", 1920)
	v.SetDefault("share.height", 1080)
	v.SetDefault("share.frame_rate", 30)
	v.SetDefault("share.audio", true)
	v.SetDefault("chat.rate_limit", 10)
	v.SetDefault("chat.rate_window", "10s")

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
