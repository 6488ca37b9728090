package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/dkeye/Relay/internal/core"
)

type Config struct {
	Mode        string `mapstructure:"mode"`
	Port        int    `mapstructure:"port"`
	WebhookPath string `mapstructure:"webhook_path"`

	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	SecretToken  string `mapstructure:"secret_token"`

	MediaTypes      uint32 `mapstructure:"media_types"`
	ConsumerBaseURL string `mapstructure:"consumer_base_url"`
	EnableGapFill   bool   `mapstructure:"enable_gap_filling"`

	MaxReconnectAttempts int           `mapstructure:"max_reconnect_attempts"`
	HeartbeatInterval    time.Duration `mapstructure:"heartbeat_interval"`
	HeartbeatTimeout     time.Duration `mapstructure:"heartbeat_timeout"`
	HandshakeTimeout     time.Duration `mapstructure:"handshake_timeout"`
	ForwardTimeout       time.Duration `mapstructure:"forward_timeout"`
	ShutdownTimeout      time.Duration `mapstructure:"shutdown_timeout"`
}

// SubscribedMedia returns the configured bitmask with the legacy "all"
// sentinel normalized.
func (c *Config) SubscribedMedia() core.MediaType {
	return core.ParseMediaTypes(c.MediaTypes)
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
	v.SetDefault("webhook_path", "/webhook")
	v.SetDefault("client_id", "")
	v.SetDefault("client_secret", "")
	v.SetDefault("secret_token", "")
	v.SetDefault("media_types", uint32(core.MediaAudio|core.MediaTranscript|core.MediaChat))
	v.SetDefault("consumer_base_url", "")
	v.SetDefault("enable_gap_filling", false)
	v.SetDefault("max_reconnect_attempts", 5)
	v.SetDefault("heartbeat_interval", "5s")
	v.SetDefault("heartbeat_timeout", "10s")
	v.SetDefault("handshake_timeout", "10s")
	v.SetDefault("forward_timeout", "3s")
	v.SetDefault("shutdown_timeout", "5s")

	v.SetEnvPrefix("relay")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("⚠️ Config file not found (%s), using defaults\n", fileName)
	} else {
		fmt.Printf("✅ Loaded config: %s\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	fmt.Printf("🧩 Mode: %s | Port: %d | Media: %s\n", cfg.Mode, cfg.Port, cfg.SubscribedMedia())
	return &cfg, nil
}
