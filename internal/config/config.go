package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	WS      WSConfig      `mapstructure:"ws"`
	SSE     SSEConfig     `mapstructure:"sse"`
	Session SessionConfig `mapstructure:"session"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Logging LoggingConfig `mapstructure:"logging"`
}

type ServerConfig struct {
	Addr              string        `mapstructure:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
}

type WSConfig struct {
	MaxMessageSize int64         `mapstructure:"max_message_size"`
	SendBuffer     int           `mapstructure:"send_buffer"`
	WriteWait      time.Duration `mapstructure:"write_wait"`
	PongWait       time.Duration `mapstructure:"pong_wait"`
	RatePerSecond  float64       `mapstructure:"rate_per_second"` // 0 disables limiting
	RateBurst      int           `mapstructure:"rate_burst"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"` // empty allows any origin
}

// PingPeriod is how often the server pings a peer. It must be less than
// PongWait.
func (c WSConfig) PingPeriod() time.Duration {
	return (c.PongWait * 9) / 10
}

type SSEConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Buffer  int  `mapstructure:"buffer"`
}

type SessionConfig struct {
	IDMode string `mapstructure:"id_mode"` // "sequential" or "uuid"
}

type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`
}

type LoggingConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
	File        string `mapstructure:"file"`
}

func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_header_timeout", 15*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("ws.max_message_size", 512*1024)
	v.SetDefault("ws.send_buffer", 256)
	v.SetDefault("ws.write_wait", 10*time.Second)
	v.SetDefault("ws.pong_wait", 60*time.Second)
	v.SetDefault("ws.rate_per_second", 50)
	v.SetDefault("ws.rate_burst", 100)
	v.SetDefault("ws.allowed_origins", []string{})
	v.SetDefault("sse.enabled", true)
	v.SetDefault("sse.buffer", 64)
	v.SetDefault("session.id_mode", "sequential")
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.namespace", "boardrelay")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.file", "")

	// Environment variable support
	v.SetEnvPrefix("RELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// Load config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("relay")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}
