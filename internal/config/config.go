package config

import (
	"time"

	"github.com/spf13/viper"
	"github.com/yanun0323/errors"
)

// Config is the full runtime configuration for the trader binary.
type Config struct {
	Gateway   GatewayConfig   `mapstructure:"gateway"`
	Session   SessionConfig   `mapstructure:"session"`
	Stream    StreamConfig    `mapstructure:"stream"`
	Store     StoreConfig     `mapstructure:"store"`
	Profiling ProfilingConfig `mapstructure:"profiling"`
}

type GatewayConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	ClientID int64  `mapstructure:"client_id"`
}

type SessionConfig struct {
	ConnectTimeout       time.Duration `mapstructure:"connect_timeout"`
	RequestTimeout       time.Duration `mapstructure:"request_timeout"`
	HeartbeatEvery       time.Duration `mapstructure:"heartbeat_every"`
	MaxReconnectAttempts int           `mapstructure:"max_reconnect_attempts"`
	RateLimit            float64       `mapstructure:"rate_limit"`
}

type StreamConfig struct {
	BufferCapacity int    `mapstructure:"buffer_capacity"`
	ReconnectEvery uint64 `mapstructure:"reconnect_every"`
}

type StoreConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"ssl_mode"`
}

type ProfilingConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	ServerAddress string `mapstructure:"server_address"`
}

// Load reads configuration from the given file (or the default search
// path when empty), layered under TWS_* environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/twsgo")
	}

	v.SetEnvPrefix("TWS")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, errors.Wrap(err, "read config file")
		}
		// no config file: defaults and environment only
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "unmarshal config")
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("gateway.host", "127.0.0.1")
	v.SetDefault("gateway.port", 4002)
	v.SetDefault("gateway.client_id", 1)

	v.SetDefault("session.connect_timeout", "10s")
	v.SetDefault("session.request_timeout", "30s")
	v.SetDefault("session.heartbeat_every", "30s")
	v.SetDefault("session.max_reconnect_attempts", 0)
	v.SetDefault("session.rate_limit", 50)

	v.SetDefault("stream.buffer_capacity", 256)
	v.SetDefault("stream.reconnect_every", 0)

	v.SetDefault("store.enabled", false)
	v.SetDefault("store.host", "localhost")
	v.SetDefault("store.port", 5432)
	v.SetDefault("store.ssl_mode", "disable")

	v.SetDefault("profiling.enabled", false)
	v.SetDefault("profiling.server_address", "http://localhost:4040")
}
