// Package config loads the configuration shared by cmd/netctl and
// cmd/respd: a single Config struct assembled from defaults, an optional
// YAML file, environment variables, and CLI flags, in that increasing
// order of precedence, the way the teacher's pkg/config/config.go layers
// its own settings.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config is the full set of knobs the demo binaries expose.
type Config struct {
	// ListenName is the host:service this process listens on, parsed
	// with net.ParseName.
	ListenName string `mapstructure:"listen_name" validate:"required"`

	// ReconnectMode selects net/resp.Client's behavior on transport
	// failure: "always", "once", or "never".
	ReconnectMode string `mapstructure:"reconnect_mode" validate:"omitempty,oneof=always once never"`

	// ConnectTimeout is loaded and validated but not read by either
	// binary; net/resp.Client always uses its own fixed 10s connect
	// timeout.
	ConnectTimeout time.Duration `mapstructure:"connect_timeout" validate:"gt=0"`

	// CallTimeout is loaded and validated but not read by either binary;
	// net/resp.Client always uses its own fixed 10s per-call timeout.
	CallTimeout time.Duration `mapstructure:"call_timeout" validate:"gt=0"`

	// LogLevel is one of "debug", "info", "warn", "error".
	LogLevel string `mapstructure:"log_level" validate:"omitempty,oneof=debug info warn error"`

	// MetricsAddr, if non-empty, is the address cmd/respd serves
	// Prometheus metrics on (e.g. ":9090").
	MetricsAddr string `mapstructure:"metrics_addr"`
}

func defaults() Config {
	return Config{
		ListenName:     "localhost:6379",
		ReconnectMode:  "always",
		ConnectTimeout: 10 * time.Second,
		CallTimeout:    10 * time.Second,
		LogLevel:       "info",
		MetricsAddr:    "",
	}
}

// Load assembles a Config from, in increasing precedence: built-in
// defaults, the YAML file at configPath (skipped if empty or missing),
// environment variables prefixed ASYNCNET_, and the already-parsed flags
// in v (a *viper.Viper that a cobra command has bound its flag set into;
// pass nil to skip that layer).
func Load(configPath string, flags *viper.Viper) (Config, error) {
	v := viper.New()
	d := defaults()
	v.SetDefault("listen_name", d.ListenName)
	v.SetDefault("reconnect_mode", d.ReconnectMode)
	v.SetDefault("connect_timeout", d.ConnectTimeout)
	v.SetDefault("call_timeout", d.CallTimeout)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("metrics_addr", d.MetricsAddr)

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("config: reading %s: %w", configPath, err)
			}
		}
	}

	v.SetEnvPrefix("asyncnet")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for _, key := range flags.AllKeys() {
			v.Set(key, flags.Get(key))
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("config: invalid: %w", err)
	}
	return cfg, nil
}
