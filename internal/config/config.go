// Package config loads engine startup settings via viper, following the
// teacher's config.go shape: a plain settings struct, sane defaults,
// an optional config file, and environment variable overrides.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Settings holds every value needed to wire an Engine, its observers,
// and its transports at startup.
type Settings struct {
	SampleRate float64 `mapstructure:"sampleRate"`
	BPM        float32 `mapstructure:"bpm"`

	Queue struct {
		Capacity int `mapstructure:"capacity"`
	} `mapstructure:"queue"`

	Session struct {
		Path            string `mapstructure:"path"`
		AutosaveSeconds int    `mapstructure:"autosaveSeconds"`
	} `mapstructure:"session"`

	OSC struct {
		Enabled bool   `mapstructure:"enabled"`
		Host    string `mapstructure:"host"`
		Port    int    `mapstructure:"port"`
	} `mapstructure:"osc"`

	Metrics struct {
		Enabled bool   `mapstructure:"enabled"`
		Addr    string `mapstructure:"addr"`
	} `mapstructure:"metrics"`

	LogLevel string `mapstructure:"logLevel"`
}

// Load reads settings from (in ascending priority) built-in defaults, an
// optional "enginecore.yaml"/"enginecore.json" file on the given search
// paths, and ENGINECORE_-prefixed environment variables.
func Load(configPaths ...string) (*Settings, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("enginecore")
	for _, p := range configPaths {
		v.AddConfigPath(p)
	}
	v.AddConfigPath(".")

	v.SetEnvPrefix("ENGINECORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("config.Load: reading config file: %w", err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("config.Load: unmarshaling settings: %w", err)
	}
	return &s, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("sampleRate", 48000.0)
	v.SetDefault("bpm", 120.0)
	v.SetDefault("queue.capacity", 256)
	v.SetDefault("session.path", "session.json")
	v.SetDefault("session.autosaveSeconds", 0)
	v.SetDefault("osc.enabled", false)
	v.SetDefault("osc.host", "127.0.0.1")
	v.SetDefault("osc.port", 9000)
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.addr", ":9090")
	v.SetDefault("logLevel", "info")
}
