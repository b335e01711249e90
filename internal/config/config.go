// Package config loads defaults for the command line from an optional file
// and INVSNAP_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Output struct {
		Dir    string `mapstructure:"dir"`
		Engine string `mapstructure:"engine"`
	} `mapstructure:"output"`

	Export struct {
		Scale            float64 `mapstructure:"scale"`
		ViewportWidth    int64   `mapstructure:"viewport_width"`
		AllowCrossOrigin bool    `mapstructure:"allow_cross_origin"`
		InlineImages     bool    `mapstructure:"inline_images"`
		Chrome           string  `mapstructure:"chrome"`
		MaxConcurrent    int     `mapstructure:"max_concurrent"`
	} `mapstructure:"export"`

	Invoice struct {
		Currency string `mapstructure:"currency"`
		Locale   string `mapstructure:"locale"`
		Template string `mapstructure:"template"`
	} `mapstructure:"invoice"`

	Server struct {
		Addr string `mapstructure:"addr"`
	} `mapstructure:"server"`

	HTTP struct {
		RetryCount   int           `mapstructure:"retry_count"`
		RetryWait    time.Duration `mapstructure:"retry_wait"`
		RetryMaxWait time.Duration `mapstructure:"retry_max_wait"`
		Timeout      time.Duration `mapstructure:"timeout"`
		UserAgent    string        `mapstructure:"user_agent"`
	} `mapstructure:"http"`

	Toast struct {
		Duration time.Duration `mapstructure:"duration"`
	} `mapstructure:"toast"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("output.dir", "invoices")
	v.SetDefault("output.engine", "gopdf")
	v.SetDefault("export.scale", 2.0)
	v.SetDefault("export.viewport_width", 1200)
	v.SetDefault("export.allow_cross_origin", true)
	v.SetDefault("export.inline_images", true)
	v.SetDefault("export.chrome", "")
	v.SetDefault("export.max_concurrent", 4)
	v.SetDefault("invoice.currency", "USD")
	v.SetDefault("invoice.locale", "en-US")
	v.SetDefault("invoice.template", "")
	v.SetDefault("server.addr", "127.0.0.1:8080")
	v.SetDefault("http.retry_count", 2)
	v.SetDefault("http.retry_wait", "500ms")
	v.SetDefault("http.retry_max_wait", "3s")
	v.SetDefault("http.timeout", "15s")
	v.SetDefault("http.user_agent", "invsnap/1.0")
	v.SetDefault("toast.duration", "3s")
}

// Load reads path when given, otherwise an invsnap.{yaml,json,toml} in the
// working directory if there is one. A .env file is loaded into the
// environment first.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("INVSNAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("invsnap")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config unmarshal error: %w", err)
	}
	return &cfg, nil
}
