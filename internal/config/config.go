// Package config loads server settings from file and environment, then
// layers per-server rows from the config store on top.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

// Config is the effective server configuration.
type Config struct {
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
	WebPort int    `mapstructure:"web_port"`

	Certificate  string `mapstructure:"certificate"`
	Key          string `mapstructure:"key"`
	CertRequired bool   `mapstructure:"cert_required"`

	DatabasePath string `mapstructure:"database_path"`
	ServerID     int    `mapstructure:"server_id"`

	WelcomeText      string        `mapstructure:"welcome_text"`
	MaxUsers         int           `mapstructure:"max_users"`
	MaxBandwidth     int           `mapstructure:"max_bandwidth"`
	MaxTextLength    int           `mapstructure:"max_text_length"`
	DefaultChannel   uint32        `mapstructure:"default_channel"`
	PermissionMode   string        `mapstructure:"permission_mode"`
	SuggestVersion   uint32        `mapstructure:"suggest_version"`
	AllowHTML        bool          `mapstructure:"allow_html"`
	OpusThreshold    int           `mapstructure:"opus_threshold"`
	PingTimeout      time.Duration `mapstructure:"ping_timeout"`
	LogLevel         string        `mapstructure:"log_level"`
	WebSessionSecret string        `mapstructure:"web_session_secret"`
}

// Load reads config.<env>.yaml (env from MURMEL_ENV, default "dev"),
// falling back to defaults when the file is absent. Environment variables
// prefixed MURMEL_ override file values.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("MURMEL_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix("MURMEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("host", "")
	v.SetDefault("port", 64738)
	v.SetDefault("web_port", 8080)
	v.SetDefault("cert_required", false)
	v.SetDefault("server_id", 1)
	v.SetDefault("welcome_text", "Welcome to this server!")
	v.SetDefault("max_users", 100)
	v.SetDefault("max_bandwidth", 240000)
	v.SetDefault("max_text_length", 5000)
	v.SetDefault("default_channel", 0)
	v.SetDefault("permission_mode", "canned")
	v.SetDefault("suggest_version", 0x00010204)
	v.SetDefault("allow_html", true)
	v.SetDefault("opus_threshold", 100)
	v.SetDefault("ping_timeout", "30s")
	v.SetDefault("log_level", "info")
	v.SetDefault("web_session_secret", "")

	if err := v.ReadInConfig(); err != nil {
		log.Info().Str("module", "config").Str("file", fileName).
			Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).
			Msg("config file loaded")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	return &cfg, nil
}

// MergeStoreRows applies per-server key/value rows from the config store
// over the loaded configuration. Store rows win over file and environment,
// matching how a registered server's settings travel with its database.
// Unknown keys are logged and skipped.
func (c *Config) MergeStoreRows(rows map[string]string) {
	for key, value := range rows {
		switch strings.ToLower(key) {
		case "host":
			c.Host = value
		case "port":
			c.Port = cast.ToInt(value)
		case "welcometext":
			c.WelcomeText = value
		case "users":
			c.MaxUsers = cast.ToInt(value)
		case "bandwidth":
			c.MaxBandwidth = cast.ToInt(value)
		case "textmessagelength":
			c.MaxTextLength = cast.ToInt(value)
		case "defaultchannel":
			c.DefaultChannel = cast.ToUint32(value)
		case "certificate":
			c.Certificate = value
		case "key":
			c.Key = value
		case "certrequired":
			c.CertRequired = cast.ToBool(value)
		case "allowhtml":
			c.AllowHTML = cast.ToBool(value)
		case "opusthreshold":
			c.OpusThreshold = cast.ToInt(value)
		case "timeout":
			c.PingTimeout = time.Duration(cast.ToInt(value)) * time.Second
		default:
			log.Debug().Str("module", "config").Str("key", key).
				Msg("unknown config store key skipped")
		}
	}
}
