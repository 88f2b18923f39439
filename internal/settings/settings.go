// Package settings loads process settings with viper. Values come from
// defaults, an optional busjam.{yaml,json} file, a .env file and BUSJAM_*
// environment variables, in increasing priority.
package settings

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const EnvPrefix = "BUSJAM"

type Log struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type Graylog struct {
	Enabled bool   `mapstructure:"enabled"`
	Address string `mapstructure:"address"`
}

type Server struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

type Levels struct {
	Dir     string `mapstructure:"dir"`
	Default string `mapstructure:"default"`
}

type Sessions struct {
	Dir       string        `mapstructure:"dir"`
	MaxAge    time.Duration `mapstructure:"max_age"`
	SyncEvery time.Duration `mapstructure:"sync_every"`
}

type Clock struct {
	Enabled bool `mapstructure:"enabled"`
}

type Store struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

type Progress struct {
	Enabled        bool   `mapstructure:"enabled"`
	EnforceUnlocks bool   `mapstructure:"enforce_unlocks"`
	Profile        string `mapstructure:"profile"`
}

type Metrics struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
	File     string        `mapstructure:"file"`
}

type Ngrok struct {
	Enabled   bool   `mapstructure:"enabled"`
	AuthToken string `mapstructure:"authtoken"`
	Domain    string `mapstructure:"domain"`
}

// Settings is the full process configuration.
type Settings struct {
	Log      Log      `mapstructure:"log"`
	Graylog  Graylog  `mapstructure:"graylog"`
	Server   Server   `mapstructure:"server"`
	Levels   Levels   `mapstructure:"levels"`
	Sessions Sessions `mapstructure:"sessions"`
	Clock    Clock    `mapstructure:"clock"`
	Store    Store    `mapstructure:"store"`
	Progress Progress `mapstructure:"progress"`
	Metrics  Metrics  `mapstructure:"metrics"`
	Ngrok    Ngrok    `mapstructure:"ngrok"`
}

// Addr returns host:port for the HTTP listener.
func (s *Settings) Addr() string {
	return fmt.Sprintf("%s:%d", s.Server.Host, s.Server.Port)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("graylog.enabled", false)
	v.SetDefault("graylog.address", "localhost:12201")

	v.SetDefault("server.host", "")
	v.SetDefault("server.port", 8080)

	v.SetDefault("levels.dir", "levels")
	v.SetDefault("levels.default", "")

	v.SetDefault("sessions.dir", "sessions")
	v.SetDefault("sessions.max_age", "24h")
	v.SetDefault("sessions.sync_every", "30s")

	v.SetDefault("clock.enabled", true)

	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.dsn", "busjam.db")

	v.SetDefault("progress.enabled", true)
	v.SetDefault("progress.enforce_unlocks", false)
	v.SetDefault("progress.profile", "default")

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.interval", "1m")
	v.SetDefault("metrics.file", "")

	v.SetDefault("ngrok.enabled", false)
	v.SetDefault("ngrok.authtoken", "")
	v.SetDefault("ngrok.domain", "")
}

// Options controls where Load looks.
type Options struct {
	// File is an explicit settings file. When empty, busjam.* is searched in
	// SearchPaths and its absence is not an error.
	File        string
	SearchPaths []string
	// EnvFile is loaded into the environment first when it exists.
	EnvFile string
}

// Load resolves settings from all sources.
func Load(opts Options) (*Settings, *viper.Viper, error) {
	if opts.EnvFile != "" {
		if err := godotenv.Load(opts.EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, nil, fmt.Errorf("error loading %s: %w", opts.EnvFile, err)
		}
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if opts.File != "" {
		v.SetConfigFile(opts.File)
		if err := v.ReadInConfig(); err != nil {
			return nil, nil, fmt.Errorf("error reading settings file: %w", err)
		}
	} else {
		v.SetConfigName("busjam")
		paths := opts.SearchPaths
		if len(paths) == 0 {
			paths = []string{"."}
		}
		for _, p := range paths {
			v.AddConfigPath(p)
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, nil, fmt.Errorf("error reading settings file: %w", err)
			}
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, nil, fmt.Errorf("error decoding settings: %w", err)
	}
	// ngrok's own variable name is honoured too
	if s.Ngrok.AuthToken == "" {
		s.Ngrok.AuthToken = firstEnv("NGROK_AUTHTOKEN", "NGROK_AUTH_TOKEN")
	}

	return &s, v, nil
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}
