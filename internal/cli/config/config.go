// Package config loads pipegraph.yml with environment overrides
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/conduit-lang/pipegraph/internal/compiler/codegen"
)

// EnvPrefix prefixes every environment override, e.g. PIPEGRAPH_LOG_LEVEL
const EnvPrefix = "PIPEGRAPH"

// Config is the tool configuration
type Config struct {
	KnownTypes []string       `mapstructure:"known_types"`
	Render     codegen.Config `mapstructure:"render"`
	Log        LogConfig      `mapstructure:"log"`
	Server     ServerConfig   `mapstructure:"server"`
	Watch      WatchConfig    `mapstructure:"watch"`
}

// LogConfig selects the logger level and encoding
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // console or json
}

// ServerConfig is the websocket server address
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// Addr returns host:port
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// WatchConfig lists the glob patterns the watcher re-exports
type WatchConfig struct {
	Patterns []string `mapstructure:"patterns"`
}

// Load reads pipegraph.yml or pipegraph.yaml from dir, after loading an
// optional .env file into the environment. A missing config file yields
// the defaults.
func Load(dir string) (*Config, error) {
	if dir == "" {
		dir = "."
	}
	if err := godotenv.Load(filepath.Join(dir, ".env")); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	defaults := codegen.DefaultConfig()
	v.SetDefault("known_types", []string{})
	v.SetDefault("render.indent_size", defaults.IndentSize)
	v.SetDefault("render.blank_lines", defaults.BlankLines)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 7420)
	v.SetDefault("watch.patterns", []string{"*.py"})

	v.SetConfigName("pipegraph")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := validateConfig(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

func validateConfig(cfg *Config) error {
	switch cfg.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("log.format must be console or json, got: %s", cfg.Log.Format)
	}
	if cfg.Render.IndentSize < 1 {
		return fmt.Errorf("render.indent_size must be positive, got: %d", cfg.Render.IndentSize)
	}
	if cfg.Render.BlankLines < 0 {
		return fmt.Errorf("render.blank_lines must not be negative, got: %d", cfg.Render.BlankLines)
	}
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", cfg.Server.Port)
	}
	for _, qualified := range cfg.KnownTypes {
		if !strings.Contains(qualified, ".") {
			return fmt.Errorf("known type %q must be qualified with its module", qualified)
		}
	}
	return nil
}
