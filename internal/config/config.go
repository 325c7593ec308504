package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/menta2k/shotcoach/pkg/cache"
	"github.com/menta2k/shotcoach/pkg/session"
)

// EnvPrefix prefixes environment overrides, e.g. SHOTCOACH_SERVER_PORT
const EnvPrefix = "SHOTCOACH"

// Vision backends
const (
	BackendSaliency = "saliency"
	BackendOllama   = "ollama"
	BackendLlamaCpp = "llamacpp"
)

// Config holds the application configuration
type Config struct {
	Server  ServerConfig   `mapstructure:"server"`
	Log     LogConfig      `mapstructure:"log"`
	Cache   cache.Config   `mapstructure:"cache"`
	Session session.Config `mapstructure:"session"`
	Blur    BlurConfig     `mapstructure:"blur"`
	Vision  VisionConfig   `mapstructure:"vision"`
}

// ServerConfig holds the HTTP listener settings
type ServerConfig struct {
	Host        string        `mapstructure:"host"`
	Port        int           `mapstructure:"port"`
	Mode        string        `mapstructure:"mode"`
	Timeout     time.Duration `mapstructure:"timeout"`
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`
	MaxUpload   int64         `mapstructure:"max_upload"`
}

// Addr returns host:port
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LogConfig holds logging settings
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// BlurConfig holds background blur settings
type BlurConfig struct {
	RadiusPerIntensity float64 `mapstructure:"radius_per_intensity"`
	PreviewSize        int     `mapstructure:"preview_size"`
	Quality            int     `mapstructure:"quality"`
}

// VisionConfig selects how subjects are located
type VisionConfig struct {
	Backend       string  `mapstructure:"backend"`
	URL           string  `mapstructure:"url"`
	Model         string  `mapstructure:"model"`
	MaxDim        int     `mapstructure:"max_dim"`
	MinConfidence float64 `mapstructure:"min_confidence"`
}

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        8090,
			Mode:        "release",
			Timeout:     60 * time.Second,
			IdleTimeout: 120 * time.Second,
			MaxUpload:   50 << 20,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Cache:   cache.DefaultConfig(),
		Session: session.DefaultConfig(),
		Blur: BlurConfig{
			RadiusPerIntensity: 1,
			PreviewSize:        512,
			Quality:            90,
		},
		Vision: VisionConfig{
			Backend:       BackendSaliency,
			Model:         "openbmb/minicpm-v4.5",
			MaxDim:        768,
			MinConfidence: 0.2,
		},
	}
}

// Load reads configuration from filename, if given, on top of the defaults.
// Environment variables prefixed with SHOTCOACH_ override both.
func Load(filename string) (*Config, error) {
	v := viper.New()
	for key, value := range Default().settings() {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if filename != "" {
		v.SetConfigFile(filename)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &config, nil
}

// LoadFromFile loads configuration from a yaml or json file
func LoadFromFile(filename string) (*Config, error) {
	if _, err := os.Stat(filename); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Load(filename)
}

// SaveToFile saves configuration; the format follows the file extension
func (c *Config) SaveToFile(filename string) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	v := viper.New()
	for key, value := range c.settings() {
		v.Set(key, value)
	}
	if err := v.WriteConfigAs(filename); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}

	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}

	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("log.format must be text or json")
	}

	if c.Cache.MaskMaxItems < 0 || c.Cache.ResultMaxItems < 0 || c.Cache.MaskMaxBytes < 0 || c.Cache.ResultMaxBytes < 0 {
		return fmt.Errorf("cache limits cannot be negative")
	}

	if c.Session.CheckInterval <= 0 || c.Session.MaxAge <= 0 {
		return fmt.Errorf("session.check_interval and session.max_age must be positive")
	}

	if c.Blur.RadiusPerIntensity <= 0 {
		return fmt.Errorf("blur.radius_per_intensity must be positive")
	}

	if c.Blur.Quality < 1 || c.Blur.Quality > 100 {
		return fmt.Errorf("blur.quality must be between 1 and 100")
	}

	switch c.Vision.Backend {
	case BackendSaliency:
	case BackendOllama, BackendLlamaCpp:
		if c.Vision.Model == "" {
			return fmt.Errorf("vision.model is required for the %s backend", c.Vision.Backend)
		}
	default:
		return fmt.Errorf("vision.backend must be one of %s, %s, %s", BackendSaliency, BackendOllama, BackendLlamaCpp)
	}

	if c.Vision.MinConfidence < 0 || c.Vision.MinConfidence > 1 {
		return fmt.Errorf("vision.min_confidence must be between 0 and 1")
	}

	return nil
}

// Logger builds a logger from the log section
func (c *Config) Logger() (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(c.Log.Level)
	if err != nil {
		return nil, err
	}
	logger := logrus.New()
	logger.SetLevel(level)
	if c.Log.Format == "json" {
		logger.SetFormatter(new(logrus.JSONFormatter))
	}
	return logger, nil
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.yaml"
	}
	return filepath.Join(home, ".config", "shotcoach", "config.yaml")
}

// settings flattens the configuration into viper keys. Durations are written as
// strings so saved files stay readable.
func (c *Config) settings() map[string]any {
	return map[string]any{
		"server.host":               c.Server.Host,
		"server.port":               c.Server.Port,
		"server.mode":               c.Server.Mode,
		"server.timeout":            c.Server.Timeout.String(),
		"server.idle_timeout":       c.Server.IdleTimeout.String(),
		"server.max_upload":         c.Server.MaxUpload,
		"log.level":                 c.Log.Level,
		"log.format":                c.Log.Format,
		"cache.mask_max_items":      c.Cache.MaskMaxItems,
		"cache.mask_max_bytes":      c.Cache.MaskMaxBytes,
		"cache.result_max_items":    c.Cache.ResultMaxItems,
		"cache.result_max_bytes":    c.Cache.ResultMaxBytes,
		"session.check_interval":    c.Session.CheckInterval.String(),
		"session.max_age":           c.Session.MaxAge.String(),
		"blur.radius_per_intensity": c.Blur.RadiusPerIntensity,
		"blur.preview_size":         c.Blur.PreviewSize,
		"blur.quality":              c.Blur.Quality,
		"vision.backend":            c.Vision.Backend,
		"vision.url":                c.Vision.URL,
		"vision.model":              c.Vision.Model,
		"vision.max_dim":            c.Vision.MaxDim,
		"vision.min_confidence":     c.Vision.MinConfidence,
	}
}
