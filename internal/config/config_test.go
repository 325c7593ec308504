package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	c := Default()
	require.NoError(t, c.Validate())
	assert.Equal(t, 30*time.Second, c.Session.CheckInterval)
	assert.Equal(t, 3*time.Minute, c.Session.MaxAge)
	assert.Equal(t, 20, c.Cache.MaskMaxItems)
	assert.Equal(t, "0.0.0.0:8090", c.Server.Addr())
}

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), c)
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
server:
  port: 9000
session:
  max_age: 90s
cache:
  result_max_items: 4
vision:
  backend: ollama
  url: http://localhost:11434
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	c, err := LoadFromFile(path)
	require.NoError(t, err)
	require.NoError(t, c.Validate())

	assert.Equal(t, 9000, c.Server.Port)
	assert.Equal(t, 90*time.Second, c.Session.MaxAge)
	assert.Equal(t, 4, c.Cache.ResultMaxItems)
	assert.Equal(t, BackendOllama, c.Vision.Backend)
	// untouched keys keep their defaults
	assert.Equal(t, 30*time.Second, c.Session.CheckInterval)
	assert.Equal(t, int64(100<<20), c.Cache.MaskMaxBytes)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SHOTCOACH_SERVER_PORT", "7001")
	t.Setenv("SHOTCOACH_LOG_LEVEL", "debug")
	t.Setenv("SHOTCOACH_SESSION_CHECK_INTERVAL", "5s")

	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7001, c.Server.Port)
	assert.Equal(t, "debug", c.Log.Level)
	assert.Equal(t, 5*time.Second, c.Session.CheckInterval)
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")
	c := Default()
	c.Blur.PreviewSize = 256
	c.Session.MaxAge = 2 * time.Minute
	require.NoError(t, c.SaveToFile(path))

	loaded, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, c, loaded)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"port":       func(c *Config) { c.Server.Port = 0 },
		"level":      func(c *Config) { c.Log.Level = "loud" },
		"format":     func(c *Config) { c.Log.Format = "xml" },
		"cache":      func(c *Config) { c.Cache.MaskMaxBytes = -1 },
		"session":    func(c *Config) { c.Session.MaxAge = 0 },
		"radius":     func(c *Config) { c.Blur.RadiusPerIntensity = 0 },
		"quality":    func(c *Config) { c.Blur.Quality = 101 },
		"backend":    func(c *Config) { c.Vision.Backend = "magic" },
		"model":      func(c *Config) { c.Vision.Backend = BackendLlamaCpp; c.Vision.Model = "" },
		"confidence": func(c *Config) { c.Vision.MinConfidence = 2 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := Default()
			mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestLogger(t *testing.T) {
	c := Default()
	c.Log.Level = "warn"
	c.Log.Format = "json"

	logger, err := c.Logger()
	require.NoError(t, err)
	assert.Equal(t, logrus.WarnLevel, logger.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, logger.Formatter)
}
