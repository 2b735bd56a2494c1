package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, "fs", cfg.CacheBackend)
	assert.Equal(t, DefaultProxyHosts, cfg.ProxyHosts)
	assert.Equal(t, 15*time.Second, cfg.RelayIdleTimeout)
	assert.Equal(t, 10*time.Second, cfg.ColorTimeout)
	assert.Equal(t, 15*time.Second, cfg.TransformTimeout)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.Equal(t, 40*1000*1000, cfg.MaxImagePixels)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("CP_CACHE_BACKEND", "sqlite")
	t.Setenv("CP_PROXY_ALLOWED_HOSTS", " Media.Example.com, ,cdn.example.com")
	t.Setenv("CP_RELAY_IDLE_TIMEOUT", "250ms")
	t.Setenv("CP_COLOR_TIMEOUT", "2500")
	t.Setenv("CP_UPSTREAM_RPS", "4.5")
	t.Setenv("CP_LOG_LEVEL", "debug")
	t.Setenv("CP_MAX_IMAGE_PIXELS", "1000000")

	cfg := Load()

	assert.Equal(t, "sqlite", cfg.CacheBackend)
	assert.Equal(t, []string{"media.example.com", "cdn.example.com"}, cfg.ProxyHosts)
	assert.Equal(t, 250*time.Millisecond, cfg.RelayIdleTimeout)
	assert.Equal(t, 2500*time.Millisecond, cfg.ColorTimeout)
	assert.Equal(t, 4.5, cfg.UpstreamRPS)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, 1000000, cfg.MaxImagePixels)
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("CP_RELAY_IDLE_TIMEOUT", "soon")
	t.Setenv("CP_MAX_IMAGE_BYTES", "-1")
	t.Setenv("CP_LOG_LEVEL", "loud")

	cfg := Load()

	assert.Equal(t, 15*time.Second, cfg.RelayIdleTimeout)
	assert.Equal(t, int64(32<<20), cfg.MaxImageSize)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
}
