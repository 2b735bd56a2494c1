package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// DefaultProxyHosts are the upstream hosts the relay endpoint may reach.
var DefaultProxyHosts = []string{
	"pics.dmm.co.jp",
	"awsimgsrc.dmm.co.jp",
	"cc3001.dmm.co.jp",
	"litevideo.dmm.co.jp",
}

// DefaultMediaDomains are domains whose hosts receive the spoofed Referer.
var DefaultMediaDomains = []string{"dmm.co.jp", "dmm.com"}

type Config struct {
	ListenAddr   string
	CacheBackend string
	CachePath    string
	LogLevel     slog.Level

	UserAgent    string
	MediaReferer string
	ProxyHosts   []string
	MediaDomains []string
	UpstreamRPS  float64
	MaxImageSize int64
	// MaxImagePixels bounds the declared width*height of transform sources.
	MaxImagePixels int

	ProxyTimeout     time.Duration
	RelayIdleTimeout time.Duration
	TransformTimeout time.Duration
	ColorTimeout     time.Duration
}

func Load() *Config {
	return &Config{
		ListenAddr:   getEnv("CP_LISTEN_ADDR", ":8080"),
		CacheBackend: getEnv("CP_CACHE_BACKEND", "fs"),
		CachePath:    getEnv("CP_CACHE_PATH", "/data/cache"),
		LogLevel:     getEnvLevel("CP_LOG_LEVEL", slog.LevelInfo),

		UserAgent:    getEnv("CP_USER_AGENT", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"),
		MediaReferer: getEnv("CP_MEDIA_REFERER", "https://www.dmm.co.jp/"),
		ProxyHosts:   getEnvList("CP_PROXY_ALLOWED_HOSTS", DefaultProxyHosts),
		MediaDomains: getEnvList("CP_MEDIA_DOMAINS", DefaultMediaDomains),
		UpstreamRPS:  getEnvFloat("CP_UPSTREAM_RPS", 0),
		MaxImageSize: int64(getEnvInt("CP_MAX_IMAGE_BYTES", 32<<20)),

		MaxImagePixels: getEnvInt("CP_MAX_IMAGE_PIXELS", 40*1000*1000),

		ProxyTimeout:     getEnvDuration("CP_PROXY_TIMEOUT", 10*time.Second),
		RelayIdleTimeout: getEnvDuration("CP_RELAY_IDLE_TIMEOUT", 15*time.Second),
		TransformTimeout: getEnvDuration("CP_TRANSFORM_TIMEOUT", 15*time.Second),
		ColorTimeout:     getEnvDuration("CP_COLOR_TIMEOUT", 10*time.Second),
	}
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return defaultValue
	}
	return n
}

func getEnvFloat(key string, defaultValue float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 {
		return defaultValue
	}
	return f
}

// getEnvDuration accepts Go duration strings ("15s") or bare milliseconds.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		return d
	}
	if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
		return time.Duration(ms) * time.Millisecond
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.ToLower(strings.TrimSpace(item)); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

func getEnvLevel(key string, defaultValue slog.Level) slog.Level {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(v)); err != nil {
		return defaultValue
	}
	return lvl
}
