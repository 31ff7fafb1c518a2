// Package config loads runtime configuration for the voice relay server.
// Precedence: CLI flags > environment variables > defaults.
package config

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all runtime configuration for the voxrelay server.
type Config struct {
	ListenAddr string // voice-data TCP listen address
	AdminAddr  string // admin HTTP listen address (/healthz, /metrics)

	FrameSize int           // canonical PCM frame size in bytes
	QueueCap  int           // per-client send queue capacity, in frames
	MixPeriod time.Duration // mixer tick cadence

	SocketBuf int // SO_SNDBUF / SO_RCVBUF size in bytes, per connection

	LogLevel  string // debug, info, warn, error
	LogFormat string // text or json
}

const (
	defaultListenAddr = ":9797"
	defaultAdminAddr  = ":9798"
	defaultFrameSize  = 3840
	defaultQueueCap   = 50
	defaultMixPeriod  = 20 * time.Millisecond
	defaultSocketBuf  = 32 * 1024
	defaultLogLevel   = "info"
	defaultLogFormat  = "text"
)

// envPrefix is the prefix for all voxrelay environment variables.
const envPrefix = "VOXRELAY_"

// Load parses configuration from CLI flags and environment variables.
// Precedence: CLI flags > env vars > defaults.
func Load(args []string) (*Config, error) {
	cfg := &Config{}

	fs := flag.NewFlagSet("voxrelay-server", flag.ContinueOnError)

	fs.StringVar(&cfg.ListenAddr, "listen-addr", defaultListenAddr, "voice-data TCP listen address")
	fs.StringVar(&cfg.AdminAddr, "admin-addr", defaultAdminAddr, "admin HTTP listen address (healthz, metrics)")
	fs.IntVar(&cfg.FrameSize, "frame-size", defaultFrameSize, "canonical PCM frame size in bytes (clients must agree on this value to interoperate)")
	fs.IntVar(&cfg.QueueCap, "queue-cap", defaultQueueCap, "per-client send queue capacity, in frames")
	mixPeriodMs := fs.Int("mix-period-ms", int(defaultMixPeriod/time.Millisecond), "mixer tick period in milliseconds")
	fs.IntVar(&cfg.SocketBuf, "socket-buf", defaultSocketBuf, "per-connection socket send/receive buffer size in bytes")
	fs.StringVar(&cfg.LogLevel, "log-level", defaultLogLevel, "log level (debug, info, warn, error)")
	fs.StringVar(&cfg.LogFormat, "log-format", defaultLogFormat, "log output format (text, json)")

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("parsing flags: %w", err)
	}
	cfg.MixPeriod = time.Duration(*mixPeriodMs) * time.Millisecond

	applyEnvOverrides(fs, cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides checks environment variables for any flag that was not
// explicitly provided on the command line. CLI flags take precedence over
// env vars, which take precedence over defaults.
func applyEnvOverrides(fs *flag.FlagSet, cfg *Config) {
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		set[f.Name] = true
	})

	lookup := func(name string) (string, bool) {
		if set[name] {
			return "", false
		}
		return os.LookupEnv(envPrefix + strings.ToUpper(strings.ReplaceAll(name, "-", "_")))
	}

	if v, ok := lookup("listen-addr"); ok {
		cfg.ListenAddr = v
	}
	if v, ok := lookup("admin-addr"); ok {
		cfg.AdminAddr = v
	}
	if v, ok := lookup("frame-size"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.FrameSize = n
		}
	}
	if v, ok := lookup("queue-cap"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.QueueCap = n
		}
	}
	if v, ok := lookup("mix-period-ms"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MixPeriod = time.Duration(n) * time.Millisecond
		}
	}
	if v, ok := lookup("socket-buf"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.SocketBuf = n
		}
	}
	if v, ok := lookup("log-level"); ok {
		cfg.LogLevel = v
	}
	if v, ok := lookup("log-format"); ok {
		cfg.LogFormat = v
	}
}

// validate checks that the config values are sane.
func (c *Config) validate() error {
	if c.FrameSize <= 0 {
		return fmt.Errorf("frame-size must be positive, got %d", c.FrameSize)
	}
	if c.QueueCap <= 0 {
		return fmt.Errorf("queue-cap must be positive, got %d", c.QueueCap)
	}
	if c.MixPeriod <= 0 {
		return fmt.Errorf("mix-period-ms must be positive, got %s", c.MixPeriod)
	}
	if c.SocketBuf <= 0 {
		return fmt.Errorf("socket-buf must be positive, got %d", c.SocketBuf)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.LogLevel)] {
		return fmt.Errorf("log-level must be one of debug, info, warn, error; got %q", c.LogLevel)
	}
	c.LogLevel = strings.ToLower(c.LogLevel)

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.LogFormat)] {
		return fmt.Errorf("log-format must be one of text, json; got %q", c.LogFormat)
	}
	c.LogFormat = strings.ToLower(c.LogFormat)

	return nil
}

// SlogHandler returns a slog.Handler configured with the appropriate format
// (text or json) and log level.
func (c *Config) SlogHandler(w *os.File) slog.Handler {
	opts := &slog.HandlerOptions{Level: c.SlogLevel()}
	if c.LogFormat == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// SlogLevel returns the slog.Level corresponding to the configured log level.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
