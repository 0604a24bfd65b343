// Package config loads broker configuration from environment variables with
// optional command-line overrides.
package config

import (
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pairlink/signaling-broker/internal/origin"
)

const (
	// Original deployment knobs, kept for compatibility with existing
	// frontends and process managers.
	envVarPort        = "PORT"
	envVarHost        = "HOST"
	envVarFrontendURL = "FRONTEND_URL"

	envVarListenAddr      = "BROKER_LISTEN_ADDR"
	envVarAllowedOrigins  = "ALLOWED_ORIGINS"
	envVarMode            = "BROKER_MODE"
	envVarLogFormat       = "LOG_FORMAT"
	envVarLogLevel        = "LOG_LEVEL"
	envVarShutdownTimeout = "SHUTDOWN_TIMEOUT"

	// WebSocket liveness + inbound hardening.
	envVarWSIdleTimeout                 = "WS_IDLE_TIMEOUT"
	envVarWSPingInterval                = "WS_PING_INTERVAL"
	envVarMaxSignalingMessageBytes      = "MAX_SIGNALING_MESSAGE_BYTES"
	envVarMaxSignalingMessagesPerSecond = "MAX_SIGNALING_MESSAGES_PER_SECOND"
)

const (
	DefaultPort        = "5000"
	DefaultHost        = "0.0.0.0"
	DefaultFrontendURL = "http://localhost:3000"

	DefaultShutdownTimeout = 15 * time.Second

	// Matches the heartbeat cadence the original deployment ran with
	// (ping every 30s, drop after 120s of silence).
	DefaultWSIdleTimeout  = 120 * time.Second
	DefaultWSPingInterval = 30 * time.Second

	DefaultMaxSignalingMessageBytes      = int64(64 * 1024)
	DefaultMaxSignalingMessagesPerSecond = 50

	DefaultMode Mode = ModeDev
)

type Mode string

const (
	ModeDev  Mode = "dev"
	ModeProd Mode = "prod"
)

type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

type Config struct {
	ListenAddr     string
	AllowedOrigins []string

	Mode      Mode
	LogFormat LogFormat
	LogLevel  slog.Level

	ShutdownTimeout time.Duration

	// WSIdleTimeout drops connections that go silent (no frames, no pongs);
	// WSPingInterval is the server-initiated heartbeat cadence.
	WSIdleTimeout  time.Duration
	WSPingInterval time.Duration

	MaxSignalingMessageBytes      int64
	MaxSignalingMessagesPerSecond int
}

func Load(args []string) (Config, error) {
	return load(os.LookupEnv, args)
}

func load(lookup func(string) (string, bool), args []string) (Config, error) {
	listenAddr := envOrDefault(lookup, envVarListenAddr, "")
	if listenAddr == "" {
		host := envOrDefault(lookup, envVarHost, DefaultHost)
		port := envOrDefault(lookup, envVarPort, DefaultPort)
		if _, err := strconv.ParseUint(port, 10, 16); err != nil {
			return Config{}, fmt.Errorf("invalid %s %q: %w", envVarPort, port, err)
		}
		listenAddr = net.JoinHostPort(host, port)
	}

	allowedOriginsRaw := envOrDefault(lookup, envVarAllowedOrigins, "")
	if allowedOriginsRaw == "" {
		allowedOriginsRaw = envOrDefault(lookup, envVarFrontendURL, DefaultFrontendURL)
	}
	allowedOrigins, err := parseAllowedOrigins(allowedOriginsRaw)
	if err != nil {
		return Config{}, err
	}

	mode, err := parseMode(envOrDefault(lookup, envVarMode, string(DefaultMode)))
	if err != nil {
		return Config{}, err
	}

	logFormat, err := parseLogFormat(envOrDefault(lookup, envVarLogFormat, defaultLogFormatForMode(mode)))
	if err != nil {
		return Config{}, err
	}
	logLevel, err := parseLogLevel(envOrDefault(lookup, envVarLogLevel, defaultLogLevelForMode(mode)))
	if err != nil {
		return Config{}, err
	}

	shutdownTimeout, err := envDurationOrDefault(lookup, envVarShutdownTimeout, DefaultShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	wsIdleTimeout, err := envDurationOrDefault(lookup, envVarWSIdleTimeout, DefaultWSIdleTimeout)
	if err != nil {
		return Config{}, err
	}
	wsPingInterval, err := envDurationOrDefault(lookup, envVarWSPingInterval, DefaultWSPingInterval)
	if err != nil {
		return Config{}, err
	}

	maxMessageBytes, err := envIntOrDefault(lookup, envVarMaxSignalingMessageBytes, int(DefaultMaxSignalingMessageBytes))
	if err != nil {
		return Config{}, err
	}
	maxMessagesPerSecond, err := envIntOrDefault(lookup, envVarMaxSignalingMessagesPerSecond, DefaultMaxSignalingMessagesPerSecond)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		ListenAddr:     listenAddr,
		AllowedOrigins: allowedOrigins,

		Mode:      mode,
		LogFormat: logFormat,
		LogLevel:  logLevel,

		ShutdownTimeout: shutdownTimeout,
		WSIdleTimeout:   wsIdleTimeout,
		WSPingInterval:  wsPingInterval,

		MaxSignalingMessageBytes:      int64(maxMessageBytes),
		MaxSignalingMessagesPerSecond: maxMessagesPerSecond,
	}

	if err := applyFlags(&cfg, args); err != nil {
		return Config{}, err
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyFlags(cfg *Config, args []string) error {
	fs := flag.NewFlagSet("pairlink-broker", flag.ContinueOnError)

	listenAddr := fs.String("listen-addr", cfg.ListenAddr, "host:port to listen on")
	logFormatStr := fs.String("log-format", string(cfg.LogFormat), "log format (text or json)")
	logLevelStr := fs.String("log-level", "", "log level (debug, info, warn, error)")

	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg.ListenAddr = *listenAddr

	logFormat, err := parseLogFormat(*logFormatStr)
	if err != nil {
		return err
	}
	cfg.LogFormat = logFormat

	if *logLevelStr != "" {
		logLevel, err := parseLogLevel(*logLevelStr)
		if err != nil {
			return err
		}
		cfg.LogLevel = logLevel
	}
	return nil
}

func (c Config) validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen address must not be empty")
	}
	if c.WSPingInterval <= 0 {
		return fmt.Errorf("invalid %s: must be positive", envVarWSPingInterval)
	}
	if c.WSIdleTimeout <= c.WSPingInterval {
		return fmt.Errorf("%s (%s) must exceed %s (%s)", envVarWSIdleTimeout, c.WSIdleTimeout, envVarWSPingInterval, c.WSPingInterval)
	}
	if c.MaxSignalingMessageBytes <= 0 {
		return fmt.Errorf("invalid %s: must be positive", envVarMaxSignalingMessageBytes)
	}
	if c.MaxSignalingMessagesPerSecond <= 0 {
		return fmt.Errorf("invalid %s: must be positive", envVarMaxSignalingMessagesPerSecond)
	}
	return nil
}

// parseAllowedOrigins splits a comma-separated origin list and normalizes
// each entry. "*" disables the origin check entirely.
func parseAllowedOrigins(raw string) ([]string, error) {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if part == "*" {
			out = append(out, part)
			continue
		}
		normalized, _, ok := origin.Normalize(part)
		if !ok {
			return nil, fmt.Errorf("invalid allowed origin %q", part)
		}
		out = append(out, normalized)
	}
	return out, nil
}

func NewLogger(cfg Config) (*slog.Logger, error) {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	switch cfg.LogFormat {
	case LogFormatText:
		handler = slog.NewTextHandler(os.Stdout, opts)
	case LogFormatJSON:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	default:
		return nil, fmt.Errorf("unsupported log format %q", cfg.LogFormat)
	}

	return slog.New(handler), nil
}

func envOrDefault(lookup func(string) (string, bool), key, fallback string) string {
	if v, ok := lookup(key); ok && v != "" {
		return v
	}
	return fallback
}

func envIntOrDefault(lookup func(string) (string, bool), key string, fallback int) (int, error) {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return n, nil
}

func envDurationOrDefault(lookup func(string) (string, bool), key string, fallback time.Duration) (time.Duration, error) {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return d, nil
}

func parseMode(raw string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(ModeDev), "development":
		return ModeDev, nil
	case string(ModeProd), "production":
		return ModeProd, nil
	default:
		return "", fmt.Errorf("invalid %s %q (expected dev or prod)", envVarMode, raw)
	}
}

func parseLogFormat(raw string) (LogFormat, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(LogFormatText):
		return LogFormatText, nil
	case string(LogFormatJSON):
		return LogFormatJSON, nil
	default:
		return "", fmt.Errorf("invalid log format %q (expected text or json)", raw)
	}
}

func parseLogLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level %q (expected debug, info, warn, error)", raw)
	}
}

func defaultLogFormatForMode(mode Mode) string {
	if mode == ModeProd {
		return string(LogFormatJSON)
	}
	return string(LogFormatText)
}

func defaultLogLevelForMode(mode Mode) string {
	if mode == ModeProd {
		return "info"
	}
	return "debug"
}
