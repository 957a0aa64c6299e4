// Package config handles loading and validating the voicecast configuration.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration for the voicecast daemon.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Transports TransportsConfig `mapstructure:"transports"`
	TTS        TTSConfig        `mapstructure:"tts"`
	Output     OutputConfig     `mapstructure:"output"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig holds the health check server settings.
type ServerConfig struct {
	HealthPort int `mapstructure:"health_port"` // 0 disables the health server
}

// TransportsConfig holds the configuration for each transport layer.
type TransportsConfig struct {
	MCP  MCPConfig  `mapstructure:"mcp"`
	HTTP HTTPConfig `mapstructure:"http"`
	GRPC GRPCConfig `mapstructure:"grpc"`
}

// MCPConfig configures the MCP stdio transport.
type MCPConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Name    string `mapstructure:"name"` // server name announced to MCP clients
}

// HTTPConfig configures the HTTP transport.
type HTTPConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// GRPCConfig configures the gRPC transport.
type GRPCConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// TTSConfig selects and configures the text-to-speech backend.
type TTSConfig struct {
	Backend string            `mapstructure:"backend"` // "coqui" or "piper"
	Speed   float64           `mapstructure:"speed"`
	Warmup  bool              `mapstructure:"warmup"` // load the backend at startup instead of on first use
	Voices  map[string]string `mapstructure:"voices"` // speaker id ("1".."4") -> voice name override
	Coqui   CoquiConfig       `mapstructure:"coqui"`
	Piper   PiperConfig       `mapstructure:"piper"`
}

// CoquiConfig holds Coqui TTS server settings (XTTS v2 served by `tts-server`).
type CoquiConfig struct {
	Endpoint string        `mapstructure:"endpoint"` // base URL, e.g. http://localhost:5002
	Timeout  time.Duration `mapstructure:"timeout"`  // per-request timeout
}

// PiperConfig holds Piper TTS settings (Wyoming protocol).
//
// For a single Piper instance that serves all languages, set Endpoint.
// For per-language instances, set Endpoints which maps ISO-639-1 codes to
// individual Wyoming TCP endpoints. Endpoints takes precedence and Endpoint
// is the fallback.
type PiperConfig struct {
	Endpoint  string            `mapstructure:"endpoint"`  // Default Wyoming TCP endpoint (host:port)
	Endpoints map[string]string `mapstructure:"endpoints"` // ISO-639-1 language code -> Wyoming TCP endpoint
	Voices    map[string]string `mapstructure:"voices"`    // ISO-639-1 language code -> Piper voice model name
}

// OutputConfig controls where and how the combined audio is written.
type OutputConfig struct {
	Dir     string `mapstructure:"dir"`
	TempDir string `mapstructure:"temp_dir"`
	PauseMS int    `mapstructure:"pause_ms"` // silence between segments
	Format  string `mapstructure:"format"`
}

// Pause returns the configured inter-segment silence.
func (o OutputConfig) Pause() time.Duration {
	return time.Duration(o.PauseMS) * time.Millisecond
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, text
	Output string `mapstructure:"output"` // stderr, stdout
}

// Load reads the configuration from file, environment variables, and defaults.
// If configFile is non-empty it is used directly; otherwise the standard
// search order applies: ./voicecast.yaml, ./configs/voicecast.yaml, /etc/voicecast/voicecast.yaml.
func Load(configFile string) (*Config, error) {
	v := viper.New()

	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}

	// Defaults
	v.SetDefault("server.health_port", 8081)
	v.SetDefault("transports.mcp.enabled", true)
	v.SetDefault("transports.mcp.name", "voicecast")
	v.SetDefault("transports.http.enabled", false)
	v.SetDefault("transports.http.port", 8080)
	v.SetDefault("transports.grpc.enabled", false)
	v.SetDefault("transports.grpc.port", 50051)
	v.SetDefault("tts.backend", "coqui")
	v.SetDefault("tts.speed", 1.2)
	v.SetDefault("tts.warmup", false)
	v.SetDefault("tts.coqui.endpoint", "http://localhost:5002")
	v.SetDefault("tts.coqui.timeout", 5*time.Minute)
	v.SetDefault("tts.piper.endpoint", "localhost:10200")
	v.SetDefault("output.dir", filepath.Join(home, "Downloads"))
	v.SetDefault("output.temp_dir", filepath.Join(home, ".voicecast-temp"))
	v.SetDefault("output.pause_ms", 800)
	v.SetDefault("output.format", "wav")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.output", "stderr")

	// Config file
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("voicecast")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/voicecast")
	}

	// Environment variables: VOICECAST_OUTPUT_DIR, VOICECAST_TTS_BACKEND, etc.
	v.SetEnvPrefix("VOICECAST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (optional: env vars and defaults are sufficient)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		slog.Debug("no config file found, using defaults and environment variables")
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	// Resolve env var references (e.g., "${PODCAST_DIR}") and home-relative paths.
	cfg.Output.Dir = expandHome(resolveEnvRef(cfg.Output.Dir), home)
	cfg.Output.TempDir = expandHome(resolveEnvRef(cfg.Output.TempDir), home)
	cfg.TTS.Coqui.Endpoint = resolveEnvRef(cfg.TTS.Coqui.Endpoint)
	cfg.TTS.Piper.Endpoint = resolveEnvRef(cfg.TTS.Piper.Endpoint)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	var errs []error
	switch c.TTS.Backend {
	case "coqui", "piper":
	default:
		errs = append(errs, fmt.Errorf("tts.backend: unknown backend %q", c.TTS.Backend))
	}
	if c.TTS.Speed < 0 {
		errs = append(errs, fmt.Errorf("tts.speed: must not be negative, got %v", c.TTS.Speed))
	}
	for id := range c.TTS.Voices {
		switch id {
		case "1", "2", "3", "4":
		default:
			errs = append(errs, fmt.Errorf("tts.voices: unknown speaker %q (want 1-4)", id))
		}
	}
	if c.Output.Dir == "" {
		errs = append(errs, errors.New("output.dir: must be set"))
	}
	if c.Output.TempDir == "" {
		errs = append(errs, errors.New("output.temp_dir: must be set"))
	}
	if c.Output.PauseMS < 0 {
		errs = append(errs, fmt.Errorf("output.pause_ms: must not be negative, got %d", c.Output.PauseMS))
	}
	if !strings.EqualFold(c.Output.Format, "wav") {
		errs = append(errs, fmt.Errorf("output.format: unsupported format %q", c.Output.Format))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// resolveEnvRef replaces "${VAR_NAME}" patterns with the corresponding env var value.
func resolveEnvRef(val string) string {
	if strings.HasPrefix(val, "${") && strings.HasSuffix(val, "}") {
		envKey := val[2 : len(val)-1]
		if envVal := os.Getenv(envKey); envVal != "" {
			return envVal
		}
	}
	return val
}

// expandHome turns a leading "~" into the user's home directory.
func expandHome(p, home string) string {
	if p == "~" {
		return home
	}
	if strings.HasPrefix(p, "~/") {
		return filepath.Join(home, p[2:])
	}
	return p
}

// SetupLogging configures the global slog logger based on config.
// Logs go to stderr unless configured otherwise: the MCP stdio transport
// owns stdout.
func SetupLogging(cfg LoggingConfig) {
	var out io.Writer = os.Stderr
	if strings.ToLower(cfg.Output) == "stdout" {
		out = os.Stdout
	}
	slog.SetDefault(NewLogger(cfg, out))
}

// NewLogger builds a logger for cfg that writes to out.
func NewLogger(cfg LoggingConfig, out io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.ToLower(cfg.Format) == "json" {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}
	return slog.New(handler)
}
