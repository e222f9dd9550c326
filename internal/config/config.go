// Package config handles loading and validating the ttsgraph configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/nadzzz/ttsgraph/internal/audiosection"
	"github.com/nadzzz/ttsgraph/internal/dialogue"
	"github.com/nadzzz/ttsgraph/internal/qwentts"
	"github.com/nadzzz/ttsgraph/internal/video"
)

// Config is the root configuration for the ttsgraph daemon.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Transports TransportsConfig `mapstructure:"transports"`
	Synthesis  dialogue.Params  `mapstructure:"synthesis"`
	Prompt     PromptConfig     `mapstructure:"prompt"`
	Video      VideoConfig      `mapstructure:"video"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig holds the health check server settings.
type ServerConfig struct {
	HealthPort int `mapstructure:"health_port"`
}

// TransportsConfig holds the configuration for each transport layer.
type TransportsConfig struct {
	GRPC GRPCConfig `mapstructure:"grpc"`
	HTTP HTTPConfig `mapstructure:"http"`
}

// GRPCConfig configures the gRPC transport.
type GRPCConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// HTTPConfig configures the HTTP/WebSocket transport.
type HTTPConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// PromptConfig controls how the audio section is found in a prompt.
type PromptConfig struct {
	SectionID   int      `mapstructure:"section_id"`
	Tag         string   `mapstructure:"tag"`
	Terminators []string `mapstructure:"terminators"`
}

// VideoConfig holds the fallbacks used when a request's video context
// leaves a field out.
type VideoConfig struct {
	DefaultFPS int    `mapstructure:"default_fps"`
	Width      int    `mapstructure:"width"`
	Height     int    `mapstructure:"height"`
	ModelClass string `mapstructure:"model_class"` // class id of the LTX-Video-2 model
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, text
}

// Load reads the configuration from file, environment variables, and defaults.
// If configFile is non-empty it is used directly; otherwise the standard
// search order applies: ./ttsgraph.yaml, ./configs/ttsgraph.yaml, /etc/ttsgraph/ttsgraph.yaml.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	// Config file
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("ttsgraph")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/ttsgraph")
	}

	// Environment variables: TTSGRAPH_SERVER_HEALTH_PORT, TTSGRAPH_SYNTHESIS_MODEL, etc.
	v.SetEnvPrefix("TTSGRAPH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (optional: env vars and defaults are sufficient)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		slog.Info("no config file found, using defaults and environment variables")
	} else {
		slog.Info("loaded config file", "path", v.ConfigFileUsed())
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	// Resolve env var references in string settings (e.g., "${QWEN_TTS_MODEL}")
	cfg.Synthesis.Model = resolveEnvRef(cfg.Synthesis.Model)
	cfg.Synthesis.Attention = resolveEnvRef(cfg.Synthesis.Attention)
	cfg.Video.ModelClass = resolveEnvRef(cfg.Video.ModelClass)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := dialogue.DefaultParams()

	v.SetDefault("server.health_port", 8081)
	v.SetDefault("transports.grpc.enabled", true)
	v.SetDefault("transports.grpc.port", 50051)
	v.SetDefault("transports.http.enabled", true)
	v.SetDefault("transports.http.port", 8080)
	v.SetDefault("synthesis.model", d.Model)
	v.SetDefault("synthesis.seed", d.Seed)
	v.SetDefault("synthesis.max_new_tokens", d.MaxNewTokens)
	v.SetDefault("synthesis.top_p", d.TopP)
	v.SetDefault("synthesis.top_k", d.TopK)
	v.SetDefault("synthesis.temperature", d.Temperature)
	v.SetDefault("synthesis.repetition_penalty", d.RepetitionPenalty)
	v.SetDefault("synthesis.attention", d.Attention)
	v.SetDefault("synthesis.unload_model_after_generate", d.UnloadModel)
	v.SetDefault("prompt.section_id", audiosection.DefaultSectionID)
	v.SetDefault("prompt.tag", audiosection.DefaultTagName)
	v.SetDefault("prompt.terminators", audiosection.DefaultTerminators)
	v.SetDefault("video.default_fps", video.FallbackFPS)
	v.SetDefault("video.width", video.DefaultWidth)
	v.SetDefault("video.height", video.DefaultHeight)
	v.SetDefault("video.model_class", video.ModelClassLTXV2)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate checks settings that would otherwise only fail per request.
func (c *Config) Validate() error {
	if err := c.Synthesis.Validate(); err != nil {
		return fmt.Errorf("synthesis: %w", err)
	}
	if c.Video.DefaultFPS < 1 || c.Video.DefaultFPS > 120 {
		return fmt.Errorf("video.default_fps must be between 1 and 120, got %d", c.Video.DefaultFPS)
	}
	if c.Video.Width < 0 || c.Video.Height < 0 {
		return fmt.Errorf("video size must not be negative, got %dx%d", c.Video.Width, c.Video.Height)
	}
	if c.Prompt.SectionID <= 0 {
		return fmt.Errorf("prompt.section_id must be positive, got %d", c.Prompt.SectionID)
	}
	return nil
}

// QwenTTSOptions maps the configuration onto the compiler step options.
func (c *Config) QwenTTSOptions() qwentts.Options {
	return qwentts.Options{
		Prompt: audiosection.Options{
			SectionID:   c.Prompt.SectionID,
			TagName:     c.Prompt.Tag,
			Terminators: c.Prompt.Terminators,
		},
		Synthesis: c.Synthesis,
		Video: qwentts.VideoDefaults{
			FPS:        c.Video.DefaultFPS,
			Width:      c.Video.Width,
			Height:     c.Video.Height,
			ModelClass: c.Video.ModelClass,
		},
	}
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

// SetupLogging configures the global slog logger based on config.
func SetupLogging(cfg LoggingConfig) {
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
	if strings.ToLower(cfg.Format) == "text" {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}

	slog.SetDefault(slog.New(handler))
}
