package log

import (
	"fmt"
	"strings"
)

// Config defines logging configuration.
type Config struct {
	// Level sets the minimum log level
	Level string `json:"level" yaml:"level" mapstructure:"level"`

	// Format sets the output format (json, text)
	Format string `json:"format" yaml:"format" mapstructure:"format"`

	// EnableCaller adds caller information to entries
	EnableCaller bool `json:"enable_caller" yaml:"enable_caller" mapstructure:"enable_caller"`

	// RedactedFields lists fields whose values are never written
	RedactedFields []string `json:"redacted_fields" yaml:"redacted_fields" mapstructure:"redacted_fields"`
}

// DefaultConfig returns a default configuration.
func DefaultConfig() *Config {
	return &Config{
		Level:          "info",
		Format:         "text",
		RedactedFields: []string{"token", "api_key", "secret_access_key"},
	}
}

// ApplyConfig creates a logger from a configuration.
func ApplyConfig(config *Config, options ...LoggerOption) (Logger, error) {
	if config == nil {
		config = DefaultConfig()
	}

	level, err := ParseLevel(config.Level)
	if err != nil {
		return nil, err
	}

	opts := []LoggerOption{WithLevel(level)}

	switch strings.ToLower(config.Format) {
	case "json":
		opts = append(opts, WithFormatter(&JSONFormatter{EnableCaller: config.EnableCaller}))
	case "text", "":
		opts = append(opts, WithFormatter(&TextFormatter{EnableCaller: config.EnableCaller}))
	default:
		return nil, fmt.Errorf("invalid log format: %s", config.Format)
	}

	if len(config.RedactedFields) > 0 {
		opts = append(opts, WithHook(NewRedactionHook(config.RedactedFields)))
	}

	return NewLogger(append(opts, options...)...), nil
}

// ParseLevel parses a level string into a Level.
func ParseLevel(level string) (Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return DebugLevel, nil
	case "info", "":
		return InfoLevel, nil
	case "warn", "warning":
		return WarnLevel, nil
	case "error":
		return ErrorLevel, nil
	case "fatal":
		return FatalLevel, nil
	default:
		return InfoLevel, fmt.Errorf("unknown log level: %s", level)
	}
}
