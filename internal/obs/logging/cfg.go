package logging

import "go.uber.org/zap/zapcore"

// Config is the configuration for the logging subsystem.
type Config struct {
	// Level is the minimum logging level.
	Level zapcore.Level `yaml:"level"`
}

// DefaultConfig returns sane logging defaults for a standalone journal
// process.
func DefaultConfig() *Config {
	return &Config{
		Level: zapcore.InfoLevel,
	}
}
