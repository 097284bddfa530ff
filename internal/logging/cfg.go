package logging

import "go.uber.org/zap/zapcore"

// Config is the YAML-bound logging configuration for the demo binaries.
type Config struct {
	// Level is the minimum zap level emitted.
	Level zapcore.Level `yaml:"level"`
}
