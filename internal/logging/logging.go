package logging

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"

	session "github.com/sangteak/tcpsess"
)

// Init builds a SugaredLogger the same way
// _examples/sakateka-yanet2/common/go/logging does: console encoding,
// color level names on a TTY, plain otherwise.
func Init(cfg *Config) (*zap.SugaredLogger, zap.AtomicLevel, error) {
	encoderConfig := zap.NewDevelopmentEncoderConfig()

	if term.IsTerminal(int(os.Stderr.Fd())) {
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	}

	config := zap.Config{
		Level:            zap.NewAtomicLevelAt(cfg.Level),
		Development:      false,
		Encoding:         "console",
		EncoderConfig:    encoderConfig,
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := config.Build()
	if err != nil {
		return nil, zap.AtomicLevel{}, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return logger.Sugar(), config.Level, nil
}

// Adapter implements session.Logging over a *zap.SugaredLogger, letting the
// demo binaries give the core a structured logging sink without the core
// package itself importing zap.
type Adapter struct {
	log *zap.SugaredLogger
}

// NewAdapter wraps log as a session.Logging sink.
func NewAdapter(log *zap.SugaredLogger) *Adapter {
	return &Adapter{log: log}
}

// Log implements session.Logging.
func (a *Adapter) Log(level session.LogLevel, message string) {
	switch level {
	case session.LogTrace, session.LogDebug:
		a.log.Debug(message)
	case session.LogInfo:
		a.log.Info(message)
	case session.LogWarn:
		a.log.Warn(message)
	case session.LogError:
		a.log.Error(message)
	default:
		a.log.Info(message)
	}
}
