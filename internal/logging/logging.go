// Package logging builds the zap logger used by extload.
package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"

	"github.com/dshills/extload/internal/config"
)

// New creates a logger writing to stderr. Format "auto" picks the console
// encoder when stderr is a terminal and JSON otherwise.
func New(cfg config.LogConfig) (*zap.Logger, error) {
	tty := term.IsTerminal(int(os.Stderr.Fd()))
	return Build(cfg, zapcore.Lock(os.Stderr), tty)
}

// Build creates a logger writing to ws. tty decides what "auto" means.
func Build(cfg config.LogConfig, ws zapcore.WriteSyncer, tty bool) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	var enc zapcore.EncoderConfig
	if level == zapcore.DebugLevel {
		enc = zap.NewDevelopmentEncoderConfig()
	} else {
		enc = zap.NewProductionEncoderConfig()
	}
	enc.LevelKey = "level"
	enc.TimeKey = "time"
	enc.MessageKey = "message"

	var encoder zapcore.Encoder
	if Console(cfg.Format, tty) {
		enc.EncodeLevel = zapcore.CapitalColorLevelEncoder
		if !tty {
			enc.EncodeLevel = zapcore.CapitalLevelEncoder
		}
		enc.EncodeTime = zapcore.ISO8601TimeEncoder
		encoder = zapcore.NewConsoleEncoder(enc)
	} else {
		enc.EncodeLevel = zapcore.LowercaseLevelEncoder
		enc.EncodeTime = zapcore.ISO8601TimeEncoder
		encoder = zapcore.NewJSONEncoder(enc)
	}

	core := zapcore.NewCore(encoder, ws, zap.NewAtomicLevelAt(level))
	opts := []zap.Option{zap.ErrorOutput(ws)}
	if level == zapcore.DebugLevel {
		opts = append(opts, zap.AddCaller())
	}
	return zap.New(core, opts...), nil
}

// Console reports whether format selects the console encoder.
func Console(format string, tty bool) bool {
	switch format {
	case "console":
		return true
	case "json":
		return false
	default:
		return tty
	}
}
