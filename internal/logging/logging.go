// Package logging builds the zap logger shared by all minet commands.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options configures New.
type Options struct {
	// Level is one of debug, info, warn or error. Empty means info.
	Level string

	// Verbose forces debug output, Quiet limits output to warnings and
	// errors. Verbose wins when both are set.
	Verbose bool
	Quiet   bool

	// Development adds caller information and stack traces on errors.
	Development bool

	// Output receives the log lines. Nil means stderr.
	Output io.Writer
}

// ParseLevel parses a level name.
func ParseLevel(s string) (zapcore.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return zap.DebugLevel, nil
	case "", "info":
		return zap.InfoLevel, nil
	case "warn", "warning":
		return zap.WarnLevel, nil
	case "error":
		return zap.ErrorLevel, nil
	}
	return zap.InfoLevel, fmt.Errorf("unknown log level %q", s)
}

// New builds a console logger writing to opts.Output.
func New(opts Options) (*zap.Logger, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}
	switch {
	case opts.Verbose:
		level = zap.DebugLevel
	case opts.Quiet && level < zap.WarnLevel:
		level = zap.WarnLevel
	}

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.TimeKey = ""
	encCfg.CallerKey = ""
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	var zopts []zap.Option
	if opts.Development {
		encCfg.TimeKey = "T"
		encCfg.CallerKey = "C"
		zopts = append(zopts, zap.AddCaller(), zap.AddStacktrace(zap.ErrorLevel))
	}

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encCfg),
		zapcore.AddSync(out),
		zap.NewAtomicLevelAt(level),
	)
	return zap.New(core, zopts...), nil
}
