// Package logging builds the zap logger used across a run. Entries are
// written as JSON lines to .intel/logs/intel.log so runs can be inspected
// after the terminal view closes.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/kingrea/intel-lattice/internal/config"
)

// FileName is the log file created under the workspace log directory.
const FileName = "intel.log"

// Logger owns the log file backing a zap logger.
type Logger struct {
	*zap.Logger
	file *os.File
	path string
}

type settings struct {
	level   zapcore.Level
	console io.Writer
}

// Option customizes logger construction.
type Option func(*settings)

// WithLevel sets the minimum level from its text form. Unknown values keep
// the info default.
func WithLevel(level string) Option {
	return func(s *settings) {
		if parsed, err := zapcore.ParseLevel(level); err == nil {
			s.level = parsed
		}
	}
}

// WithConsole tees human readable output to w.
func WithConsole(w io.Writer) Option {
	return func(s *settings) {
		s.console = w
	}
}

// New creates (or reuses) the log file for the given workspace.
func New(projectDir string, opts ...Option) (*Logger, error) {
	cfg := settings{level: zapcore.InfoLevel}
	for _, opt := range opts {
		opt(&cfg)
	}
	logDir := filepath.Join(projectDir, config.IntelDir, "logs")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, fmt.Errorf("logging: ensure log dir: %w", err)
	}
	path := filepath.Join(logDir, FileName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("logging: open log file: %w", err)
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), zapcore.AddSync(f), cfg.level),
	}
	if cfg.console != nil {
		consoleCfg := zap.NewDevelopmentEncoderConfig()
		consoleCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		cores = append(cores, zapcore.NewCore(zapcore.NewConsoleEncoder(consoleCfg), zapcore.AddSync(cfg.console), cfg.level))
	}
	return &Logger{
		Logger: zap.New(zapcore.NewTee(cores...)),
		file:   f,
		path:   path,
	}, nil
}

// Path returns the log file location.
func (l *Logger) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// Close flushes buffered entries and releases the file handle.
func (l *Logger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	_ = l.Logger.Sync()
	return l.file.Close()
}
