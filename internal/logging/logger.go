// Package logging builds the process logger: console output plus rotated combined and error files.
package logging

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	CombinedFile = "combined.log"
	ErrorFile    = "error.log"

	maxSizeMB  = 50
	maxBackups = 5
	maxAgeDays = 30
)

// New returns a logger writing human readable lines to stderr and, when dir is set,
// JSON lines to dir/combined.log (every level) and dir/error.log (error and above).
func New(level, dir string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid log level %q", level)
	}
	atomic := zap.NewAtomicLevelAt(lvl)

	consoleCfg := zap.NewDevelopmentEncoderConfig()
	consoleCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	consoleCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(consoleCfg), zapcore.Lock(os.Stderr), atomic),
	}

	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrapf(err, "create log dir %s", dir)
		}
		fileCfg := zap.NewProductionEncoderConfig()
		fileCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		jsonEncoder := zapcore.NewJSONEncoder(fileCfg)

		cores = append(cores,
			zapcore.NewCore(jsonEncoder, zapcore.AddSync(rotated(filepath.Join(dir, CombinedFile))), atomic),
			zapcore.NewCore(jsonEncoder.Clone(), zapcore.AddSync(rotated(filepath.Join(dir, ErrorFile))), zap.ErrorLevel),
		)
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller()), nil
}

func rotated(path string) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		MaxAge:     maxAgeDays,
		Compress:   true,
	}
}
