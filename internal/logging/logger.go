// Package logging installs the process-wide zap logger.
package logging

import (
	"fmt"
	"os"

	"github.com/mattn/go-colorable"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Init builds a logger that writes JSON to path (when non-empty) and colored
// text to stdout, then installs it as the zap global. The returned function
// flushes buffered entries and closes the file.
func Init(path string, debug bool) (func(), error) {
	level := zap.InfoLevel
	if debug {
		level = zap.DebugLevel
	}

	pe := zap.NewProductionEncoderConfig()
	pe.EncodeTime = zapcore.ISO8601TimeEncoder
	pe.MessageKey = "message"
	pe.TimeKey = "time"
	fileEncoder := zapcore.NewJSONEncoder(pe)

	pe.EncodeLevel = zapcore.CapitalColorLevelEncoder
	consoleEncoder := zapcore.NewConsoleEncoder(pe)

	cores := []zapcore.Core{
		zapcore.NewCore(consoleEncoder, zapcore.AddSync(colorable.NewColorableStdout()), level),
	}

	var f *os.File
	if path != "" {
		var err error
		f, err = os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		cores = append(cores, zapcore.NewCore(fileEncoder, zapcore.AddSync(f), level))
	}

	logger := zap.New(zapcore.NewTee(cores...))
	restore := zap.ReplaceGlobals(logger)

	return func() {
		_ = logger.Sync()
		restore()
		if f != nil {
			_ = f.Close()
		}
	}, nil
}
