package run

import (
	"io"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log field names.
const (
	fieldFile      = "file"
	fieldInterface = "interface"
	fieldMethods   = "methods"
	fieldMock      = "mock"
	fieldOutput    = "output"
	fieldHint      = "hint"
	fieldChanged   = "changed"
	fieldHeaders   = "headers"
)

// NewLogger builds a logger writing to out: a console encoder at info level by default, JSON with
// jsonFormat, debug level with verbose. Timestamps are omitted so runs are reproducible.
func NewLogger(out zapcore.WriteSyncer, verbose, jsonFormat bool) *zap.Logger {
	level := zapcore.InfoLevel
	if verbose {
		level = zapcore.DebugLevel
	}

	var encoder zapcore.Encoder

	if jsonFormat {
		encoderConfig := zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = ""
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	} else {
		encoderConfig := zap.NewDevelopmentEncoderConfig()
		encoderConfig.TimeKey = ""
		encoderConfig.CallerKey = ""
		encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	}

	return zap.New(zapcore.NewCore(encoder, out, level))
}

// lockedOutput serializes writes from parallel workers to one writer.
func lockedOutput(out io.Writer) zapcore.WriteSyncer {
	return zapcore.Lock(zapcore.AddSync(out))
}
