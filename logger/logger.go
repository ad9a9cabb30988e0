// Package logger provides leveled logging shared by the allocator packages.
package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	level zap.AtomicLevel
	sugar *zap.SugaredLogger
)

func init() {
	level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = level
	l, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		panic(err)
	}
	sugar = l.Sugar()
}

// SetLevel changes the minimum level emitted by all packages.
func SetLevel(l zapcore.Level) {
	level.SetLevel(l)
}

// Debug logs debug information
func Debug(format string, v ...interface{}) {
	sugar.Debugf(format, v...)
}

// Info logs info information
func Info(format string, v ...interface{}) {
	sugar.Infof(format, v...)
}

// Error logs error information
func Error(format string, v ...interface{}) {
	sugar.Errorf(format, v...)
}

// Fatal logs the message and terminates the process.
func Fatal(format string, v ...interface{}) {
	sugar.Fatalf(format, v...)
}
