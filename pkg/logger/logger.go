package logger

import (
	"sort"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
)

var (
	mu    sync.RWMutex
	level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	base  = newBase()
)

func newBase() *zap.Logger {
	cfg := zap.NewProductionConfig()
	cfg.Level = level
	cfg.Encoding = "json"
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.DisableStacktrace = true
	l, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return l
}

// SetLevel changes the minimum level for all components.
func SetLevel(l LogLevel) {
	level.SetLevel(toZap(l))
}

func GetLevel() LogLevel {
	switch level.Level() {
	case zapcore.DebugLevel:
		return DEBUG
	case zapcore.WarnLevel:
		return WARN
	case zapcore.ErrorLevel:
		return ERROR
	default:
		return INFO
	}
}

// SetLogger swaps the underlying zap logger. Used by tests (zaptest/observer)
// and by the CLI when a development encoder is wanted.
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	mu.Lock()
	base = l
	mu.Unlock()
}

func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	_ = base.Sync()
}

func toZap(l LogLevel) zapcore.Level {
	switch l {
	case DEBUG:
		return zapcore.DebugLevel
	case WARN:
		return zapcore.WarnLevel
	case ERROR:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func logMessage(l LogLevel, component, message string, fields map[string]interface{}) {
	mu.RLock()
	lg := base
	mu.RUnlock()

	ce := lg.Check(toZap(l), message)
	if ce == nil {
		return
	}

	zf := make([]zap.Field, 0, len(fields)+1)
	if component != "" {
		zf = append(zf, zap.String("component", component))
	}
	// Stable key order keeps log lines diffable.
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		zf = append(zf, zap.Any(k, fields[k]))
	}
	ce.Write(zf...)
}

func Debug(message string) { logMessage(DEBUG, "", message, nil) }
func Info(message string)  { logMessage(INFO, "", message, nil) }
func Warn(message string)  { logMessage(WARN, "", message, nil) }
func Error(message string) { logMessage(ERROR, "", message, nil) }

func DebugC(component, message string) { logMessage(DEBUG, component, message, nil) }
func InfoC(component, message string)  { logMessage(INFO, component, message, nil) }
func WarnC(component, message string)  { logMessage(WARN, component, message, nil) }
func ErrorC(component, message string) { logMessage(ERROR, component, message, nil) }

func DebugCF(component, message string, fields map[string]interface{}) {
	logMessage(DEBUG, component, message, fields)
}

func InfoCF(component, message string, fields map[string]interface{}) {
	logMessage(INFO, component, message, fields)
}

func WarnCF(component, message string, fields map[string]interface{}) {
	logMessage(WARN, component, message, fields)
}

func ErrorCF(component, message string, fields map[string]interface{}) {
	logMessage(ERROR, component, message, fields)
}
