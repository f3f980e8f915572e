package log

import (
	"context"
	"sync"
)

// DefaultLogger is default logger.
var DefaultLogger Logger = NewZapLogger(NewZap(Options{Level: "info", Console: true}))

var global = &loggerAppliance{}

type loggerAppliance struct {
	lock sync.RWMutex
	Logger
	helper *Helper
}

func init() {
	global.SetLogger(DefaultLogger)
}

func (a *loggerAppliance) SetLogger(in Logger) {
	a.lock.Lock()
	defer a.lock.Unlock()
	a.Logger = in
	a.helper = NewHelper(a.Logger)
}

func (a *loggerAppliance) GetLogger() Logger {
	a.lock.RLock()
	defer a.lock.RUnlock()
	return a.Logger
}

func (a *loggerAppliance) Helper() *Helper {
	a.lock.RLock()
	defer a.lock.RUnlock()
	return a.helper
}

// SetLogger should be called before any other log call.
// And it is NOT THREAD SAFE.
func SetLogger(logger Logger) {
	global.SetLogger(logger)
}

// GetLogger returns global logger appliance as logger in current process.
func GetLogger() Logger {
	return global.GetLogger()
}

type fieldsKey struct{}

// NewContext returns a context carrying extra log fields.
func NewContext(ctx context.Context, kv ...any) context.Context {
	if prev, ok := ctx.Value(fieldsKey{}).([]any); ok {
		kv = append(append(make([]any, 0, len(prev)+len(kv)), prev...), kv...)
	}
	return context.WithValue(ctx, fieldsKey{}, kv)
}

// Context returns a helper bound to the fields stored in ctx.
func Context(ctx context.Context) *Helper {
	if kv, ok := ctx.Value(fieldsKey{}).([]any); ok && len(kv) > 0 {
		return NewHelper(With(GetLogger(), kv...))
	}
	return global.Helper()
}

// Enabled reports whether the global logger emits the level.
func Enabled(level Level) bool {
	return global.Helper().Enabled(level)
}

// Log Print log by level and keyvals.
func Log(level Level, keyvals ...any) {
	global.Helper().Log(level, keyvals...)
}

// Debug logs a message at debug level.
func Debug(a ...any) {
	global.Helper().Debug(a...)
}

// Debugf logs a message at debug level.
func Debugf(format string, a ...any) {
	global.Helper().Debugf(format, a...)
}

// Info logs a message at info level.
func Info(a ...any) {
	global.Helper().Info(a...)
}

// Infof logs a message at info level.
func Infof(format string, a ...any) {
	global.Helper().Infof(format, a...)
}

// Warn logs a message at warn level.
func Warn(a ...any) {
	global.Helper().Warn(a...)
}

// Warnf logs a message at warnf level.
func Warnf(format string, a ...any) {
	global.Helper().Warnf(format, a...)
}

// Error logs a message at error level.
func Error(a ...any) {
	global.Helper().Error(a...)
}

// Errorf logs a message at error level.
func Errorf(format string, a ...any) {
	global.Helper().Errorf(format, a...)
}

// Fatal logs a message at fatal level.
func Fatal(a ...any) {
	global.Helper().Fatal(a...)
}

// Fatalf logs a message at fatal level.
func Fatalf(format string, a ...any) {
	global.Helper().Fatalf(format, a...)
}
