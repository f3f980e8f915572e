package log

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var _ Logger = (*ZapLogger)(nil)

// Options configures the zap core built by NewZap.
type Options struct {
	Level      string `json:"level" yaml:"level"`
	Path       string `json:"path" yaml:"path"` // empty writes to stderr
	MaxSize    int    `json:"max_size" yaml:"max_size"`
	MaxBackups int    `json:"max_backups" yaml:"max_backups"`
	MaxAge     int    `json:"max_age" yaml:"max_age"`
	Compress   bool   `json:"compress" yaml:"compress"`
	Console    bool   `json:"console" yaml:"console"` // console encoder instead of json
}

// ZapLogger adapts a *zap.Logger to Logger.
type ZapLogger struct {
	log    *zap.Logger
	msgKey string
}

// NewZapLogger return a zap logger.
func NewZapLogger(z *zap.Logger) *ZapLogger {
	return &ZapLogger{
		log:    z,
		msgKey: DefaultMessageKey,
	}
}

// NewZap builds a *zap.Logger. File output is rotated by lumberjack.
func NewZap(opt Options) *zap.Logger {
	var w io.Writer = os.Stderr
	if opt.Path != "" {
		w = &lumberjack.Logger{
			Filename:   opt.Path,
			MaxSize:    opt.MaxSize,
			MaxBackups: opt.MaxBackups,
			MaxAge:     opt.MaxAge,
			Compress:   opt.Compress,
			LocalTime:  true,
		}
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = ""
	encCfg.MessageKey = DefaultMessageKey
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	encoder := zapcore.NewJSONEncoder(encCfg)
	if opt.Console {
		encoder = zapcore.NewConsoleEncoder(encCfg)
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(w), zapLevel(ParseLevel(opt.Level)))
	return zap.New(core)
}

func zapLevel(level Level) zapcore.Level {
	switch level {
	case LevelDebug:
		return zapcore.DebugLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelError:
		return zapcore.ErrorLevel
	case LevelFatal:
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

// Log implements Logger.
func (l *ZapLogger) Log(level Level, keyvals ...any) error {
	if len(keyvals) == 0 || len(keyvals)%2 != 0 {
		l.log.Warn(fmt.Sprint("keyvalues must appear in pairs: ", keyvals))
		return nil
	}

	var msg string
	data := make([]zap.Field, 0, (len(keyvals)/2)+1)
	for i := 0; i < len(keyvals); i += 2 {
		key := fmt.Sprint(keyvals[i])
		if key == l.msgKey {
			msg = fmt.Sprint(keyvals[i+1])
			continue
		}
		data = append(data, zap.Any(key, keyvals[i+1]))
	}

	switch level {
	case LevelDebug:
		l.log.Debug(msg, data...)
	case LevelInfo:
		l.log.Info(msg, data...)
	case LevelWarn:
		l.log.Warn(msg, data...)
	case LevelError:
		l.log.Error(msg, data...)
	case LevelFatal:
		l.log.Fatal(msg, data...)
	}
	return nil
}

// Enabled reports whether the zap core emits the level.
func (l *ZapLogger) Enabled(level Level) bool {
	return l.log.Core().Enabled(zapLevel(level))
}

// Sync flushes buffered logs.
func (l *ZapLogger) Sync() error {
	return l.log.Sync()
}

// Close flushes buffered logs.
func (l *ZapLogger) Close() error {
	return l.Sync()
}
