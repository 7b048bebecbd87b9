package logger

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

const timeFmt = "2006/01/02 15:04:05.000"

var (
	mu      sync.RWMutex
	log     = zap.NewNop()
	logDir  string
	appName = "spinwheel"
)

// SetFileOutput enables rotating log files under dir on the next Init.
// An empty dir disables file output.
func SetFileOutput(dir string) {
	mu.Lock()
	defer mu.Unlock()
	logDir = dir
}

// Init (re)builds the process-wide logger. debug=true lowers the level to DEBUG.
func Init(debug bool) {
	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if debug {
		level.SetLevel(zapcore.DebugLevel)
	}

	mu.Lock()
	defer mu.Unlock()

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg(false)), zapcore.Lock(os.Stdout), level),
	}
	if logDir != "" {
		name := filepath.Join(logDir, appName)
		cores = append(cores,
			fileCore(name+".log", level),
			fileCore(name+"_error.log", zapcore.ErrorLevel),
		)
	}

	// ログバッファへはhook経由で積む（/api/logs 用）
	log = zap.New(zapcore.NewTee(cores...),
		zap.AddCaller(),
		zap.AddCallerSkip(1),
		zap.Hooks(func(e zapcore.Entry) error {
			logBuffer.add(LogEntry{
				Timestamp: e.Time,
				Level:     e.Level.CapitalString(),
				Message:   e.Message,
				Caller:    e.Caller.TrimmedPath(),
			})
			return nil
		}),
	)
}

func fileCore(file string, lv zapcore.LevelEnabler) zapcore.Core {
	w := &lumberjack.Logger{
		Filename:   file,
		MaxSize:    50,
		MaxBackups: 5,
		MaxAge:     14,
		Compress:   true,
	}
	return zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg(true)), zapcore.AddSync(w), lv)
}

func encCfg(file bool) zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString("[" + t.Format(timeFmt) + "]")
	}
	cfg.ConsoleSeparator = " "
	cfg.EncodeCaller = zapcore.ShortCallerEncoder
	if file {
		cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	} else {
		cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	return cfg
}

func current() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return log
}

// L returns the underlying zap logger.
func L() *zap.Logger {
	return current()
}

func Debug(msg string, fields ...zap.Field) { current().Debug(msg, fields...) }
func Info(msg string, fields ...zap.Field)  { current().Info(msg, fields...) }
func Warn(msg string, fields ...zap.Field)  { current().Warn(msg, fields...) }
func Error(msg string, fields ...zap.Field) { current().Error(msg, fields...) }
func Fatal(msg string, fields ...zap.Field) { current().Fatal(msg, fields...) }

// Sync flushes any buffered log entries.
func Sync() {
	_ = current().Sync()
}
