package utils

/*
Tagged leveled logger on top of zap, keeping the printf style call sites:

	var logger = utils.NewLogger("p2p")
	logger.Warn("dial %v failed:%v\n", addr, err)
*/

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	LogErrorLevel int = 0
	LogWarnLevel  int = 1
	LogInfoLevel  int = 2
	LogDebugLevel int = 3
)

// LogConfig configures the process wide log output
type LogConfig struct {
	Level int
	// File rotates the output into this file instead of stdout
	File       string
	MaxSizeMB  int
	MaxBackups int
	JSON       bool
}

var (
	atomLevel = zap.NewAtomicLevelAt(zapcore.DebugLevel)

	baseMutex sync.RWMutex
	base      = newZap(LogConfig{Level: LogDebugLevel})

	stdoutLog = NewLogger("")
)

func newZap(conf LogConfig) *zap.Logger {
	encConf := zap.NewProductionEncoderConfig()
	encConf.TimeKey = "ts"
	encConf.EncodeTime = zapcore.TimeEncoderOfLayout(timeFormat)

	var enc zapcore.Encoder
	if conf.JSON {
		enc = zapcore.NewJSONEncoder(encConf)
	} else {
		encConf.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(encConf)
	}

	var ws zapcore.WriteSyncer
	if len(conf.File) != 0 {
		ws = zapcore.AddSync(&lumberjack.Logger{
			Filename:   conf.File,
			MaxSize:    conf.MaxSizeMB,
			MaxBackups: conf.MaxBackups,
		})
	} else {
		ws = zapcore.Lock(os.Stdout)
	}

	core := zapcore.NewCore(enc, ws, atomLevel)
	return zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))
}

// InitLog replaces the log output, it should be called before any goroutine logs
func InitLog(conf LogConfig) error {
	if conf.Level < LogErrorLevel || conf.Level > LogDebugLevel {
		return fmt.Errorf("invalid log level:%d", conf.Level)
	}
	SetLogLevel(conf.Level)

	baseMutex.Lock()
	defer baseMutex.Unlock()
	base.Sync()
	base = newZap(conf)
	return nil
}

// SyncLog flushes buffered log entries
func SyncLog() {
	baseMutex.RLock()
	defer baseMutex.RUnlock()
	base.Sync()
}

func SetLogLevel(level int) {
	switch level {
	case LogErrorLevel:
		atomLevel.SetLevel(zapcore.ErrorLevel)
	case LogWarnLevel:
		atomLevel.SetLevel(zapcore.WarnLevel)
	case LogInfoLevel:
		atomLevel.SetLevel(zapcore.InfoLevel)
	default:
		atomLevel.SetLevel(zapcore.DebugLevel)
	}
}

func GetLogLevel() int {
	switch atomLevel.Level() {
	case zapcore.ErrorLevel:
		return LogErrorLevel
	case zapcore.WarnLevel:
		return LogWarnLevel
	case zapcore.InfoLevel:
		return LogInfoLevel
	default:
		return LogDebugLevel
	}
}

func GetStdoutLog() *Logger {
	return stdoutLog
}

// Logger prefixes every entry with its tag, like "[p2p]"
type Logger struct {
	tag string
}

func NewLogger(tag string) *Logger {
	return &Logger{tag: tag}
}

func (l *Logger) sugar() *zap.SugaredLogger {
	baseMutex.RLock()
	defer baseMutex.RUnlock()
	if len(l.tag) == 0 {
		return base.Sugar()
	}
	return base.Named(l.tag).Sugar()
}

// the call sites keep the trailing "\n" of the std logger era
func trim(msg string) string {
	return strings.TrimRight(msg, "\n")
}

func (l *Logger) Fatal(format string, v ...interface{}) {
	l.sugar().Fatal(trim(fmt.Sprintf(format, v...)))
}

func (l *Logger) Fatalln(v ...interface{}) {
	l.sugar().Fatal(trim(fmt.Sprintln(v...)))
}

func (l *Logger) Error(format string, v ...interface{}) {
	l.sugar().Error(trim(fmt.Sprintf(format, v...)))
}

func (l *Logger) Errorln(v ...interface{}) {
	l.sugar().Error(trim(fmt.Sprintln(v...)))
}

func (l *Logger) Warn(format string, v ...interface{}) {
	l.sugar().Warn(trim(fmt.Sprintf(format, v...)))
}

func (l *Logger) Warnln(v ...interface{}) {
	l.sugar().Warn(trim(fmt.Sprintln(v...)))
}

func (l *Logger) Info(format string, v ...interface{}) {
	l.sugar().Info(trim(fmt.Sprintf(format, v...)))
}

func (l *Logger) Infoln(v ...interface{}) {
	l.sugar().Info(trim(fmt.Sprintln(v...)))
}

func (l *Logger) Debug(format string, v ...interface{}) {
	if LogDebugLevel <= GetLogLevel() {
		l.sugar().Debug(trim(fmt.Sprintf(format, v...)))
	}
}

func (l *Logger) Debugln(v ...interface{}) {
	if LogDebugLevel <= GetLogLevel() {
		l.sugar().Debug(trim(fmt.Sprintln(v...)))
	}
}
