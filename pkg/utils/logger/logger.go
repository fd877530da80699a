// Package logger wraps zap with the rotation strategies the endpoint needs:
// lumberjack for size-bounded rotation, file-rotatelogs for calendar rotation.
package logger

import (
	"io"
	"os"
	"time"

	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Level = zapcore.Level

const (
	DebugLevel = zapcore.DebugLevel
	InfoLevel  = zapcore.InfoLevel
	WarnLevel  = zapcore.WarnLevel
	ErrorLevel = zapcore.ErrorLevel
)

// Logger is the package-level facade; swap it with ReplaceDefault for a
// production build with rotation configured.
type Logger struct {
	z    *zap.SugaredLogger
	atom zap.AtomicLevel
}

var def = newDefault()

func newDefault() *Logger {
	atom := zap.NewAtomicLevelAt(InfoLevel)
	cfg := zap.NewDevelopmentEncoderConfig()
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(cfg), zapcore.Lock(os.Stdout), atom)
	return &Logger{z: zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)).Sugar(), atom: atom}
}

// New builds a Logger writing JSON records to out at the given level.
func New(out io.Writer, level Level) *Logger {
	atom := zap.NewAtomicLevelAt(level)
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(cfg), zapcore.AddSync(out), atom)
	return &Logger{z: zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)).Sugar(), atom: atom}
}

// NewProductionRotateByTime returns a writer that rolls the log file daily,
// keeping a week of history, via file-rotatelogs.
func NewProductionRotateByTime(path string) io.Writer {
	w, err := rotatelogs.New(
		path+".%Y%m%d",
		rotatelogs.WithLinkName(path),
		rotatelogs.WithMaxAge(7*24*time.Hour),
		rotatelogs.WithRotationTime(24*time.Hour),
	)
	if err != nil {
		// caller cannot recover from a broken rotation target; fall back to stderr
		return os.Stderr
	}
	return w
}

// NewProductionRotateBySize returns a writer that rolls the log file once it
// exceeds maxMB megabytes, via lumberjack, keeping maxBackups old files.
func NewProductionRotateBySize(path string, maxMB, maxBackups int) io.Writer {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxMB,
		MaxBackups: maxBackups,
		MaxAge:     28,
		Compress:   true,
	}
}

// ReplaceDefault swaps the package-level logger, returning a function that
// restores the previous one.
func ReplaceDefault(l *Logger) func() {
	prev := def
	def = l
	return func() { def = prev }
}

func SetLevel(level Level) { def.atom.SetLevel(level) }

func Sync() error { return def.z.Sync() }

// GetError wraps err with a stack trace when it does not already carry one;
// useful at the boundary where a collaborator returns a bare error.
func GetError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := err.(stackTracer); ok {
		return err
	}
	return errors.WithStack(err)
}

type stackTracer interface {
	StackTrace() errors.StackTrace
}

func Debug(args ...interface{})                 { def.z.Debug(args...) }
func Debugf(format string, args ...interface{}) { def.z.Debugf(format, args...) }
func Info(args ...interface{})                  { def.z.Info(args...) }
func Infof(format string, args ...interface{})  { def.z.Infof(format, args...) }
func Warn(args ...interface{})                  { def.z.Warn(args...) }
func Warnf(format string, args ...interface{})  { def.z.Warnf(format, args...) }
func Error(args ...interface{})                 { def.z.Error(args...) }
func Errorf(format string, args ...interface{}) { def.z.Errorf(format, args...) }
