package logger

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

var log *logrus.Logger

// LogLevel represents the logging level
type LogLevel string

const (
	DEBUG LogLevel = "DEBUG"
	INFO  LogLevel = "INFO"
	WARN  LogLevel = "WARN"
	ERROR LogLevel = "ERROR"
)

// Init initializes the global logger with the specified log level.
// Unknown levels fall back to INFO.
func Init(logLevel string) {
	InitWithOutput(logLevel, os.Stdout)
}

// InitWithOutput initializes the global logger writing JSON lines to out
func InitWithOutput(logLevel string, out io.Writer) {
	log = logrus.New()
	log.SetOutput(out)
	log.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyMsg: "message",
		},
	})

	level, err := logrus.ParseLevel(strings.ToLower(logLevel))
	if err != nil {
		level = logrus.InfoLevel
		log.Warnf("Invalid log level '%s', defaulting to INFO", logLevel)
	}
	log.SetLevel(level)

	log.WithField("level", level.String()).Debug("Logger initialized")
}

// GetLogger returns the global logger instance, initializing it at INFO on first use
func GetLogger() *logrus.Logger {
	if log == nil {
		Init(string(INFO))
	}
	return log
}

// Component returns an entry tagged with the emitting component
func Component(name string) *logrus.Entry {
	return GetLogger().WithField("component", name)
}

func Debug(args ...interface{}) {
	GetLogger().Debug(args...)
}

func Debugf(format string, args ...interface{}) {
	GetLogger().Debugf(format, args...)
}

func Info(args ...interface{}) {
	GetLogger().Info(args...)
}

func Infof(format string, args ...interface{}) {
	GetLogger().Infof(format, args...)
}

func Warn(args ...interface{}) {
	GetLogger().Warn(args...)
}

func Warnf(format string, args ...interface{}) {
	GetLogger().Warnf(format, args...)
}

func Error(args ...interface{}) {
	GetLogger().Error(args...)
}

func Errorf(format string, args ...interface{}) {
	GetLogger().Errorf(format, args...)
}

// Fatalf logs a formatted message and exits the process
func Fatalf(format string, args ...interface{}) {
	GetLogger().Fatalf(format, args...)
}

// WithField returns a logger entry with a single field
func WithField(key string, value interface{}) *logrus.Entry {
	return GetLogger().WithField(key, value)
}

// WithFields returns a logger entry with multiple fields
func WithFields(fields logrus.Fields) *logrus.Entry {
	return GetLogger().WithFields(fields)
}

// WithError returns a logger entry carrying err under the "error" key
func WithError(err error) *logrus.Entry {
	return GetLogger().WithError(err)
}
