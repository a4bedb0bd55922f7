// Package logging configures the process-wide logrus logger.
package logging

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

var Log *logrus.Logger

// Init builds the shared logger. level falls back to LOG_LEVEL and then
// "info"; format is "json" or "text" (default json, the shape our log
// shipper expects).
func Init(level, format string) *logrus.Logger {
	Log = logrus.New()
	Log.SetOutput(os.Stdout)

	if strings.EqualFold(format, "text") {
		Log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		Log.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		})
	}

	if level == "" {
		level = os.Getenv("LOG_LEVEL")
	}
	if level == "" {
		level = "info"
	}
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	Log.SetLevel(parsed)
	return Log
}

func WithField(key string, value any) *logrus.Entry {
	return ensure().WithField(key, value)
}

func WithFields(fields logrus.Fields) *logrus.Entry {
	return ensure().WithFields(fields)
}

func ensure() *logrus.Logger {
	if Log == nil {
		Init("", "")
	}
	return Log
}
