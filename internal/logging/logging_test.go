package logging

import (
	"testing"

	"github.com/sirupsen/logrus"
)

func TestInitLevels(t *testing.T) {
	cases := []struct {
		name  string
		level string
		want  logrus.Level
	}{
		{"explicit debug", "debug", logrus.DebugLevel},
		{"default info", "", logrus.InfoLevel},
		{"garbage falls back", "loud", logrus.InfoLevel},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			log := Init(tc.level, "json")
			if log.GetLevel() != tc.want {
				t.Fatalf("level = %v, want %v", log.GetLevel(), tc.want)
			}
		})
	}
}

func TestInitEnvFallback(t *testing.T) {
	t.Setenv("LOG_LEVEL", "warn")
	log := Init("", "json")
	if log.GetLevel() != logrus.WarnLevel {
		t.Fatalf("level = %v, want warn from LOG_LEVEL", log.GetLevel())
	}
}

func TestInitFormats(t *testing.T) {
	log := Init("info", "text")
	if _, ok := log.Formatter.(*logrus.TextFormatter); !ok {
		t.Fatalf("formatter = %T, want text", log.Formatter)
	}
	log = Init("info", "json")
	if _, ok := log.Formatter.(*logrus.JSONFormatter); !ok {
		t.Fatalf("formatter = %T, want json", log.Formatter)
	}
}

func TestWithFieldInitializes(t *testing.T) {
	Log = nil
	e := WithField("component", "test")
	if e == nil || Log == nil {
		t.Fatal("WithField did not initialize the shared logger")
	}
}
