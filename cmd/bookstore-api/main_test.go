package main

import (
	"testing"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/bookstore/internal/app"
)

func TestConfigureLoggerFromEnv(t *testing.T) {
	env := map[string]string{
		"BOOKSTORE_LOG_LEVEL":  "warn",
		"BOOKSTORE_LOG_FORMAT": "json",
	}
	cfg, err := app.LoadConfig(func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	})
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	prevLevel, prevFormatter := log.GetLevel(), log.StandardLogger().Formatter
	t.Cleanup(func() {
		log.SetLevel(prevLevel)
		log.SetFormatter(prevFormatter)
	})

	app.ConfigureLogger(cfg)

	if log.GetLevel() != log.WarnLevel {
		t.Fatalf("expected warn level, got %s", log.GetLevel())
	}
	if _, ok := log.StandardLogger().Formatter.(*log.JSONFormatter); !ok {
		t.Fatalf("expected json formatter, got %T", log.StandardLogger().Formatter)
	}
}
