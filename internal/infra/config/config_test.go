package config

import (
	"testing"
	"time"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse()
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if cfg.Store.Driver != "memory" {
		t.Fatalf("ожидали хранилище в памяти по умолчанию, получили %q", cfg.Store.Driver)
	}
	if cfg.Feed.DefaultPageSize != 10 || cfg.Feed.MaxPageSize != 100 {
		t.Fatalf("неожиданные размеры страницы: %d/%d", cfg.Feed.DefaultPageSize, cfg.Feed.MaxPageSize)
	}
	if cfg.Scheduler.Interval != 5*time.Second || !cfg.Scheduler.Embedded {
		t.Fatalf("неожиданные настройки планировщика: %+v", cfg.Scheduler)
	}
}

func TestParseFromEnv(t *testing.T) {
	t.Setenv("STORE_DRIVER", "sqlite")
	t.Setenv("SQLITE_PATH", "/tmp/broadcasts.db")
	t.Setenv("SCHEDULER_INTERVAL", "2s")
	t.Setenv("SCHEDULER_EMBEDDED", "false")
	t.Setenv("USER_RPS", "2.5")
	t.Setenv("JWT_SECRET", "s3cret")

	cfg, err := Parse()
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if cfg.Store.Driver != "sqlite" || cfg.Store.SQLitePath != "/tmp/broadcasts.db" {
		t.Fatalf("неожиданные настройки хранилища: %+v", cfg.Store)
	}
	if cfg.Scheduler.Interval != 2*time.Second || cfg.Scheduler.Embedded {
		t.Fatalf("неожиданные настройки планировщика: %+v", cfg.Scheduler)
	}
	if cfg.Feed.UserRPS != 2.5 || cfg.Auth.JWTSecret != "s3cret" {
		t.Fatalf("неожиданные значения: rps=%v secret=%q", cfg.Feed.UserRPS, cfg.Auth.JWTSecret)
	}
}

func TestParseRejectsMalformedDuration(t *testing.T) {
	t.Setenv("SCHEDULER_INTERVAL", "soon")
	if _, err := Parse(); err == nil {
		t.Fatalf("ожидали ошибку разбора длительности")
	}
}
