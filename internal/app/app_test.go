package app

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"broadcast-hub/internal/adapters/repo"
	"broadcast-hub/internal/domain"
	"broadcast-hub/internal/infra/config"
)

func TestOpenDefaultsToMemoryStore(t *testing.T) {
	var cfg config.AppConfig
	infra, err := Open(context.Background(), cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	defer infra.Close()
	if _, ok := infra.Store.(*repo.Memory); !ok {
		t.Fatalf("ожидали хранилище в памяти, получили %T", infra.Store)
	}
	if _, ok := infra.Events.(domain.NopPublisher); !ok {
		t.Fatalf("ожидали отключённую публикацию событий, получили %T", infra.Events)
	}
	if infra.Lease != nil || infra.Health != nil {
		t.Fatalf("без redis и бд аренда и проверка здоровья не нужны")
	}
}

func TestOpenSQLiteStore(t *testing.T) {
	var cfg config.AppConfig
	cfg.Store.Driver = "SQLite"
	cfg.Store.SQLitePath = ":memory:"
	infra, err := Open(context.Background(), cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if err := infra.Health(context.Background()); err != nil {
		t.Fatalf("ожидали доступную базу: %v", err)
	}
	if err := infra.Close(); err != nil {
		t.Fatalf("ошибка закрытия: %v", err)
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	var cfg config.AppConfig
	cfg.Store.Driver = "mongo"
	if _, err := Open(context.Background(), cfg, zerolog.Nop()); err == nil {
		t.Fatalf("ожидали ошибку для неизвестного драйвера")
	}
}
