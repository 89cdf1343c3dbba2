package log

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
)

func TestNewLoggerProdWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := Component(newLogger("prod", &buf), "scheduler")
	logger.Debug().Msg("скрыто")
	logger.Info().Str("broadcast_id", "b1").Msg("scheduler: published")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("ожидали одну JSON-строку, получили %q: %v", buf.String(), err)
	}
	if entry["component"] != "scheduler" || entry["broadcast_id"] != "b1" {
		t.Fatalf("неожиданные поля: %v", entry)
	}
	if logger.GetLevel() != zerolog.InfoLevel {
		t.Fatalf("ожидали уровень info, получили %v", logger.GetLevel())
	}
}

func TestNewLoggerDevEnablesDebug(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger("dev", &buf)
	logger.Debug().Msg("отладка")
	if !bytes.Contains(buf.Bytes(), []byte("отладка")) {
		t.Fatalf("ожидали debug-сообщение в dev, получили %q", buf.String())
	}
}
