package backend

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"feeledger/internal/config"
	"feeledger/internal/core"
	"feeledger/internal/log"
)

func TestFromAppConfig(t *testing.T) {
	tests := []struct {
		name    string
		backend string
		wantErr bool
	}{
		{"memory", "memory", false},
		{"sqlite", "sqlite", false},
		{"postgres", "postgres", false},
		{"unknown", "sheets", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := FromAppConfig(&config.Config{DataBackend: tt.backend, SQLiteDBPath: "x.db"})
			if (err != nil) != tt.wantErr {
				t.Fatalf("FromAppConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && cfg.Type.String() != tt.backend {
				t.Errorf("FromAppConfig() Type = %v, want %v", cfg.Type, tt.backend)
			}
		})
	}

	if _, err := FromAppConfig(nil); err == nil {
		t.Error("FromAppConfig(nil) error = nil, want error")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"memory", Config{Type: MemoryBackend}, false},
		{"sqlite without path", Config{Type: SQLiteBackend}, true},
		{"postgres without dsn", Config{Type: PostgresBackend}, true},
		{"invalid type", Config{Type: "redis"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.config.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestCreateBackend(t *testing.T) {
	ctx := context.Background()
	factory := NewFactory(log.Discard())

	for _, cfg := range []Config{
		{Type: MemoryBackend},
		{Type: SQLiteBackend, SQLiteDBPath: filepath.Join(t.TempDir(), "ledger.db")},
	} {
		t.Run(cfg.Type.String(), func(t *testing.T) {
			result, err := factory.CreateBackend(ctx, cfg)
			if err != nil {
				t.Fatalf("CreateBackend() error = %v", err)
			}
			defer result.Close()

			if err := result.Ping(ctx); err != nil {
				t.Errorf("Ping() error = %v", err)
			}
			if _, err := result.Stores.FindStudent(ctx, "nobody"); !errors.Is(err, core.ErrNotFound) {
				t.Errorf("FindStudent() error = %v, want not found", err)
			}
		})
	}
}
