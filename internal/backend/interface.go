package backend

import (
	"context"

	"feeledger/internal/ledger"
)

// Stores bundles every port one storage backend provides.
type Stores interface {
	ledger.RecordStore
	ledger.StudentStore
	ledger.ScheduleStore
	ledger.AdminStore
}

// Pinger is implemented by backends with a remote or file handle to probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// CleanupFunc releases backend resources.
type CleanupFunc func() error

// BackendResult contains the stores and an optional cleanup function.
type BackendResult struct {
	Stores  Stores
	Cleanup CleanupFunc
}

// Ping probes the backend when it supports it.
func (r *BackendResult) Ping(ctx context.Context) error {
	if p, ok := r.Stores.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// Close runs Cleanup if set.
func (r *BackendResult) Close() error {
	if r.Cleanup == nil {
		return nil
	}
	return r.Cleanup()
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// SQLite specific
	SQLiteDBPath string

	// Postgres specific
	PostgresDSN          string
	PostgresMaxIdleConns int
	PostgresMaxOpenConns int
}

// BackendType represents the type of backend
type BackendType string

const (
	MemoryBackend   BackendType = "memory"
	SQLiteBackend   BackendType = "sqlite"
	PostgresBackend BackendType = "postgres"
)

func (bt BackendType) String() string {
	return string(bt)
}

func (bt BackendType) IsValid() bool {
	switch bt {
	case MemoryBackend, SQLiteBackend, PostgresBackend:
		return true
	default:
		return false
	}
}
