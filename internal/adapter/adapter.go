// Package adapter provides datastore adapter interfaces and implementations.
// The directory data lives in whichever SQL engine the deployment points at;
// adapters normalize connection handling behind one interface.
package adapter

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
)

// Config holds the configuration for connecting to a datastore.
type Config struct {
	// Type specifies the datastore type (e.g. "sqlite", "duckdb", "postgres").
	Type string

	// Path is the file path for file-based databases. Use ":memory:" for
	// in-memory databases.
	Path string

	// Host and Port identify network-based databases.
	Host string
	Port int

	// Database is the database name.
	Database string

	// Username and Password authenticate network connections.
	Username string
	Password string

	// Schema is the default schema to use, where the engine has one.
	Schema string
}

// Rows wraps sql.Rows to keep a consistent surface across adapters.
type Rows struct {
	*sql.Rows
}

// Adapter is implemented by every datastore backend.
type Adapter interface {
	// Connect establishes a connection using the provided config.
	Connect(ctx context.Context, cfg Config) error

	// Close releases the connection.
	Close() error

	// Query executes a statement that returns rows.
	Query(ctx context.Context, sql string) (*Rows, error)

	// QueryRow executes a statement expected to return a single row.
	QueryRow(ctx context.Context, sql string) *sql.Row

	// Exec executes a statement that returns no rows.
	Exec(ctx context.Context, sql string) error
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]func() Adapter)
)

// Register makes an adapter constructor available under a type name.
// Adapters call Register from init.
func Register(name string, factory func() Adapter) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = factory
}

// New returns a fresh adapter for the given type name.
func New(name string) (Adapter, error) {
	registryMu.RLock()
	factory, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown adapter type %q (available: %v)", name, Available())
	}
	return factory(), nil
}

// Available lists registered adapter type names, sorted.
func Available() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
