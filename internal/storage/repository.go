package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Config selects and configures a vector repository backend.
//
// Edge cases:
//   - Kind must be non-empty and must match a registered backend kind.
//   - DSN is passed through to the backend factory; validation is backend-specific.
//   - An empty Table means DefaultTable.
type Config struct {
	Kind  string
	DSN   string
	Table string
}

// Document is one indexed unit: text, flat metadata and its embedding.
type Document struct {
	ID        string
	Content   string
	Metadata  map[string]string
	Embedding []float32
}

// VectorRepository persists embedded documents.
//
// The index build replaces the stored set in one transaction; search reads
// everything back and ranks in memory.
type VectorRepository interface {
	// EnsureSchema creates the document table if it does not exist.
	EnsureSchema(ctx context.Context) error

	// Reset removes every stored document.
	Reset(ctx context.Context) error

	// InsertDocuments stores docs in one transaction and returns the number
	// inserted. IDs must be unique.
	InsertDocuments(ctx context.Context, docs []Document) (int64, error)

	// ReplaceDocuments deletes every stored document and inserts docs in one
	// transaction. On error the previous documents remain.
	ReplaceDocuments(ctx context.Context, docs []Document) (int64, error)

	// AllDocuments returns every document ordered by ID.
	AllDocuments(ctx context.Context) ([]Document, error)

	Count(ctx context.Context) (int64, error)

	// Close releases backend resources. Call once.
	Close()
}

// Factory builds a repository for cfg.
type Factory func(ctx context.Context, cfg Config) (VectorRepository, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register registers a backend under a kind (e.g. "postgres", "sqlite").
//
// When to use:
//   - Call Register from an init() function in a backend package.
//
// Panics:
//   - If kind is empty.
//   - If f is nil.
//   - If kind is already registered.
func Register(kind string, f Factory) {
	mu.Lock()
	defer mu.Unlock()

	if kind == "" {
		panic("storage: Register called with empty kind")
	}
	if f == nil {
		panic("storage: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("storage: factory already registered for kind=%q", kind))
	}

	factories[kind] = f
}

// New constructs a repository using the registered backend factory.
//
// Errors:
//   - Returns an error if cfg.Kind is empty or unsupported, or cfg.Table is
//     not a valid identifier.
//   - Returns whatever error the registered factory returns.
func New(ctx context.Context, cfg Config) (VectorRepository, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("storage: missing Kind")
	}
	if cfg.Table == "" {
		cfg.Table = DefaultTable
	}
	if err := ValidateTableName(cfg.Table); err != nil {
		return nil, err
	}

	mu.RLock()
	f := factories[cfg.Kind]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("unsupported storage.kind=%s (registered: %v)", cfg.Kind, Kinds())
	}
	return f(ctx, cfg)
}

// Kinds returns the registered backend kinds, sorted.
func Kinds() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
