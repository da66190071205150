package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"ragpipe/internal/storage"
)

// VectorRepo implements storage.VectorRepository for SQLite.
//
// Embeddings are stored as little-endian float32 BLOBs and metadata as a
// JSON TEXT column. SQLite has no vector type; ranking happens in memory.
type VectorRepo struct {
	db    *sql.DB
	table string
}

func init() {
	storage.Register("sqlite", New)
}

// New opens the database at cfg.DSN, creating the parent directory of a
// plain file path.
func New(ctx context.Context, cfg storage.Config) (storage.VectorRepository, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("sqlite: empty DSN")
	}
	if dir := fileDir(cfg.DSN); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sqlite: create %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, err
	}
	// A single writer keeps modernc from returning SQLITE_BUSY on the batch insert.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	table := cfg.Table
	if table == "" {
		table = storage.DefaultTable
	}
	return &VectorRepo{db: db, table: table}, nil
}

// fileDir returns the directory of a plain file DSN, or "" for memory and
// URI DSNs.
func fileDir(dsn string) string {
	if dsn == ":memory:" || strings.HasPrefix(dsn, "file:") {
		return ""
	}
	path, _, _ := strings.Cut(dsn, "?")
	dir := filepath.Dir(path)
	if dir == "." {
		return ""
	}
	return dir
}

func (r *VectorRepo) Close() { _ = r.db.Close() }

func (r *VectorRepo) EnsureSchema(ctx context.Context) error {
	q := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id        TEXT PRIMARY KEY,
	content   TEXT NOT NULL,
	metadata  TEXT NOT NULL,
	embedding BLOB NOT NULL
)`, r.table)
	if _, err := r.db.ExecContext(ctx, q); err != nil {
		return fmt.Errorf("create table %s: %w", r.table, err)
	}
	return nil
}

func (r *VectorRepo) Reset(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM "+r.table); err != nil {
		return fmt.Errorf("reset %s: %w", r.table, err)
	}
	return nil
}

// InsertDocuments inserts docs with one prepared statement inside a
// transaction; any failure rolls the whole batch back.
func (r *VectorRepo) InsertDocuments(ctx context.Context, docs []storage.Document) (int64, error) {
	if len(docs) == 0 {
		return 0, nil
	}
	return r.write(ctx, docs, false)
}

// ReplaceDocuments deletes every row and inserts docs in one transaction.
func (r *VectorRepo) ReplaceDocuments(ctx context.Context, docs []storage.Document) (int64, error) {
	return r.write(ctx, docs, true)
}

func (r *VectorRepo) write(ctx context.Context, docs []storage.Document, replace bool) (int64, error) {
	if err := storage.CheckUniqueIDs(docs); err != nil {
		return 0, err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	if replace {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+r.table); err != nil {
			return 0, fmt.Errorf("reset %s: %w", r.table, err)
		}
	}

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		`INSERT INTO %s (%s) VALUES (?, ?, ?, ?)`, r.table, strings.Join(storage.Columns, ", ")))
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	var n int64
	for _, d := range docs {
		meta, err := storage.EncodeMetadata(d.Metadata)
		if err != nil {
			return 0, fmt.Errorf("document %s: %w", d.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, d.ID, d.Content, meta, storage.EncodeVector(d.Embedding)); err != nil {
			return 0, fmt.Errorf("insert document %s: %w", d.ID, err)
		}
		n++
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return n, nil
}

func (r *VectorRepo) AllDocuments(ctx context.Context) ([]storage.Document, error) {
	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT %s FROM %s ORDER BY id`, strings.Join(storage.Columns, ", "), r.table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []storage.Document
	for rows.Next() {
		var (
			d    storage.Document
			meta string
			blob []byte
		)
		if err := rows.Scan(&d.ID, &d.Content, &meta, &blob); err != nil {
			return nil, err
		}
		if d.Metadata, err = storage.DecodeMetadata(meta); err != nil {
			return nil, err
		}
		if d.Embedding, err = storage.DecodeVector(blob); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *VectorRepo) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+r.table).Scan(&n)
	return n, err
}
