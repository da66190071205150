package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ragpipe/internal/storage"
)

/*
VectorRepo implements storage.VectorRepository for Postgres.

Embeddings use the native real[] type and metadata is jsonb, so the table
stays queryable from psql. Inserts go through COPY.
*/
type VectorRepo struct {
	pool  *pgxpool.Pool
	table pgx.Identifier
}

func init() {
	storage.Register("postgres", New)
}

// New creates a pool for cfg.DSN.
func New(ctx context.Context, cfg storage.Config) (storage.VectorRepository, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	table := cfg.Table
	if table == "" {
		table = storage.DefaultTable
	}
	return &VectorRepo{pool: pool, table: tableIdent(table)}, nil
}

// Close closes the connection pool.
func (r *VectorRepo) Close() { r.pool.Close() }

func (r *VectorRepo) EnsureSchema(ctx context.Context) error {
	schemaSQL, tableSQL := buildCreateSQL(r.table)
	if schemaSQL != "" {
		if _, err := r.pool.Exec(ctx, schemaSQL); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	if _, err := r.pool.Exec(ctx, tableSQL); err != nil {
		return fmt.Errorf("create table %s: %w", r.table.Sanitize(), err)
	}
	return nil
}

func (r *VectorRepo) Reset(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, "TRUNCATE "+r.table.Sanitize()); err != nil {
		return fmt.Errorf("reset %s: %w", r.table.Sanitize(), err)
	}
	return nil
}

// InsertDocuments copies docs in one transaction.
func (r *VectorRepo) InsertDocuments(ctx context.Context, docs []storage.Document) (int64, error) {
	if len(docs) == 0 {
		return 0, nil
	}
	return r.write(ctx, docs, false)
}

// ReplaceDocuments truncates the table and copies docs in one transaction.
func (r *VectorRepo) ReplaceDocuments(ctx context.Context, docs []storage.Document) (int64, error) {
	return r.write(ctx, docs, true)
}

func (r *VectorRepo) write(ctx context.Context, docs []storage.Document, replace bool) (int64, error) {
	rows, err := copyRows(docs)
	if err != nil {
		return 0, err
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if replace {
		if _, err := tx.Exec(ctx, "TRUNCATE "+r.table.Sanitize()); err != nil {
			return 0, fmt.Errorf("reset %s: %w", r.table.Sanitize(), err)
		}
	}

	var n int64
	if len(rows) > 0 {
		n, err = tx.CopyFrom(ctx, r.table, storage.Columns, pgx.CopyFromRows(rows))
		if err != nil {
			return 0, fmt.Errorf("copy into %s: %w", r.table.Sanitize(), err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return n, nil
}

func (r *VectorRepo) AllDocuments(ctx context.Context) ([]storage.Document, error) {
	rows, err := r.pool.Query(ctx, fmt.Sprintf(
		`SELECT id, content, metadata::text, embedding FROM %s ORDER BY id`, r.table.Sanitize()))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []storage.Document
	for rows.Next() {
		var (
			d    storage.Document
			meta string
		)
		if err := rows.Scan(&d.ID, &d.Content, &meta, &d.Embedding); err != nil {
			return nil, err
		}
		if d.Metadata, err = storage.DecodeMetadata(meta); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *VectorRepo) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM "+r.table.Sanitize()).Scan(&n)
	return n, err
}

func tableIdent(name string) pgx.Identifier {
	return pgx.Identifier(strings.Split(name, "."))
}

// buildCreateSQL returns the optional CREATE SCHEMA statement and the
// CREATE TABLE statement for table.
//
// It is pure so the DDL can be tested without a database.
func buildCreateSQL(table pgx.Identifier) (schemaSQL, tableSQL string) {
	if len(table) > 1 {
		schemaSQL = "CREATE SCHEMA IF NOT EXISTS " + pgx.Identifier{table[0]}.Sanitize()
	}
	tableSQL = fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	"id"        text PRIMARY KEY,
	"content"   text NOT NULL,
	"metadata"  jsonb NOT NULL DEFAULT '{}'::jsonb,
	"embedding" real[] NOT NULL
)`, table.Sanitize())
	return schemaSQL, tableSQL
}

// copyRows converts docs to COPY rows in storage.Columns order.
func copyRows(docs []storage.Document) ([][]any, error) {
	if err := storage.CheckUniqueIDs(docs); err != nil {
		return nil, err
	}
	rows := make([][]any, 0, len(docs))
	for _, d := range docs {
		meta, err := storage.EncodeMetadata(d.Metadata)
		if err != nil {
			return nil, fmt.Errorf("document %s: %w", d.ID, err)
		}
		emb := d.Embedding
		if emb == nil {
			emb = []float32{}
		}
		rows = append(rows, []any{d.ID, d.Content, meta, emb})
	}
	return rows, nil
}
