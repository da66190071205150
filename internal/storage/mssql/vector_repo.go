package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/microsoft/go-mssqldb"

	"ragpipe/internal/storage"
)

// insertBatchRows keeps one INSERT under SQL Server's 2100 parameter limit.
const insertBatchRows = 500

// VectorRepo implements storage.VectorRepository for Microsoft SQL Server.
//
// Embeddings are VARBINARY(MAX) float32 blobs, metadata NVARCHAR(MAX) JSON.
type VectorRepo struct {
	db     *sql.DB
	schema string
	name   string
}

func init() {
	storage.Register("mssql", New)
}

// New opens cfg.DSN with the "sqlserver" driver and validates connectivity.
func New(ctx context.Context, cfg storage.Config) (storage.VectorRepository, error) {
	raw, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, err
	}
	raw.SetMaxOpenConns(8)
	raw.SetMaxIdleConns(8)

	if err := raw.PingContext(ctx); err != nil {
		_ = raw.Close()
		return nil, err
	}
	table := cfg.Table
	if table == "" {
		table = storage.DefaultTable
	}
	schema, name := splitTable(table)
	return &VectorRepo{db: raw, schema: schema, name: name}, nil
}

// Close releases database resources held by this repository.
func (r *VectorRepo) Close() {
	if r == nil || r.db == nil {
		return
	}
	_ = r.db.Close()
}

func (r *VectorRepo) qualified() string { return qualify(r.schema, r.name) }

func (r *VectorRepo) EnsureSchema(ctx context.Context) error {
	for _, q := range buildCreateSQL(r.schema, r.name) {
		if _, err := r.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("mssql: ensure %s: %w", r.qualified(), err)
		}
	}
	return nil
}

func (r *VectorRepo) Reset(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM "+r.qualified()); err != nil {
		return fmt.Errorf("mssql: reset %s: %w", r.qualified(), err)
	}
	return nil
}

// InsertDocuments inserts docs in multi-row batches inside one transaction.
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
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+r.qualified()); err != nil {
			return 0, fmt.Errorf("mssql: reset %s: %w", r.qualified(), err)
		}
	}

	var total int64
	for start := 0; start < len(docs); start += insertBatchRows {
		end := min(start+insertBatchRows, len(docs))
		q, args, err := buildInsertSQL(r.qualified(), docs[start:end])
		if err != nil {
			return 0, err
		}
		res, err := tx.ExecContext(ctx, q, args...)
		if err != nil {
			return 0, fmt.Errorf("mssql: insert into %s: %w", r.qualified(), err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		total += n
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return total, nil
}

func (r *VectorRepo) AllDocuments(ctx context.Context) ([]storage.Document, error) {
	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(
		"SELECT [id], [content], [metadata], [embedding] FROM %s ORDER BY [id]", r.qualified()))
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
	err := r.db.QueryRowContext(ctx, "SELECT COUNT_BIG(*) FROM "+r.qualified()).Scan(&n)
	return n, err
}

// splitTable splits "schema.name"; the schema defaults to dbo.
func splitTable(table string) (schema, name string) {
	if s, n, ok := strings.Cut(table, "."); ok {
		return s, n
	}
	return "dbo", table
}

func msIdent(s string) string { return "[" + strings.ReplaceAll(s, "]", "]]") + "]" }

func qualify(schema, name string) string { return msIdent(schema) + "." + msIdent(name) }

// buildCreateSQL returns the idempotent DDL batch for the document table.
//
// Behavior:
//   - A non-dbo schema is created when missing.
//   - The table is created only when OBJECT_ID finds nothing.
func buildCreateSQL(schema, name string) []string {
	var out []string
	if !strings.EqualFold(schema, "dbo") {
		out = append(out, fmt.Sprintf(
			"IF SCHEMA_ID(N'%s') IS NULL EXEC(N'CREATE SCHEMA %s')", schema, msIdent(schema)))
	}
	out = append(out, fmt.Sprintf(`IF OBJECT_ID(N'%s.%s', N'U') IS NULL
CREATE TABLE %s (
	[id]        NVARCHAR(64)   NOT NULL PRIMARY KEY,
	[content]   NVARCHAR(MAX)  NOT NULL,
	[metadata]  NVARCHAR(MAX)  NOT NULL,
	[embedding] VARBINARY(MAX) NOT NULL
)`, schema, name, qualify(schema, name)))
	return out
}

// buildInsertSQL builds one multi-row INSERT with @pN placeholders.
func buildInsertSQL(table string, docs []storage.Document) (string, []any, error) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(table)
	b.WriteString(" ([id], [content], [metadata], [embedding]) VALUES ")

	args := make([]any, 0, len(docs)*len(storage.Columns))
	for i, d := range docs {
		meta, err := storage.EncodeMetadata(d.Metadata)
		if err != nil {
			return "", nil, fmt.Errorf("document %s: %w", d.ID, err)
		}
		if i > 0 {
			b.WriteString(", ")
		}
		p := len(args)
		fmt.Fprintf(&b, "(@p%d, @p%d, @p%d, @p%d)", p+1, p+2, p+3, p+4)
		args = append(args, d.ID, d.Content, meta, storage.EncodeVector(d.Embedding))
	}
	return b.String(), args, nil
}
