// Package walletindex is a Postgres-backed downstream subscriber standing in
// for a real wallet balance/transaction index: it keeps one row per header
// currently on the followed path, upserted on Add and deleted on Remove.
package walletindex

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
	"github.com/pressly/goose/v3"

	model "github.com/shieldfold/shieldnode/model/chain"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Index is a Postgres-backed reorg.Handler pair.
type Index struct {
	db *sql.DB
}

// Open connects to dsn, runs pending migrations, and returns a ready Index.
func Open(dsn string) (*Index, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("walletindex: could not open database: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("walletindex: could not ping database: %w", err)
	}

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		db.Close()
		return nil, fmt.Errorf("walletindex: could not set migration dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		db.Close()
		return nil, fmt.Errorf("walletindex: could not run migrations: %w", err)
	}

	return &Index{db: db}, nil
}

// Close closes the underlying database connection.
func (idx *Index) Close() error {
	return idx.db.Close()
}

// OnAdd is a reorg.Handler that upserts header's row.
func (idx *Index) OnAdd(ctx context.Context, header *model.Header) error {
	_, err := idx.db.ExecContext(ctx, `
		INSERT INTO chain_headers (hash, previous_hash, sequence, added_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (hash) DO UPDATE SET
			previous_hash = EXCLUDED.previous_hash,
			sequence      = EXCLUDED.sequence,
			added_at      = EXCLUDED.added_at
	`, header.Hash[:], header.PreviousHash[:], header.Sequence, header.Timestamp)
	if err != nil {
		return fmt.Errorf("walletindex: could not upsert header %s: %w", header.Hash, err)
	}
	return nil
}

// OnRemove is a reorg.Handler that deletes header's row.
func (idx *Index) OnRemove(ctx context.Context, header *model.Header) error {
	_, err := idx.db.ExecContext(ctx, `DELETE FROM chain_headers WHERE hash = $1`, header.Hash[:])
	if err != nil {
		return fmt.Errorf("walletindex: could not delete header %s: %w", header.Hash, err)
	}
	return nil
}

// Height returns the highest sequence number currently indexed, and false if
// the table is empty.
func (idx *Index) Height(ctx context.Context) (uint64, bool, error) {
	var seq sql.NullInt64
	err := idx.db.QueryRowContext(ctx, `SELECT max(sequence) FROM chain_headers`).Scan(&seq)
	if err != nil {
		return 0, false, fmt.Errorf("walletindex: could not query height: %w", err)
	}
	if !seq.Valid {
		return 0, false, nil
	}
	return uint64(seq.Int64), true, nil
}
