package statestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/dmitrijs2005/credport/internal/common"
	"github.com/dmitrijs2005/credport/internal/dbx"
)

// DefaultTable is the table shared by every service key.
const DefaultTable = "service_state"

var tableNameRe = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

// PostgresBackend keeps one row per service key in a JSONB table.
type PostgresBackend struct {
	db    *sql.DB
	table string
}

func NewPostgresBackend(db *sql.DB, table string) (*PostgresBackend, error) {
	if table == "" {
		table = DefaultTable
	}
	if !tableNameRe.MatchString(table) {
		return nil, fmt.Errorf("%w: invalid state table name %q", common.ErrConfiguration, table)
	}
	return &PostgresBackend{db: db, table: table}, nil
}

func (b *PostgresBackend) Init(ctx context.Context) error {
	return dbx.WithTx(ctx, b.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		query := fmt.Sprintf(
			`CREATE TABLE IF NOT EXISTS %s (
			 service_key TEXT PRIMARY KEY,
			 state JSONB NOT NULL,
			 updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			 )`, b.table)
		if _, err := tx.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("db error: %w", err)
		}

		query = fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_updated_at_idx ON %s (updated_at)`, b.table, b.table)
		if _, err := tx.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("db error: %w", err)
		}
		return nil
	})
}

func (b *PostgresBackend) Fetch(ctx context.Context, key string) (*Document, error) {
	query := fmt.Sprintf(
		`SELECT state, updated_at FROM %s
		 WHERE service_key = $1
		 `, b.table)

	var (
		state     []byte
		updatedAt time.Time
	)
	err := b.db.QueryRowContext(ctx, query, key).Scan(&state, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return &Document{Key: key, Data: state, UpdatedAt: updatedAt}, nil
}

func (b *PostgresBackend) Upsert(ctx context.Context, doc Document) error {
	query := fmt.Sprintf(
		`INSERT INTO %s (service_key, state, updated_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (service_key) DO UPDATE
		 SET state = EXCLUDED.state, updated_at = EXCLUDED.updated_at
		 `, b.table)

	if _, err := b.db.ExecContext(ctx, query, doc.Key, string(doc.Data), doc.UpdatedAt); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
