package featureflags

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the subset of *pgxpool.Pool used by PostgresRepository.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

const schemaSQL = `
	CREATE TABLE IF NOT EXISTS feature_flags (
		key        TEXT PRIMARY KEY,
		value      JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)
`

const upsertSQL = `
	INSERT INTO feature_flags (key, value, updated_at)
	VALUES (@key, @value, @updated_at)
	ON CONFLICT (key) DO UPDATE SET
		value = EXCLUDED.value,
		updated_at = EXCLUDED.updated_at
`

// PostgresRepository stores flags in PostgreSQL so every API replica sees
// the same overrides.
type PostgresRepository struct {
	db DB
}

// NewPostgresRepository creates a new PostgreSQL feature flags repository.
func NewPostgresRepository(db DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// EnsureSchema creates the flags table if it does not exist.
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("creating feature_flags table: %w", err)
	}
	return nil
}

// GetFlag retrieves a single feature flag by key.
func (r *PostgresRepository) GetFlag(ctx context.Context, key string) (*Flag, error) {
	row := r.db.QueryRow(ctx, `SELECT key, value, updated_at FROM feature_flags WHERE key = $1`, key)

	flag, err := scanFlag(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrFlagNotFound
	}
	if err != nil {
		return nil, err
	}
	return flag, nil
}

// GetAllFlags retrieves all feature flags.
func (r *PostgresRepository) GetAllFlags(ctx context.Context) (map[string]*Flag, error) {
	rows, err := r.db.Query(ctx, `SELECT key, value, updated_at FROM feature_flags ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("querying feature flags: %w", err)
	}

	list, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*Flag, error) {
		return scanFlag(row)
	})
	if err != nil {
		return nil, err
	}

	flags := make(map[string]*Flag, len(list))
	for _, flag := range list {
		flags[flag.Key] = flag
	}
	return flags, nil
}

// SetFlag creates or updates a feature flag.
func (r *PostgresRepository) SetFlag(ctx context.Context, flag *Flag) error {
	args, err := upsertArgs(flag, time.Now())
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, upsertSQL, args)
	return err
}

// SetFlags creates or updates multiple feature flags in one transaction.
func (r *PostgresRepository) SetFlags(ctx context.Context, flags []*Flag) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	now := time.Now()
	for _, flag := range flags {
		args, err := upsertArgs(flag, now)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, upsertSQL, args); err != nil {
			return fmt.Errorf("upserting flag %s: %w", flag.Key, err)
		}
	}

	return tx.Commit(ctx)
}

// DeleteFlag removes a feature flag by key.
func (r *PostgresRepository) DeleteFlag(ctx context.Context, key string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM feature_flags WHERE key = $1`, key)
	return err
}

func scanFlag(row pgx.Row) (*Flag, error) {
	var (
		flag  Flag
		value []byte
	)
	if err := row.Scan(&flag.Key, &value, &flag.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(value, &flag.Value); err != nil {
		return nil, fmt.Errorf("decoding flag %s: %w", flag.Key, err)
	}
	return &flag, nil
}

func upsertArgs(flag *Flag, now time.Time) (pgx.NamedArgs, error) {
	value, err := json.Marshal(flag.Value)
	if err != nil {
		return nil, fmt.Errorf("encoding flag %s: %w", flag.Key, err)
	}
	return pgx.NamedArgs{
		"key":        flag.Key,
		"value":      value,
		"updated_at": now,
	}, nil
}

var _ Repository = (*PostgresRepository)(nil)
