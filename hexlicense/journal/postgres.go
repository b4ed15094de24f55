package journal

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const defaultPostgresTable = "hexlicense_validations"

// validIdentifier matches safe PostgreSQL identifiers (letters, digits, underscores).
var validIdentifier = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// PostgresOption configures a PostgresJournal.
type PostgresOption func(*PostgresJournal)

// WithTableName sets the PostgreSQL table name. Default: "hexlicense_validations".
func WithTableName(name string) PostgresOption {
	return func(j *PostgresJournal) {
		j.tableName = name
	}
}

// PostgresJournal implements Journal using PostgreSQL.
type PostgresJournal struct {
	pool      *pgxpool.Pool
	tableName string
	ownsPool  bool
}

// NewPostgresJournal creates a PostgreSQL-backed journal.
// It auto-creates the table and index on initialization.
func NewPostgresJournal(ctx context.Context, pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresJournal, error) {
	j := &PostgresJournal{
		pool:      pool,
		tableName: defaultPostgresTable,
	}
	for _, opt := range opts {
		opt(j)
	}
	if !validIdentifier.MatchString(j.tableName) {
		return nil, fmt.Errorf("invalid table name %q: must match [a-zA-Z_][a-zA-Z0-9_]*", j.tableName)
	}
	if err := j.ensureTable(ctx); err != nil {
		return nil, fmt.Errorf("create table: %w", err)
	}
	return j, nil
}

func (j *PostgresJournal) ensureTable(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id               TEXT PRIMARY KEY,
			fingerprint      TEXT NOT NULL,
			license_key_hash TEXT NOT NULL DEFAULT '',
			product          TEXT NOT NULL DEFAULT '',
			outcome          TEXT NOT NULL,
			reason           TEXT NOT NULL DEFAULT '',
			owner            TEXT NOT NULL DEFAULT '',
			expires_at       TIMESTAMPTZ,
			offline_mode     BOOLEAN NOT NULL DEFAULT FALSE,
			recorded_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_%s_fingerprint_recorded
			ON %s (fingerprint, recorded_at DESC);
	`, j.tableName, j.tableName, j.tableName)
	_, err := j.pool.Exec(ctx, query)
	return err
}

func (j *PostgresJournal) Append(ctx context.Context, e Entry) error {
	e = prepare(e)
	query := fmt.Sprintf(`
		INSERT INTO %s (id, fingerprint, license_key_hash, product, outcome, reason,
			owner, expires_at, offline_mode, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, j.tableName)
	_, err := j.pool.Exec(ctx, query,
		e.ID.String(), e.Fingerprint, e.LicenseKeyHash, e.Product, e.Outcome, e.Reason,
		e.Owner, e.ExpiresAt, e.OfflineMode, e.RecordedAt,
	)
	if err != nil {
		return fmt.Errorf("append entry: %w", err)
	}
	return nil
}

func (j *PostgresJournal) Latest(ctx context.Context, fingerprint string) (*Entry, error) {
	list, err := j.List(ctx, fingerprint, 1)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, ErrNotFound
	}
	return &list[0], nil
}

func (j *PostgresJournal) List(ctx context.Context, fingerprint string, limit int) ([]Entry, error) {
	query := fmt.Sprintf(`
		SELECT id, fingerprint, license_key_hash, product, outcome, reason,
			owner, expires_at, offline_mode, recorded_at
		FROM %s WHERE fingerprint = $1 ORDER BY recorded_at DESC
	`, j.tableName)
	args := []any{fingerprint}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := j.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func scanEntry(row pgx.Row) (Entry, error) {
	var (
		e  Entry
		id string
	)
	if err := row.Scan(&id, &e.Fingerprint, &e.LicenseKeyHash, &e.Product, &e.Outcome,
		&e.Reason, &e.Owner, &e.ExpiresAt, &e.OfflineMode, &e.RecordedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Entry{}, ErrNotFound
		}
		return Entry{}, fmt.Errorf("scan entry: %w", err)
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return Entry{}, fmt.Errorf("scan entry id: %w", err)
	}
	e.ID = parsed
	return e, nil
}

func (j *PostgresJournal) Prune(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().Add(-olderThan)
	query := fmt.Sprintf(`DELETE FROM %s WHERE recorded_at < $1`, j.tableName)
	tag, err := j.pool.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune entries: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// Close closes the pool only when the journal was created by Open.
// A pool passed to NewPostgresJournal stays with the caller.
func (j *PostgresJournal) Close(_ context.Context) error {
	if j.ownsPool {
		j.pool.Close()
	}
	return nil
}
