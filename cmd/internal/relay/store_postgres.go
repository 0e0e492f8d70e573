// Package relay contains Beacon's durable broadcast log, offset sequencing,
// reconnection replay, and the WebSocket gateway that ties them together.
package relay

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is a LogStore backed by PostgreSQL.
//
// Ownership model:
// - PostgresStore does NOT own the pgx pool. The caller must close the pool.
// - Close() is therefore a no-op.
//
// Concurrency model:
// - Uses a transactional advisory lock on the log to guarantee:
//   - No sequence gaps caused by duplicates
//   - Strict monotonic ordering under concurrency
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures PostgresStore behavior.
type PostgresOption func(*PostgresStore) error

// WithSchema sets the DB schema used by this store (default: "beacon").
// The schema name is validated and safely quoted in queries.
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return errors.New("relay: empty schema")
		}
		if !isValidPGIdent(schema) {
			return errors.New("relay: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a Postgres-backed LogStore.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{
		pool:   pool,
		schema: "beacon",
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, errors.New("relay: nil pool")
	}
	return st, nil
}

// Close is a no-op because the pool is owned by the caller.
func (s *PostgresStore) Close() error { return nil }

// EnsureSchema creates the log tables if they do not exist. The UNIQUE
// constraint on dedup_key is the authoritative dedup gate (NULLs never
// collide, so system records are exempt).
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return errors.New("relay: nil store")
	}

	schema := pgx.Identifier{s.schema}.Sanitize()
	cursor := pgIdent(s.schema, "log_cursor")
	records := pgIdent(s.schema, "records")

	stmts := []string{
		`CREATE SCHEMA IF NOT EXISTS ` + schema,
		`CREATE TABLE IF NOT EXISTS ` + cursor + ` (
			id         INT PRIMARY KEY CHECK (id = 1),
			next_seq   BIGINT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS ` + records + ` (
			seq        BIGINT PRIMARY KEY,
			record_id  TEXT NOT NULL,
			category   TEXT NOT NULL,
			content    TEXT NOT NULL,
			dedup_key  TEXT UNIQUE,
			created_at TIMESTAMPTZ NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// Append appends a record with idempotency and monotonic sequence allocation.
func (s *PostgresStore) Append(ctx context.Context, in AppendInput) (AppendResult, error) {
	if s == nil || s.pool == nil {
		return AppendResult{}, errors.New("relay: nil store")
	}
	if err := validateAppend(in); err != nil {
		return AppendResult{}, err
	}
	if err := ctx.Err(); err != nil {
		return AppendResult{}, err
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return AppendResult{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	cursor := pgIdent(s.schema, "log_cursor")
	records := pgIdent(s.schema, "records")

	// Serialize all writes to the log to guarantee:
	// - No seq waste for duplicates
	// - Strict monotonic ordering without races
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, s.schema+".records"); err != nil {
		return AppendResult{}, fmt.Errorf("advisory lock: %w", err)
	}

	if in.DedupKey != "" {
		existing, err := readRecordByDedupKey(ctx, tx, records, in.DedupKey)
		if err == nil {
			if err := tx.Commit(ctx); err != nil {
				return AppendResult{}, err
			}
			return AppendResult{Stored: existing, Duplicated: true}, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return AppendResult{}, err
		}
	}

	// Cursor row ensures monotonic seq allocation.
	if _, err := tx.Exec(ctx,
		`INSERT INTO `+cursor+` (id, next_seq)
		 VALUES (1, 1)
		 ON CONFLICT (id) DO NOTHING`,
	); err != nil {
		return AppendResult{}, err
	}

	var seq int64
	if err := tx.QueryRow(ctx,
		`UPDATE `+cursor+`
		    SET next_seq = next_seq + 1,
		        updated_at = now()
		  WHERE id = 1
		RETURNING (next_seq - 1)`,
	).Scan(&seq); err != nil {
		return AppendResult{}, err
	}

	rec := Record{
		Seq:       seq,
		RecordID:  NewRecordID(now),
		Category:  in.Category,
		Content:   in.Content,
		DedupKey:  in.DedupKey,
		CreatedAt: now,
	}

	var dedup *string
	if in.DedupKey != "" {
		dedup = &in.DedupKey
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO `+records+` (
		     seq, record_id, category, content, dedup_key, created_at
		   ) VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.Seq, rec.RecordID, string(rec.Category), rec.Content, dedup, now,
	); err != nil {
		return AppendResult{}, fmt.Errorf("insert record: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return AppendResult{}, err
	}
	return AppendResult{Stored: rec, Duplicated: false}, nil
}

// ReadFrom returns records with seq > AfterSeq, ascending, paged.
func (s *PostgresStore) ReadFrom(ctx context.Context, in ReadFromInput) (ReadFromResult, error) {
	if s == nil || s.pool == nil {
		return ReadFromResult{}, errors.New("relay: nil store")
	}
	if err := ctx.Err(); err != nil {
		return ReadFromResult{}, err
	}

	limit := clampReadLimit(in.Limit)
	fetch := limit + 1

	records := pgIdent(s.schema, "records")

	rows, err := s.pool.Query(ctx,
		`SELECT seq, record_id, category, content, COALESCE(dedup_key, ''), created_at
		   FROM `+records+`
		  WHERE seq > $1
		  ORDER BY seq ASC
		  LIMIT $2`,
		in.AfterSeq, fetch,
	)
	if err != nil {
		return ReadFromResult{}, err
	}
	defer rows.Close()

	recs := make([]Record, 0, fetch)
	for rows.Next() {
		var (
			rec      Record
			category string
		)
		if err := rows.Scan(
			&rec.Seq,
			&rec.RecordID,
			&category,
			&rec.Content,
			&rec.DedupKey,
			&rec.CreatedAt,
		); err != nil {
			return ReadFromResult{}, err
		}
		rec.Category = Category(category)
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return ReadFromResult{}, err
	}

	hasMore := len(recs) > limit
	if hasMore {
		recs = recs[:limit]
	}

	return ReadFromResult{Records: recs, HasMore: hasMore}, nil
}

func readRecordByDedupKey(ctx context.Context, tx pgx.Tx, recordsTable, dedupKey string) (Record, error) {
	var (
		rec      Record
		category string
	)
	err := tx.QueryRow(ctx,
		`SELECT seq, record_id, category, content, COALESCE(dedup_key, ''), created_at
		   FROM `+recordsTable+`
		  WHERE dedup_key = $1`,
		dedupKey,
	).Scan(&rec.Seq, &rec.RecordID, &category, &rec.Content, &rec.DedupKey, &rec.CreatedAt)
	if err != nil {
		return Record{}, err
	}
	rec.Category = Category(category)
	return rec, nil
}

var pgIdentRE = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

func isValidPGIdent(s string) bool {
	return pgIdentRE.MatchString(s)
}

func pgIdent(schema, table string) string {
	// pgx.Identifier safely quotes identifiers, preventing SQL injection.
	return pgx.Identifier{schema, table}.Sanitize()
}

var _ LogStore = (*PostgresStore)(nil)
