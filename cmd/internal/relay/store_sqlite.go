package relay

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	sqlite "modernc.org/sqlite"
	sqlitelib "modernc.org/sqlite/lib"
)

const sqliteTimeFormat = time.RFC3339Nano

// One append-only table. The UNIQUE index on dedup_key is the authoritative
// dedup gate: concurrent appends with the same key resolve to one winner at
// the storage layer, not in application logic. NULL dedup keys (system
// records) never collide.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS records (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	record_id  TEXT NOT NULL,
	category   TEXT NOT NULL,
	content    TEXT NOT NULL,
	dedup_key  TEXT UNIQUE,
	created_at TEXT NOT NULL
);
`

// SQLiteStore is the default LogStore: a single-file append-only log that
// survives process restart with seq numbering intact (AUTOINCREMENT never
// reuses values).
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens (creating if needed) the log database at path.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("relay: sqlite path is required")
	}

	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	// Appends serialize on a single writer; one connection avoids SQLITE_BUSY
	// churn under concurrent sessions.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Append persists a record with idempotency and monotonic sequence allocation.
func (s *SQLiteStore) Append(ctx context.Context, in AppendInput) (AppendResult, error) {
	if s == nil || s.db == nil {
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

	var dedup sql.NullString
	if in.DedupKey != "" {
		dedup = sql.NullString{String: in.DedupKey, Valid: true}
	}

	rec := Record{
		RecordID:  NewRecordID(now),
		Category:  in.Category,
		Content:   in.Content,
		DedupKey:  in.DedupKey,
		CreatedAt: now,
	}

	err := s.db.QueryRowContext(ctx,
		`INSERT INTO records (record_id, category, content, dedup_key, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 RETURNING seq`,
		rec.RecordID, string(rec.Category), rec.Content, dedup, now.Format(sqliteTimeFormat),
	).Scan(&rec.Seq)
	if err != nil {
		if in.DedupKey != "" && isSQLiteUniqueViolation(err) {
			existing, readErr := s.readByDedupKey(ctx, in.DedupKey)
			if readErr != nil {
				return AppendResult{}, readErr
			}
			return AppendResult{Stored: existing, Duplicated: true}, nil
		}
		return AppendResult{}, fmt.Errorf("insert record: %w", err)
	}

	return AppendResult{Stored: rec, Duplicated: false}, nil
}

// ReadFrom returns records with seq > AfterSeq, ascending, paged.
func (s *SQLiteStore) ReadFrom(ctx context.Context, in ReadFromInput) (ReadFromResult, error) {
	if s == nil || s.db == nil {
		return ReadFromResult{}, errors.New("relay: nil store")
	}
	if err := ctx.Err(); err != nil {
		return ReadFromResult{}, err
	}

	limit := clampReadLimit(in.Limit)
	fetch := limit + 1

	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, record_id, category, content, dedup_key, created_at
		   FROM records
		  WHERE seq > ?
		  ORDER BY seq ASC
		  LIMIT ?`,
		in.AfterSeq, fetch,
	)
	if err != nil {
		return ReadFromResult{}, err
	}
	defer rows.Close()

	recs := make([]Record, 0, fetch)
	for rows.Next() {
		rec, err := scanSQLiteRecord(rows)
		if err != nil {
			return ReadFromResult{}, err
		}
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

func (s *SQLiteStore) readByDedupKey(ctx context.Context, dedupKey string) (Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT seq, record_id, category, content, dedup_key, created_at
		   FROM records
		  WHERE dedup_key = ?`,
		dedupKey,
	)
	return scanSQLiteRecord(row)
}

type sqliteRowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteRecord(row sqliteRowScanner) (Record, error) {
	var (
		rec      Record
		category string
		dedup    sql.NullString
		created  string
	)
	if err := row.Scan(&rec.Seq, &rec.RecordID, &category, &rec.Content, &dedup, &created); err != nil {
		return Record{}, err
	}
	rec.Category = Category(category)
	rec.DedupKey = dedup.String

	ts, err := time.Parse(sqliteTimeFormat, created)
	if err != nil {
		return Record{}, fmt.Errorf("parse created_at: %w", err)
	}
	rec.CreatedAt = ts
	return rec, nil
}

func isSQLiteUniqueViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		code := se.Code()
		return code == sqlitelib.SQLITE_CONSTRAINT_UNIQUE || code == sqlitelib.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

var _ LogStore = (*SQLiteStore)(nil)
