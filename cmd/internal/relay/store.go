package relay

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Category classifies a record's origin and routes it to the matching
// client-side handler.
type Category string

const (
	// CategoryChat marks records submitted by connected clients.
	CategoryChat Category = "chat"
	// CategorySystem marks server-generated records (join/leave notices).
	CategorySystem Category = "system"
)

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	return c == CategoryChat || c == CategorySystem
}

// Record is one immutable entry of the durable broadcast log.
//
// Seq is assigned by the store, strictly increasing in commit order. A client
// holding seq N has by definition received every record with seq <= N that
// existed at its last successful read.
type Record struct {
	Seq       int64
	RecordID  string
	Category  Category
	Content   string
	DedupKey  string
	CreatedAt time.Time
}

// LogStore is the append-only record store shared by all connections.
//
// Requirements:
//   - At most one record per distinct dedup key, enforced at the storage
//     layer; concurrent appends with the same key race to a single winner.
//   - Monotonic seq allocation in commit order.
//   - Appends are visible to subsequent reads immediately (replay correctness
//     depends on read-after-write consistency).
//   - Records are never updated or deleted.
type LogStore interface {
	Append(ctx context.Context, in AppendInput) (AppendResult, error)
	ReadFrom(ctx context.Context, in ReadFromInput) (ReadFromResult, error)
	Close() error
}

// AppendInput describes a record append request.
// DedupKey may be empty for system records, which are never deduplicated.
type AppendInput struct {
	Category Category
	Content  string
	DedupKey string
	Now      time.Time
}

// AppendResult is the append operation result. Duplicated reports that the
// dedup key was already recorded; Stored then holds the original record.
type AppendResult struct {
	Stored     Record
	Duplicated bool
}

// ReadFromInput describes a paged read of records with seq > AfterSeq.
type ReadFromInput struct {
	AfterSeq int64
	Limit    int
}

// ReadFromResult contains one ascending window of records.
type ReadFromResult struct {
	Records []Record
	HasMore bool
}

const (
	readDefaultLimit = 256
	readMaxLimit     = 1024
)

// ErrInvalidInput rejects structurally invalid append or read requests.
var ErrInvalidInput = errors.New("relay: invalid input")

func validateAppend(in AppendInput) error {
	if !in.Category.Valid() {
		return fmt.Errorf("%w: category %q", ErrInvalidInput, in.Category)
	}
	if in.Content == "" {
		return fmt.Errorf("%w: empty content", ErrInvalidInput)
	}
	return nil
}

func clampReadLimit(limit int) int {
	if limit <= 0 {
		return readDefaultLimit
	}
	if limit > readMaxLimit {
		return readMaxLimit
	}
	return limit
}
