package relay

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is a dev/test fallback used when no database is configured.
// It keeps the full log in memory, so durability across restarts does not
// hold; every other LogStore guarantee (idempotent append, monotonic seq,
// ascending paged reads) does.
type MemoryStore struct {
	mu     sync.Mutex
	seq    int64
	dedupe map[string]Record // dedup_key -> stored record
	recs   []Record          // ordered by seq
}

// NewMemoryStore constructs an in-memory LogStore implementation.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		dedupe: make(map[string]Record),
		recs:   make([]Record, 0, 256),
	}
}

// Close closes the store (noop for in-memory).
func (s *MemoryStore) Close() error { return nil }

// Append persists a record with idempotency and monotonic sequence allocation.
func (s *MemoryStore) Append(ctx context.Context, in AppendInput) (AppendResult, error) {
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

	s.mu.Lock()
	defer s.mu.Unlock()

	if in.DedupKey != "" {
		if existing, ok := s.dedupe[in.DedupKey]; ok {
			return AppendResult{Stored: existing, Duplicated: true}, nil
		}
	}

	s.seq++
	rec := Record{
		Seq:       s.seq,
		RecordID:  NewRecordID(now),
		Category:  in.Category,
		Content:   in.Content,
		DedupKey:  in.DedupKey,
		CreatedAt: now,
	}
	if in.DedupKey != "" {
		s.dedupe[in.DedupKey] = rec
	}
	s.recs = append(s.recs, rec)

	return AppendResult{Stored: rec, Duplicated: false}, nil
}

// ReadFrom returns records with seq > AfterSeq, ascending, paged.
func (s *MemoryStore) ReadFrom(ctx context.Context, in ReadFromInput) (ReadFromResult, error) {
	if err := ctx.Err(); err != nil {
		return ReadFromResult{}, err
	}

	limit := clampReadLimit(in.Limit)
	fetch := limit + 1

	s.mu.Lock()
	snap := append([]Record(nil), s.recs...)
	s.mu.Unlock()

	if len(snap) == 0 {
		return ReadFromResult{}, nil
	}

	start := sort.Search(len(snap), func(i int) bool { return snap[i].Seq > in.AfterSeq })
	if start >= len(snap) {
		return ReadFromResult{}, nil
	}

	end := start + fetch
	if end > len(snap) {
		end = len(snap)
	}
	out := snap[start:end]

	hasMore := len(out) > limit
	if hasMore {
		out = out[:limit]
	}

	return ReadFromResult{Records: out, HasMore: hasMore}, nil
}
