package relay

import (
	"context"
	"log/slog"
	"time"
)

// SubmitStatus classifies the result of one submit.
type SubmitStatus uint8

const (
	// SubmitAccepted means a new record was persisted and its seq assigned.
	SubmitAccepted SubmitStatus = iota
	// SubmitDuplicate means the dedup key was already recorded. Treated as
	// success-equivalent by callers: acknowledge, no new broadcast.
	SubmitDuplicate
	// SubmitFailed means a transient store fault. Callers must not
	// acknowledge, so the sender's transport-level retry re-submits with the
	// same dedup key.
	SubmitFailed
)

// Outcome is the result of Sequencer.Submit. Record is valid for
// SubmitAccepted and SubmitDuplicate; Err is set only for SubmitFailed.
type Outcome struct {
	Status SubmitStatus
	Record Record
	Err    error
}

// Sequencer assigns each accepted message its position in the durable log.
//
// The store's uniqueness constraint is the authoritative dedup gate; the
// sequencer only classifies outcomes. A successful submit is immediately
// visible to ReadFrom, which replay correctness depends on.
type Sequencer struct {
	log   *slog.Logger
	store LogStore
}

// NewSequencer constructs a Sequencer over the given store.
func NewSequencer(log *slog.Logger, store LogStore) *Sequencer {
	return &Sequencer{log: log, store: store}
}

// Submit appends a message to the log. An empty dedupKey (system records)
// skips deduplication entirely: every call inserts.
func (s *Sequencer) Submit(ctx context.Context, category Category, content, dedupKey string) Outcome {
	res, err := s.store.Append(ctx, AppendInput{
		Category: category,
		Content:  content,
		DedupKey: dedupKey,
		Now:      time.Now().UTC(),
	})
	if err != nil {
		s.log.Warn("relay.append.fail", "category", string(category), "dedup_key", dedupKey, "err", err)
		metricSubmits.WithLabelValues("failed").Inc()
		return Outcome{Status: SubmitFailed, Err: err}
	}

	if res.Duplicated {
		metricSubmits.WithLabelValues("duplicate").Inc()
		return Outcome{Status: SubmitDuplicate, Record: res.Stored}
	}

	metricSubmits.WithLabelValues("accepted").Inc()
	return Outcome{Status: SubmitAccepted, Record: res.Stored}
}
