package relay

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	v1 "beacon/shared/contracts/relay/v1"
)

// Reconciler closes the gap for reconnecting clients: it streams every record
// after the client's claimed offset, ascending, to that client only.
//
// Failure policy: a store read error aborts the replay but never tears down
// the connection. The client keeps receiving live broadcasts and may carry a
// permanent history gap; that is an accepted risk of this design.
type Reconciler struct {
	log      *slog.Logger
	store    LogStore
	pageSize int
}

// NewReconciler constructs a Reconciler over the given store.
func NewReconciler(log *slog.Logger, store LogStore) *Reconciler {
	return &Reconciler{
		log:      log,
		store:    store,
		pageSize: readDefaultLimit,
	}
}

// Replay runs once per new connection, after identity and claimed offset are
// known. When recovered is true the transport already proved no gap exists
// and no store read is issued at all (replaying would double-deliver what the
// transport's own buffer restored). Returns the number of records delivered.
func (r *Reconciler) Replay(ctx context.Context, client *Client, afterSeq int64, recovered bool) int {
	if recovered {
		r.log.Debug("relay.replay.skip", "session_id", client.SessionID, "after_seq", afterSeq)
		return 0
	}
	if afterSeq < 0 {
		afterSeq = 0
	}

	delivered := 0
	for {
		out, err := r.store.ReadFrom(ctx, ReadFromInput{AfterSeq: afterSeq, Limit: r.pageSize})
		if err != nil {
			// Partial replay degrades to "client may be missing history";
			// no error event crosses the connection boundary.
			metricReplayFailures.Inc()
			r.log.Warn("relay.replay.fail",
				"session_id", client.SessionID,
				"after_seq", afterSeq,
				"delivered", delivered,
				"err", err,
			)
			return delivered
		}

		for _, rec := range out.Records {
			if !r.deliver(ctx, client, rec) {
				return delivered
			}
			delivered++
			afterSeq = rec.Seq
		}

		if !out.HasMore {
			if delivered > 0 {
				metricReplayRecords.Add(float64(delivered))
				r.log.Info("relay.replay.done",
					"session_id", client.SessionID,
					"delivered", delivered,
					"last_seq", afterSeq,
				)
			}
			return delivered
		}
	}
}

// deliver enqueues one replayed record for the connecting client. Unlike live
// fan-out it blocks: replay rides the client's own connection setup, so
// waiting for queue space cannot stall any other session.
func (r *Reconciler) deliver(ctx context.Context, client *Client, rec Record) bool {
	env := recordEnvelope(rec)

	select {
	case <-ctx.Done():
		return false
	case <-client.Done():
		return false
	case client.Send <- env:
		return true
	}
}

// recordEnvelope maps a stored record onto its wire event by category.
func recordEnvelope(rec Record) v1.Envelope {
	switch rec.Category {
	case CategorySystem:
		payload, _ := json.Marshal(v1.SystemMessagePayload{Content: rec.Content, Seq: rec.Seq})
		return newEnvelope(v1.TypeSystemMessage, payload, rec.CreatedAt)
	default:
		payload, _ := json.Marshal(v1.ChatMessagePayload{Content: rec.Content, Seq: rec.Seq})
		return newEnvelope(v1.TypeChatMessage, payload, rec.CreatedAt)
	}
}

// noticeEnvelope builds an ephemeral system notice (never persisted).
func noticeEnvelope(content string, now time.Time) v1.Envelope {
	payload, _ := json.Marshal(v1.SystemMessagePayload{Content: content, Seq: v1.EphemeralSeq})
	return newEnvelope(v1.TypeSystemMessage, payload, now)
}
