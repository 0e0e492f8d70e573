package relay

import (
	"log/slog"
	"sync"

	v1 "beacon/shared/contracts/relay/v1"
)

// Roster is the concurrency-safe set of active sessions used for fan-out.
// It is owned by the broadcast side of the relay and passed explicitly into
// the gateway and reconciler; there is no ambient global.
//
// Concurrency guarantees:
// - Add/Remove are safe under concurrent BroadcastExcept.
// - BroadcastExcept never blocks (drops under backpressure).
// - Fan-out is panic-safe because Client.Send is never closed by the server.
type Roster struct {
	log *slog.Logger

	mu      sync.RWMutex
	members map[string]*Client
}

// NewRoster constructs an empty roster.
func NewRoster(log *slog.Logger) *Roster {
	return &Roster{
		log:     log,
		members: make(map[string]*Client),
	}
}

// Add registers a client for fan-out.
func (r *Roster) Add(client *Client) {
	if r == nil || client == nil || client.SessionID == "" {
		return
	}

	r.mu.Lock()
	r.members[client.SessionID] = client
	n := len(r.members)
	r.mu.Unlock()

	metricConnectedClients.Set(float64(n))
	r.log.Info("roster.join", "session_id", client.SessionID, "connected", n)
}

// Remove unregisters a client and signals shutdown for it.
func (r *Roster) Remove(sessionID string) {
	if r == nil || sessionID == "" {
		return
	}

	var cl *Client

	r.mu.Lock()
	cl = r.members[sessionID]
	delete(r.members, sessionID)
	n := len(r.members)
	r.mu.Unlock()

	// Signal client shutdown after removing from membership.
	// This ordering avoids race windows where a broadcaster still holds a pointer
	// while the client goroutines are being torn down.
	if cl != nil {
		cl.Close()
	}

	metricConnectedClients.Set(float64(n))
	r.log.Info("roster.leave", "session_id", sessionID, "connected", n)
}

// Len reports the number of active sessions.
func (r *Roster) Len() int {
	if r == nil {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}

// BroadcastExcept fans an envelope out to every member but the originating
// session. Delivery per client is independent and non-blocking: a slow or
// shutting-down client is skipped rather than stalling the others; it will
// recover the record via replay on its next connect.
func (r *Roster) BroadcastExcept(senderSessionID string, env v1.Envelope) {
	if r == nil {
		return
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for id, m := range r.members {
		if m == nil || id == senderSessionID {
			continue
		}

		select {
		case <-m.Done():
			// Skip clients that are shutting down.
			continue
		default:
		}

		select {
		case m.Send <- env:
		default:
			// Drop rather than block the whole fan-out.
			metricBroadcastDrops.Inc()
		}
	}
}
