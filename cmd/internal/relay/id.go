package relay

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// NewSessionID returns a ULID used as the per-connection identity token.
// ULIDs are lexicographically sortable, which keeps log lines greppable.
func NewSessionID(now time.Time) (string, error) {
	return newULID(now)
}

// NewRecordID returns a ULID used as a record's stable id. Unlike Seq it is
// assigned before commit, so it is safe to use in log lines for failed
// appends. Falls back to random hex if the entropy source fails.
func NewRecordID(now time.Time) string {
	id, err := newULID(now)
	if err != nil {
		return NewRandomHex(13)
	}
	return id
}

func newULID(now time.Time) (string, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}

	id, err := ulid.New(ulid.Timestamp(now), rand.Reader)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
