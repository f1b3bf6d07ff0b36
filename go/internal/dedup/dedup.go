// Package dedup suppresses re-application of push events that have already
// been applied since the room was opened. It is purely a filter: it never
// rejects based on ordering, only on exact repetition.
package dedup

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/kalee/two-rooms-client/go/internal/events"
)

// Deduplicator records the identity of every applied event. Identity is
// structural equality of the decoded payload for most events; exchange and
// leadership-change events use a looser (kind, timestamp, subject) identity
// because the server may echo them with extra fields after a reconnect
// replay.
type Deduplicator struct {
	seen map[string]struct{}
}

// New creates an empty deduplicator
func New() *Deduplicator {
	return &Deduplicator{seen: make(map[string]struct{})}
}

// ShouldApply reports whether the event has not been applied yet, and
// records its identity as a side effect.
func (d *Deduplicator) ShouldApply(env events.Envelope) bool {
	key := identity(env)
	if _, dup := d.seen[key]; dup {
		return false
	}
	d.seen[key] = struct{}{}
	return true
}

// Reset forgets all recorded identities. Called when a room is (re)opened.
func (d *Deduplicator) Reset() {
	d.seen = make(map[string]struct{})
}

func identity(env events.Envelope) string {
	switch env.Type {
	case events.TypeLeadershipChanged:
		var p events.LeadershipChangedPayload
		if err := json.Unmarshal(env.Payload, &p); err == nil {
			subject := ""
			if p.NewLeader != nil {
				subject = p.NewLeader.ID
			}
			return fmt.Sprintf("%s|%s|%s", env.Type, p.Timestamp, subject)
		}
	case events.TypeExchangeComplete:
		var p events.ExchangeCompletePayload
		if err := json.Unmarshal(env.Payload, &p); err == nil {
			return fmt.Sprintf("%s|round=%d", env.Type, p.RoundNumber)
		}
	}
	return structural(env)
}

// structural hashes the tag plus the whitespace-normalized payload, so the
// same decoded document always maps to the same identity.
func structural(env events.Envelope) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, env.Payload); err != nil {
		buf.Reset()
		buf.Write(env.Payload)
	}
	h := sha256.New()
	h.Write([]byte(env.Type))
	h.Write([]byte{'|'})
	h.Write(buf.Bytes())
	return hex.EncodeToString(h.Sum(nil))
}
