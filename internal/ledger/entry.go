// Package ledger implements the append-only, hash-chained governance event
// log.
//
// Every entry links to its predecessor through prev_hash; the first entry
// links to the Genesis sentinel. Appends are serialized by the Ledger and
// the Store rejects any insert that does not extend the current tip, so two
// writers can never fork the chain. Before an event is appended it passes
// three gates (actor authority, payload sensitivity, write locality); a
// rejected event is never persisted.
package ledger

import (
	"fmt"

	"github.com/roach88/windi/internal/canon"
)

// Genesis is the prev_hash of the first entry in a chain.
const Genesis = "GENESIS"

// Default and maximum number of entries returned by Read.
const (
	DefaultReadLimit = 50
	MaxReadLimit     = 200
)

// Event is a governance state transition submitted for append.
type Event struct {
	Actor   string
	Action  string
	Payload canon.Object

	// Origin is the network address the write arrived from. Empty means an
	// in-process call.
	Origin string
}

// Entry is a persisted chain node. Entries are never mutated or deleted.
type Entry struct {
	ID        string       `json:"id"`
	Seq       int64        `json:"seq"`
	Timestamp string       `json:"timestamp"`
	Actor     string       `json:"actor"`
	Action    string       `json:"action"`
	Payload   canon.Object `json:"payload"`
	PrevHash  string       `json:"prev_hash"`
	Hash      string       `json:"hash"`
}

// Receipt is returned by Append.
type Receipt struct {
	ID       string `json:"id"`
	Hash     string `json:"hash"`
	PrevHash string `json:"prev_hash"`
}

// Filter selects entries for Read. Empty fields match everything.
type Filter struct {
	Action string
	Actor  string
	Limit  int
}

// Matches reports whether e passes the action and actor filters.
func (f Filter) Matches(e Entry) bool {
	if f.Action != "" && e.Action != f.Action {
		return false
	}
	if f.Actor != "" && e.Actor != f.Actor {
		return false
	}
	return true
}

// normalized returns f with Limit clamped to [1, MaxReadLimit].
func (f Filter) normalized() Filter {
	switch {
	case f.Limit <= 0:
		f.Limit = DefaultReadLimit
	case f.Limit > MaxReadLimit:
		f.Limit = MaxReadLimit
	}
	return f
}

// ComputeHash returns the chain hash of e from its own fields and its
// stored PrevHash. The fields are encoded as a canonical JSON array, so no
// separator inside a field can make two different entries collide.
func ComputeHash(e Entry) (string, error) {
	payload := e.Payload
	if payload == nil {
		payload = canon.Object{}
	}
	data, err := canon.Marshal(canon.Array{
		canon.String(e.ID),
		canon.String(e.Timestamp),
		canon.String(e.Actor),
		canon.String(e.Action),
		payload,
		canon.String(e.PrevHash),
	})
	if err != nil {
		return "", fmt.Errorf("compute entry hash: %w", err)
	}
	return canon.Sum(data), nil
}
