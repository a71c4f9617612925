// Package sync implements the state synchronization engine: the decision
// logic for whose version of a client's tracker state wins on every fetch
// and replace, plus the one-time migration of legacy single-blob state into
// normalized entities.
package sync

import (
	"context"

	"github.com/edward/tracksync/internal/schema"
)

// Status classifies the outcome of a sync operation.
type Status int

const (
	// StatusOK means the operation succeeded; Result.State carries the
	// reconstructed document (nil on a replace, which returns only the
	// accepted clock).
	StatusOK Status = iota

	// StatusNoState means the client exists but has no synchronized state
	// yet. This is a valid result for a brand-new or empty client, not an
	// error.
	StatusNoState

	// StatusConflict means a replace lost to a newer stored clock. The
	// write was NOT applied; Result carries the current authoritative
	// state and clock so the caller can reconcile locally.
	StatusConflict
)

// Result is the outcome of a Fetch or Replace.
type Result struct {
	Status      Status
	UpdatedAtMs int64
	State       *schema.Document
}

// Engine is the synchronization engine for full-state documents.
//
// Every operation starts by validating the client identifier; a malformed
// identifier fails with identity.ErrInvalid before any storage access.
// Clients are created lazily: the first fetch or replace for an unseen
// identifier creates its client and clock rows.
type Engine interface {
	// Fetch returns the client's current state and logical clock.
	//
	// If the client has no normalized clock yet, Fetch first attempts the
	// one-time legacy migration; migration failures are recovered silently
	// by treating the client as having no prior state. A client that still
	// has no clock gets StatusNoState with clock 0.
	Fetch(ctx context.Context, clientID string) (*Result, error)

	// Replace atomically replaces the client's entire state with the given
	// untyped document, provided claimedMs is not older than the stored
	// clock. Equal clocks are accepted, so retries are idempotent. A
	// non-positive claimedMs is substituted with the current time before
	// comparison, keeping accepted clocks monotone.
	//
	// On conflict the result carries StatusConflict plus the winning state;
	// on acceptance it carries StatusOK and the recorded clock.
	Replace(ctx context.Context, clientID string, state map[string]any, claimedMs int64) (*Result, error)
}
