package sync

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/edward/tracksync/internal/identity"
	"github.com/edward/tracksync/internal/schema"
	"github.com/edward/tracksync/internal/store"
)

// engine implements the Engine interface.
type engine struct {
	store  *store.Store
	logger *log.Logger
	now    func() time.Time
}

// New creates an Engine backed by the given store.
//
// The store must be opened and have its schema initialized before passing
// it here. If logger is nil, a default logger writing to stderr is used.
//
// Example:
//
//	st, err := store.Open("tracksync.db")
//	if err != nil {
//	    return err
//	}
//	if err := st.InitSchema(ctx); err != nil {
//	    return err
//	}
//	eng := sync.New(st, nil)
func New(st *store.Store, logger *log.Logger) Engine {
	if logger == nil {
		logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}
	return &engine{
		store:  st,
		logger: logger,
		now:    time.Now,
	}
}

// Fetch implements Engine.Fetch.
func (e *engine) Fetch(ctx context.Context, clientID string) (*Result, error) {
	if err := identity.Validate(clientID); err != nil {
		return nil, err
	}
	if err := e.store.EnsureClient(ctx, clientID); err != nil {
		return nil, fmt.Errorf("failed to resolve client: %w", err)
	}

	clock, err := e.store.Clock(ctx, clientID)
	if err != nil {
		return nil, err
	}

	if clock <= 0 {
		// Best-effort upgrade of pre-normalization state. Failure means
		// the client simply has no state yet; it is never surfaced.
		if migrated, err := e.migrateLegacy(ctx, clientID); err != nil {
			e.logger.Printf("WARNING: legacy migration for %s skipped: %v", clientID, err)
		} else if migrated {
			clock, err = e.store.Clock(ctx, clientID)
			if err != nil {
				return nil, err
			}
		}
	}

	if clock <= 0 {
		return &Result{Status: StatusNoState, UpdatedAtMs: 0}, nil
	}

	doc, err := e.store.LoadState(ctx, clientID, clock)
	if err != nil {
		return nil, err
	}
	return &Result{Status: StatusOK, UpdatedAtMs: clock, State: doc}, nil
}

// Replace implements Engine.Replace.
func (e *engine) Replace(ctx context.Context, clientID string, state map[string]any, claimedMs int64) (*Result, error) {
	if err := identity.Validate(clientID); err != nil {
		return nil, err
	}
	if err := e.store.EnsureClient(ctx, clientID); err != nil {
		return nil, fmt.Errorf("failed to resolve client: %w", err)
	}

	now := e.now()
	if claimedMs <= 0 {
		claimedMs = now.UnixMilli()
	}

	// Two writers can both pass this check before either commits; the
	// transactionally later one then wins with an equal-or-higher clock.
	stored, err := e.store.Clock(ctx, clientID)
	if err != nil {
		return nil, err
	}
	if resolveClock(stored, claimedMs) == reject {
		doc, err := e.store.LoadState(ctx, clientID, stored)
		if err != nil {
			return nil, err
		}
		e.logger.Printf("Rejected stale write for %s: claimed=%d stored=%d", clientID, claimedMs, stored)
		return &Result{Status: StatusConflict, UpdatedAtMs: stored, State: doc}, nil
	}

	doc := schema.Sanitize(state, schema.SanitizeOptions{Now: now, ClockMs: claimedMs})
	if err := e.store.ReplaceState(ctx, clientID, doc, claimedMs); err != nil {
		return nil, err
	}

	e.logger.Printf("Applied state for %s at clock %d: habits=%d entries=%d todos=%d expenses=%d wishlist=%d",
		clientID, claimedMs, len(doc.Habits), len(doc.Entries), len(doc.Todos), len(doc.Expenses), len(doc.Wishlist))
	return &Result{Status: StatusOK, UpdatedAtMs: claimedMs}, nil
}
