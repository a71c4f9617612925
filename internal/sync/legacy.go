package sync

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/edward/tracksync/internal/schema"
)

// migrateLegacy performs the one-time upgrade of a client's pre-normalization
// blob state into normalized entities.
//
// It runs only for clients whose normalized clock is unset; once any replace
// records a positive clock the legacy source is never consulted again. The
// effective clock comes from the legacy row's stored update time, or the
// current time when that value is non-positive. The whole upgrade is a
// single ReplaceState transaction, so a failure leaves the client exactly
// where it was: with no normalized state.
//
// Returns (true, nil) when a migration was applied, (false, nil) when there
// was nothing to migrate, and (false, err) when the attempt failed; callers
// treat failure as "no state yet" rather than surfacing it.
func (e *engine) migrateLegacy(ctx context.Context, clientID string) (bool, error) {
	blob, legacyMs, ok, err := e.store.LegacyBlob(ctx, clientID)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}

	var raw map[string]any
	if err := json.Unmarshal(blob, &raw); err != nil {
		// An undecodable or non-object blob is treated as absent.
		return false, nil
	}
	if raw == nil {
		// JSON null decodes without error but yields no object.
		return false, nil
	}

	now := e.now()
	effectiveMs := legacyMs
	if effectiveMs <= 0 {
		effectiveMs = now.UnixMilli()
	}

	doc := schema.Sanitize(raw, schema.SanitizeOptions{Now: now, ClockMs: effectiveMs})
	if err := e.store.ReplaceState(ctx, clientID, doc, effectiveMs); err != nil {
		return false, fmt.Errorf("failed to apply migrated state: %w", err)
	}

	e.logger.Printf("Migrated legacy state for %s at clock %d", clientID, effectiveMs)
	return true, nil
}
