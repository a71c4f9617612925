package sync

// decision is the outcome of comparing an incoming write's clock against the
// stored clock.
type decision int

const (
	accept decision = iota
	reject
)

// resolveClock arbitrates a write: the stored clock wins only when it is
// strictly newer. Equality accepts, so re-submitting the same snapshot
// (a retry) is never treated as a conflict.
//
// The claimed clock must already be defaulted to a positive value; this
// function only compares.
func resolveClock(storedMs, claimedMs int64) decision {
	if storedMs > claimedMs {
		return reject
	}
	return accept
}
