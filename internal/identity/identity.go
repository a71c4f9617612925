// Package identity validates the client identifier that partitions all
// synchronized state.
//
// A client identifier is an opaque handle naming one logical device/document
// owner. It is NOT an authenticated identity; authentication happens upstream
// and hands this package an already-opaque string. The identifier must be
// validated before any storage access so a malformed request never touches
// the database.
package identity

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// MaxLength is the maximum accepted length of a client identifier.
const MaxLength = 64

// ErrInvalid is returned when a client identifier fails validation.
// Callers should surface it as a request validation error, not a server
// failure.
var ErrInvalid = errors.New("invalid client id")

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// Normalize strips surrounding whitespace from a raw identifier as it
// arrives off the wire. It does not validate; call Validate on the result.
func Normalize(id string) string {
	return strings.TrimSpace(id)
}

// Validate checks that id is a well-formed client identifier: non-empty,
// at most MaxLength characters, alphanumeric or underscore.
//
// The returned error wraps ErrInvalid so callers can classify it with
// errors.Is.
func Validate(id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty", ErrInvalid)
	}
	if len(id) > MaxLength {
		return fmt.Errorf("%w: length %d exceeds %d", ErrInvalid, len(id), MaxLength)
	}
	if !idPattern.MatchString(id) {
		return fmt.Errorf("%w: must match [A-Za-z0-9_]+", ErrInvalid)
	}
	return nil
}
