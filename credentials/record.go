// credentials/record.go
package credentials

import "time"

// Record is one credential with its validity window. A zero ExpiresAt means absent.
type Record struct {
	Token string
	// IssuedDelay is the offset between issue time and ExpiresAt; ExpiresAt minus IssuedDelay
	// is when the credential was issued.
	IssuedDelay time.Duration
	ExpiresAt   time.Time
}

// ValidAt reports whether the record has not expired at now. The token value is not
// consulted: an expired record is invalid even if it still carries a token.
func (r Record) ValidAt(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && r.ExpiresAt.After(now)
}

// Reset clears every field.
func (r *Record) Reset() {
	*r = Record{}
}
