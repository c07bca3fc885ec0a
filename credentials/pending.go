// credentials/pending.go
package credentials

// PendingMode tells whether a credential operation is in flight and whether new calls
// must wait for it.
type PendingMode int

const (
	// PendingNone means no credential operation is running.
	PendingNone PendingMode = iota
	// PendingAsync means a renew is running while the current access token is still usable.
	// New calls proceed with the current token.
	PendingAsync
	// PendingSync means a refresh or generate is running because the access token is unusable.
	// New calls are queued until it settles.
	PendingSync
)

func (m PendingMode) String() string {
	switch m {
	case PendingNone:
		return "none"
	case PendingAsync:
		return "async"
	case PendingSync:
		return "sync"
	default:
		return "unknown"
	}
}
