package txn

import "time"

// Options configures one transaction's deadlines and finalize semantics.
// Defaults mirror client.Config's defaults; callers typically get an
// Options value from the client facade rather than constructing one
// directly.
type Options struct {
	// Deadline bounds every individual read/write RPC issued by the
	// handle.
	Deadline time.Duration

	// EndDeadline bounds the finalize RPC issued by end().
	EndDeadline time.Duration

	// Priority is threaded into the handle's MTR and influences
	// server-side conflict resolution.
	Priority int

	// SyncFinalize is carried on the options but is not sent by End: the
	// finalize request (dto.EndRequest) has no sync-finalize field, so
	// setting it does not change when the TRH acknowledges end().
	SyncFinalize bool
}

// DefaultOptions returns the package's baseline deadlines, matching
// client.DefaultConfig(): short enough that a wedged partition doesn't
// hang a caller indefinitely, with a longer allowance for end() to fan a
// finalize decision out to every participant.
func DefaultOptions() Options {
	return Options{
		Deadline:     1 * time.Second,
		EndDeadline:  60 * time.Second,
		Priority:     1,
		SyncFinalize: false,
	}
}
