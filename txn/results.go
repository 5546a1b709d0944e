package txn

import "github.com/chogori-io/k2go/dto"

// ReadResult is the outcome of Handle.Read: the value found (if any) and
// the status distinguishing found/not-found/retriable-abort classes.
type ReadResult struct {
	Status dto.Status
	Value  []byte
}

// WriteResult is the outcome of Handle.Write.
type WriteResult struct {
	Status dto.Status
}

// EndResult is the outcome of Handle.End: the status the TRH returned for
// the finalize RPC, and whether the transaction actually committed
// (shouldCommit may have been forced false by a prior Failed transition
// even if the caller requested a commit).
type EndResult struct {
	Status    dto.Status
	Committed bool
}
