package dto

import (
	"fmt"

	"github.com/google/uuid"
)

// TxnPriority influences conflict-resolution ordering at the server; the
// client only threads it through to the MTR.
type TxnPriority int

const (
	PriorityLow TxnPriority = iota
	PriorityMedium
	PriorityHigh
)

func (p TxnPriority) String() string {
	switch p {
	case PriorityLow:
		return "Low"
	case PriorityMedium:
		return "Medium"
	case PriorityHigh:
		return "High"
	default:
		return fmt.Sprintf("TxnPriority(%d)", int(p))
	}
}

// Timestamp is a totally ordered, monotonic (within one tso.Client) value
// issued by the timestamp oracle.
type Timestamp uint64

// MTR (Transaction Metadata Record) uniquely names a transaction
// network-wide. Immutable once issued.
type MTR struct {
	TxnID     string
	Timestamp Timestamp
	Priority  TxnPriority
}

func (m MTR) String() string {
	return fmt.Sprintf("MTR{id=%s, ts=%d, pri=%s}", m.TxnID, m.Timestamp, m.Priority)
}

// NewTxnID generates a network-wide-unique transaction identifier. The MTR
// itself is just (id, timestamp, priority); uniqueness only needs to hold
// for the lifetime of the transaction.
func NewTxnID() string {
	return uuid.NewString()
}
