// Package plog defines the persistence-collaborator interface a K2
// partition would use for its write-ahead log, plus a bbolt-backed
// implementation exercising it end-to-end. The client's core transaction
// path never calls into this package directly — it models the server-side
// collaborator the spec names only as an interface — but a runnable repo
// benefits from having at least one concrete implementation to test
// against.
package plog

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
)

// PlogId uniquely names one append-only log.
type PlogId string

// NewPlogId generates a fresh, random PlogId.
func NewPlogId() PlogId {
	var b [16]byte
	_, _ = rand.Read(b[:])
	return PlogId(hex.EncodeToString(b[:]))
}

// PlogMaxSize is the largest single log a store is willing to hold,
// mirroring the reference mock's bound on unbounded append growth.
const PlogMaxSize = 1 << 30 // 1 GiB

// ErrSealed is returned by Append when the target log has been sealed.
var ErrSealed = errors.New("plog: log is sealed")

// ErrTooLarge is returned by Append when the append would grow the log
// past PlogMaxSize.
var ErrTooLarge = errors.New("plog: append would exceed max log size")

// ErrNotFound is returned by any operation addressing an unknown PlogId.
var ErrNotFound = errors.New("plog: unknown plog id")

// Info describes one log's current extent and liveness.
type Info struct {
	Id     PlogId
	Size   uint32
	Sealed bool
}

// Region selects a byte range to Read back out of a log.
type Region struct {
	Offset uint32
	Size   uint32
}

// Store is the persistence-collaborator contract: create new logs, append
// to and read back from them, and seal or drop them once they're no
// longer needed.
type Store interface {
	// Create allocates n fresh, empty logs and returns their ids.
	Create(ctx context.Context, n int) ([]PlogId, error)

	// GetInfo reports id's current size and sealed state.
	GetInfo(ctx context.Context, id PlogId) (Info, error)

	// Append writes data to the end of id, returning the offset it was
	// written at. Fails with ErrSealed or ErrTooLarge without partially
	// applying the append.
	Append(ctx context.Context, id PlogId, data []byte) (offset uint32, err error)

	// Read returns the bytes in region of id.
	Read(ctx context.Context, id PlogId, region Region) ([]byte, error)

	// Seal marks id read-only; subsequent Append calls fail with
	// ErrSealed.
	Seal(ctx context.Context, id PlogId) error

	// Drop permanently removes id and its data.
	Drop(ctx context.Context, id PlogId) error
}
