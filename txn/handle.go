// Package txn implements the K23SI transaction handle: the client-side
// state machine that turns a sequence of reads and writes under one MTR
// into a single commit-or-abort decision.
package txn

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/chogori-io/k2go/cpo"
	"github.com/chogori-io/k2go/dto"
)

type state int

const (
	stateFresh state = iota
	stateActive
	stateFailed
	stateEnded
)

// Counters is the subset of client-level metrics a Handle bumps over its
// lifetime. The client facade implements this so txn need not import it
// back (txn is a dependency of client, not the reverse).
type Counters interface {
	IncReadOps()
	IncWriteOps()
	IncHeartbeats()
	IncTotalTxns()
	IncSuccessfulTxns()
	IncAbortConflicts()
	IncAbortTooOld()
}

// Handle is one transaction's client-side state: its MTR, write set, TRH
// designation, and heartbeat lifecycle. A zero-value Handle is in state
// Fresh and rejects every operation with an invalid-use status, matching
// the spec's treatment of a handle used before BeginTxn (or after End).
//
// Not safe for concurrent use by more than one goroutine issuing
// overlapping read/write/end calls on the same handle — like the single-
// threaded-shard assumption the state machine is translated from, a
// Handle is meant to be driven by one logical flow of control at a time
// (see the client package's design note on a per-shard client instance).
type Handle struct {
	mtr    dto.MTR
	cpo    *cpo.Client
	opts   Options
	log    *logrus.Entry
	counters Counters

	mu            sync.Mutex
	state         state
	failedStatus  dto.Status
	writeSet      []dto.Key
	trhKey        dto.Key
	trhCollection string

	heartbeatOnce    sync.Once
	heartbeatStop    chan struct{}
	heartbeatStopped bool
	heartbeatWG      sync.WaitGroup
}

// New constructs a Handle in state Active under mtr. Per the state
// machine, construction is the Fresh -> Active transition; there is no
// separate "begin" call on the handle itself once an MTR has been
// obtained.
func New(mtr dto.MTR, cpoClient *cpo.Client, opts Options, counters Counters, log *logrus.Entry) *Handle {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Handle{
		mtr:           mtr,
		cpo:           cpoClient,
		opts:          opts,
		counters:      counters,
		log:           log.WithField("txn_id", mtr.TxnID),
		state:         stateActive,
		heartbeatStop: make(chan struct{}),
	}
}

// MTR returns the handle's transaction metadata record.
func (h *Handle) MTR() dto.MTR { return h.mtr }

// preCheck returns (ok, result-status) for a read/write entry point: ok is
// false when the handle isn't Active, in which case resultStatus is what
// the caller should surface synchronously without issuing any RPC.
func (h *Handle) preCheck() (ok bool, resultStatus dto.Status) {
	h.mu.Lock()
	defer h.mu.Unlock()
	switch h.state {
	case stateActive:
		return true, dto.Status{}
	case stateFailed:
		return false, h.failedStatus
	default: // stateFresh, stateEnded
		return false, dto.StatusInvalidUseOfHandle
	}
}

// observeStatus inspects status for a state-transitioning failure and, if
// found, moves the handle to Failed and bumps the matching counter. Must
// be called without h.mu held. Safe to call from any goroutine except the
// heartbeat loop's own — see observeStatusFromHeartbeat.
func (h *Handle) observeStatus(status dto.Status) {
	h.observeFailureTransition(status, h.disarmHeartbeat)
}

// observeStatusFromHeartbeat is observeStatus's variant for use inside
// sendHeartbeat, which always runs on the heartbeat loop's own goroutine.
// It must only signal the loop to stop, never wait on heartbeatWG: that
// WaitGroup's Done is deferred at the return of this very goroutine, so
// waiting on it here would block forever.
func (h *Handle) observeStatusFromHeartbeat(status dto.Status) {
	h.observeFailureTransition(status, h.signalHeartbeatStop)
}

func (h *Handle) observeFailureTransition(status dto.Status, stopHeartbeat func()) {
	if !status.IsFailureTransition() {
		return
	}

	h.mu.Lock()
	alreadyFailed := h.state == stateFailed
	if h.state == stateActive {
		h.state = stateFailed
		h.failedStatus = status
	}
	h.mu.Unlock()

	if alreadyFailed {
		return
	}
	stopHeartbeat()

	switch {
	case status.IsAbortConflict():
		h.counters.IncAbortConflicts()
	case status.IsAbortRequestTooOld():
		h.counters.IncAbortTooOld()
	}
	h.log.WithField("status", status).Warn("transaction moved to Failed")
}

// Read fetches the value visible to the handle's MTR for key in
// collection. Reads never extend the write set nor arm the heartbeat.
func (h *Handle) Read(ctx context.Context, collection string, key dto.Key) (ReadResult, error) {
	if ok, status := h.preCheck(); !ok {
		return ReadResult{Status: status}, nil
	}
	h.counters.IncReadOps()

	req := dto.ReadRequest{CollectionName: collection, Key: key, MTR: h.mtr}
	resp, err := cpo.PartitionRequest[dto.ReadRequest, dto.ReadResponse](ctx, h.cpo, collection, dto.VerbK23SIRead, req, h.opts.Deadline)
	if err != nil {
		return ReadResult{Status: statusFromErr(err)}, nil
	}
	h.observeStatus(resp.Status)
	return ReadResult{Status: resp.Status, Value: resp.Value}, nil
}

// Write issues a write (or, if isDelete, a tombstone) of value at key in
// collection. The first write of a handle's lifetime freezes the
// transaction record holder (TRH) to that write's (collection, key); the
// server is authoritative over whether the write itself lands, so a
// non-2xx response still leaves key in the write set.
func (h *Handle) Write(ctx context.Context, collection string, key dto.Key, value []byte, isDelete bool) (WriteResult, error) {
	if ok, status := h.preCheck(); !ok {
		return WriteResult{Status: status}, nil
	}
	h.counters.IncWriteOps()

	h.mu.Lock()
	isFirst := len(h.writeSet) == 0
	if isFirst {
		h.trhKey = key
		h.trhCollection = collection
	}
	h.writeSet = append(h.writeSet, key)
	trhKey := h.trhKey
	h.mu.Unlock()

	req := dto.WriteRequest{
		CollectionName: collection,
		Key:            key,
		Value:          value,
		IsDelete:       isDelete,
		MTR:            h.mtr,
		TRH:            trhKey,
		IsFirstWrite:   isFirst,
	}
	resp, err := cpo.PartitionRequest[dto.WriteRequest, dto.WriteResponse](ctx, h.cpo, collection, dto.VerbK23SIWrite, req, h.opts.Deadline)
	if err != nil {
		return WriteResult{Status: statusFromErr(err)}, nil
	}

	if resp.Status.Is2xxOK() {
		h.armHeartbeat(collection)
	}
	h.observeStatus(resp.Status)
	return WriteResult{Status: resp.Status}, nil
}

func statusFromErr(err error) dto.Status {
	var statusErr *cpo.StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Status
	}
	return dto.NewStatus(dto.CodeTimeout, "%s", err.Error())
}

// armHeartbeat looks up collection's heartbeat deadline and starts a
// periodic background heartbeat to the TRH if one isn't already running.
// Only ever called after a successful (2xx) write, per the state machine:
// a failed first write must not arm a timer that would then heartbeat a
// transaction record that was never created.
func (h *Handle) armHeartbeat(collection string) {
	h.heartbeatOnce.Do(func() {
		entry, status, err := h.cpo.GetPartitionMap(context.Background(), collection, h.opts.Deadline)
		if err != nil || !status.Is2xxOK() {
			h.log.WithError(err).Warn("could not resolve heartbeat deadline, using default")
			entry = &cpo.CollectionEntry{Metadata: dto.CollectionMetadata{HeartbeatDeadline: 10 * time.Second}}
		}
		interval := entry.Metadata.HeartbeatDeadline / 2
		if interval <= 0 {
			interval = 5 * time.Second
		}
		h.heartbeatWG.Add(1)
		go h.heartbeatLoop(interval)
	})
}

func (h *Handle) heartbeatLoop(interval time.Duration) {
	defer h.heartbeatWG.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-h.heartbeatStop:
			return
		case <-ticker.C:
			h.sendHeartbeat()
		}
	}
}

func (h *Handle) sendHeartbeat() {
	h.mu.Lock()
	trhKey := h.trhKey
	trhCollection := h.trhCollection
	h.mu.Unlock()

	h.counters.IncHeartbeats()
	req := dto.HeartbeatRequest{CollectionName: trhCollection, TRH: trhKey, MTR: h.mtr}
	ctx, cancel := context.WithTimeout(context.Background(), h.opts.Deadline)
	defer cancel()

	resp, err := cpo.PartitionRequest[dto.HeartbeatRequest, dto.HeartbeatResponse](ctx, h.cpo, trhCollection, dto.VerbK23SITxnHeartbeat, req, h.opts.Deadline)
	if err != nil {
		h.log.WithError(err).Debug("heartbeat transport error, will retry next tick")
		return
	}
	h.observeStatusFromHeartbeat(resp.Status)
}

// signalHeartbeatStop closes heartbeatStop, waking heartbeatLoop's select
// so it returns (and calls heartbeatWG.Done) on its own. Safe to call more
// than once, and safe to call from the heartbeat loop's own goroutine.
func (h *Handle) signalHeartbeatStop() {
	h.mu.Lock()
	if h.heartbeatStopped {
		h.mu.Unlock()
		return
	}
	h.heartbeatStopped = true
	h.mu.Unlock()

	close(h.heartbeatStop)
}

// disarmHeartbeat stops the background heartbeat goroutine, if one was
// ever started, and waits for it to exit. Must never be called from the
// heartbeat loop's own goroutine (use signalHeartbeatStop there instead),
// since this blocks until that goroutine returns.
func (h *Handle) disarmHeartbeat() {
	h.signalHeartbeatStop()
	h.heartbeatWG.Wait()
}

// End finalizes the transaction, committing if shouldCommit (and the
// handle hasn't already moved to Failed, which forces an abort), and
// transitions the handle to Ended regardless of the finalize RPC's
// outcome. Exactly one call per handle is meaningful; subsequent calls
// return an invalid-use status.
func (h *Handle) End(ctx context.Context, shouldCommit bool) (EndResult, error) {
	h.mu.Lock()
	if h.state == stateEnded || h.state == stateFresh {
		status := dto.StatusInvalidUseOfHandle
		h.mu.Unlock()
		return EndResult{Status: status}, nil
	}
	if h.state == stateFailed {
		shouldCommit = false
	}
	trhKey := h.trhKey
	trhCollection := h.trhCollection
	writeSet := append([]dto.Key(nil), h.writeSet...)
	h.mu.Unlock()

	h.disarmHeartbeat()
	h.counters.IncTotalTxns()

	if len(writeSet) == 0 {
		h.finish(stateEnded)
		if shouldCommit {
			h.counters.IncSuccessfulTxns()
		}
		return EndResult{Status: dto.StatusOK, Committed: shouldCommit}, nil
	}

	action := dto.EndAbort
	if shouldCommit {
		action = dto.EndCommit
	}
	req := dto.EndRequest{
		CollectionName: trhCollection,
		TRH:            trhKey,
		MTR:            h.mtr,
		Action:         action,
		WriteKeys:      writeSet,
	}
	resp, err := cpo.PartitionRequest[dto.EndRequest, dto.EndResponse](ctx, h.cpo, trhCollection, dto.VerbK23SITxnEnd, req, h.opts.EndDeadline)
	h.finish(stateEnded)

	if err != nil {
		return EndResult{Status: statusFromErr(err)}, nil
	}
	committed := shouldCommit && resp.Status.Is2xxOK()
	if committed {
		h.counters.IncSuccessfulTxns()
	}
	return EndResult{Status: resp.Status, Committed: committed}, nil
}

func (h *Handle) finish(s state) {
	h.mu.Lock()
	h.state = s
	h.mu.Unlock()
}
