package txn

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/chogori-io/k2go/cpo"
	"github.com/chogori-io/k2go/dto"
	"github.com/chogori-io/k2go/transport"
)

type noopCounters struct {
	readOps, writeOps, heartbeats        int32
	totalTxns, successfulTxns            int32
	abortConflicts, abortTooOld          int32
}

func (c *noopCounters) IncReadOps()        { atomic.AddInt32(&c.readOps, 1) }
func (c *noopCounters) IncWriteOps()       { atomic.AddInt32(&c.writeOps, 1) }
func (c *noopCounters) IncHeartbeats()     { atomic.AddInt32(&c.heartbeats, 1) }
func (c *noopCounters) IncTotalTxns()      { atomic.AddInt32(&c.totalTxns, 1) }
func (c *noopCounters) IncSuccessfulTxns() { atomic.AddInt32(&c.successfulTxns, 1) }
func (c *noopCounters) IncAbortConflicts() { atomic.AddInt32(&c.abortConflicts, 1) }
func (c *noopCounters) IncAbortTooOld()    { atomic.AddInt32(&c.abortTooOld, 1) }

type scriptedServer struct {
	writeStatus     dto.Status
	heartbeatStatus dto.Status
	endStatus       dto.Status
}

func (s *scriptedServer) Dial(ctx context.Context, endpoint transport.Endpoint) (transport.Channel, error) {
	return &scriptedChannel{server: s, endpoint: endpoint}, nil
}

type scriptedChannel struct {
	server    *scriptedServer
	endpoint  transport.Endpoint
	onMessage transport.MessageObserver
}

func (c *scriptedChannel) Send(ctx context.Context, verb transport.Verb, payload *transport.Payload) error {
	go func() {
		var encoded []byte
		switch verb {
		case dto.VerbGetPartitionMap:
			resp := dto.GetPartitionMapResponse{
				Status: dto.StatusOK,
				Collection: dto.Collection{
					Name:     "orders",
					Metadata: dto.CollectionMetadata{HeartbeatDeadline: 40 * time.Millisecond},
					PartitionMap: dto.PartitionMap{
						Assignments: []dto.KeyRangeAssignment{{StartKey: dto.Key(""), Endpoint: c.endpoint}},
					},
				},
			}
			encoded, _ = msgpack.Marshal(resp)
		case dto.VerbK23SIWrite:
			encoded, _ = msgpack.Marshal(dto.WriteResponse{Status: c.server.writeStatus})
		case dto.VerbK23SITxnHeartbeat:
			encoded, _ = msgpack.Marshal(dto.HeartbeatResponse{Status: c.server.heartbeatStatus})
		case dto.VerbK23SITxnEnd:
			encoded, _ = msgpack.Marshal(dto.EndResponse{Status: c.server.endStatus})
		}
		c.onMessage(verb, transport.FromBytes(encoded), c.endpoint)
	}()
	return nil
}

func (c *scriptedChannel) SetMessageObserver(observer transport.MessageObserver) { c.onMessage = observer }
func (c *scriptedChannel) SetFailureObserver(observer transport.FailureObserver) {}
func (c *scriptedChannel) GracefulClose(ctx context.Context) error              { return nil }
func (c *scriptedChannel) Endpoint() transport.Endpoint                        { return c.endpoint }

func newTestHandle(t *testing.T, server *scriptedServer) (*Handle, *noopCounters) {
	t.Helper()
	dispatcher := transport.NewProtocolDispatcher(nil, nil)
	dispatcher.RegisterDialer("tcp", server)
	oracle := transport.NewEndpoint("tcp", "127.0.0.1", 9100, func() *transport.Payload { return transport.NewPayload() })
	cpoClient := cpo.NewClient(dispatcher, oracle, nil)

	counters := &noopCounters{}
	mtr := dto.MTR{TxnID: dto.NewTxnID(), Timestamp: 1}
	opts := Options{Deadline: time.Second, EndDeadline: time.Second}
	return New(mtr, cpoClient, opts, counters, nil), counters
}

func TestHandle_WriteThenCommitEnd(t *testing.T) {
	server := &scriptedServer{writeStatus: dto.StatusOK, endStatus: dto.StatusOK}
	h, counters := newTestHandle(t, server)

	wr, err := h.Write(context.Background(), "orders", dto.Key("k1"), []byte("v1"), false)
	require.NoError(t, err)
	assert.True(t, wr.Status.Is2xxOK())
	assert.Equal(t, int32(1), atomic.LoadInt32(&counters.writeOps))

	er, err := h.End(context.Background(), true)
	require.NoError(t, err)
	assert.True(t, er.Committed)
	assert.Equal(t, int32(1), atomic.LoadInt32(&counters.totalTxns))
	assert.Equal(t, int32(1), atomic.LoadInt32(&counters.successfulTxns))
}

func TestHandle_AbortConflictMovesToFailed(t *testing.T) {
	server := &scriptedServer{writeStatus: dto.NewStatus(dto.CodeAbortConflict, "conflict"), endStatus: dto.StatusOK}
	h, counters := newTestHandle(t, server)

	_, err := h.Write(context.Background(), "orders", dto.Key("k1"), []byte("v1"), false)
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&counters.abortConflicts))

	// Subsequent reads must synchronously return the failed status without
	// issuing another RPC.
	rr, err := h.Read(context.Background(), "orders", dto.Key("k2"))
	require.NoError(t, err)
	assert.Equal(t, dto.CodeAbortConflict, rr.Status.Code)

	er, err := h.End(context.Background(), true)
	require.NoError(t, err)
	assert.False(t, er.Committed, "end() must force abort once Failed")
}

func TestHandle_EndWithEmptyWriteSetNeedsNoRPC(t *testing.T) {
	h, counters := newTestHandle(t, &scriptedServer{})
	er, err := h.End(context.Background(), true)
	require.NoError(t, err)
	assert.True(t, er.Committed)
	assert.Equal(t, int32(1), atomic.LoadInt32(&counters.totalTxns))
}

func TestHandle_HeartbeatFailureMovesToFailedAndStopsLoop(t *testing.T) {
	server := &scriptedServer{
		writeStatus:     dto.StatusOK,
		heartbeatStatus: dto.NewStatus(dto.CodeTransactionNotFound, "TRH gone"),
		endStatus:       dto.StatusOK,
	}
	h, counters := newTestHandle(t, server)

	_, err := h.Write(context.Background(), "orders", dto.Key("k1"), []byte("v1"), false)
	require.NoError(t, err)

	// The partition map response arms a 40ms heartbeat deadline, so the
	// loop ticks every 20ms; wait for the first heartbeat to observe the
	// failure status and move the handle to Failed.
	require.Eventually(t, func() bool {
		rr, _ := h.Read(context.Background(), "orders", dto.Key("k2"))
		return rr.Status.Code == dto.CodeTransactionNotFound
	}, time.Second, 10*time.Millisecond, "heartbeat failure should move the handle to Failed")

	// End must not deadlock disarming a heartbeat loop that already
	// signaled its own stop from within observeStatusFromHeartbeat.
	done := make(chan struct{})
	go func() {
		_, _ = h.End(context.Background(), true)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("End deadlocked disarming the heartbeat loop after a heartbeat failure transition")
	}
	// TransactionNotFound is a failure transition but not one of the two
	// counted abort reasons.
	assert.Equal(t, int32(0), atomic.LoadInt32(&counters.abortConflicts)+atomic.LoadInt32(&counters.abortTooOld))
}

func TestHandle_HeartbeatTicksOverLongTransaction(t *testing.T) {
	server := &scriptedServer{writeStatus: dto.StatusOK, heartbeatStatus: dto.StatusOK, endStatus: dto.StatusOK}
	h, counters := newTestHandle(t, server)

	_, err := h.Write(context.Background(), "orders", dto.Key("k1"), []byte("v1"), false)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&counters.heartbeats) >= 2
	}, time.Second, 10*time.Millisecond, "heartbeat should tick more than once over a long-lived transaction")

	er, err := h.End(context.Background(), true)
	require.NoError(t, err)
	assert.True(t, er.Committed)
}

func TestHandle_InvalidUseAfterEnd(t *testing.T) {
	h, _ := newTestHandle(t, &scriptedServer{})
	_, err := h.End(context.Background(), true)
	require.NoError(t, err)

	rr, err := h.Read(context.Background(), "orders", dto.Key("k1"))
	require.NoError(t, err)
	assert.Equal(t, dto.CodeInvalidUseOfHandle, rr.Status.Code)
}
