package cpo

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/chogori-io/k2go/dto"
	"github.com/chogori-io/k2go/transport"
)

type fakeServer struct {
	partitionMapCalls int32
	readStatus        dto.Status
}

func (s *fakeServer) Dial(ctx context.Context, endpoint transport.Endpoint) (transport.Channel, error) {
	return &fakeChannel{server: s, endpoint: endpoint}, nil
}

type fakeChannel struct {
	server    *fakeServer
	endpoint  transport.Endpoint
	onMessage transport.MessageObserver
}

func (c *fakeChannel) Send(ctx context.Context, verb transport.Verb, payload *transport.Payload) error {
	go func() {
		switch verb {
		case dto.VerbGetPartitionMap:
			atomic.AddInt32(&c.server.partitionMapCalls, 1)
			resp := dto.GetPartitionMapResponse{
				Status: dto.StatusOK,
				Collection: dto.Collection{
					Name: "orders",
					PartitionMap: dto.PartitionMap{
						Version: 1,
						Assignments: []dto.KeyRangeAssignment{
							{StartKey: dto.Key(""), EndKey: nil, Endpoint: c.endpoint, PVID: 1},
						},
					},
				},
			}
			encoded, _ := msgpack.Marshal(resp)
			c.onMessage(verb, transport.FromBytes(encoded), c.endpoint)
		case dto.VerbK23SIRead:
			resp := dto.ReadResponse{Status: c.server.readStatus, Value: []byte("v1")}
			encoded, _ := msgpack.Marshal(resp)
			c.onMessage(verb, transport.FromBytes(encoded), c.endpoint)
		}
	}()
	return nil
}

func (c *fakeChannel) SetMessageObserver(observer transport.MessageObserver) { c.onMessage = observer }
func (c *fakeChannel) SetFailureObserver(observer transport.FailureObserver) {}
func (c *fakeChannel) GracefulClose(ctx context.Context) error              { return nil }
func (c *fakeChannel) Endpoint() transport.Endpoint                         { return c.endpoint }

func newTestClient(server *fakeServer) *Client {
	dispatcher := transport.NewProtocolDispatcher(nil, nil)
	dispatcher.RegisterDialer("tcp", server)
	oracle := transport.NewEndpoint("tcp", "127.0.0.1", 9000, func() *transport.Payload { return transport.NewPayload() })
	return NewClient(dispatcher, oracle, nil)
}

func TestGetPartitionMap_CachesAfterFirstFetch(t *testing.T) {
	server := &fakeServer{readStatus: dto.StatusOK}
	client := newTestClient(server)

	ctx := context.Background()
	_, status, err := client.GetPartitionMap(ctx, "orders", time.Second)
	require.NoError(t, err)
	require.True(t, status.Is2xxOK())

	_, _, err = client.GetPartitionMap(ctx, "orders", time.Second)
	require.NoError(t, err)

	assert.Equal(t, int32(1), atomic.LoadInt32(&server.partitionMapCalls), "second call should hit the cache")
}

func TestPartitionRequest_Success(t *testing.T) {
	server := &fakeServer{readStatus: dto.StatusOK}
	client := newTestClient(server)

	req := dto.ReadRequest{CollectionName: "orders", Key: dto.Key("k1")}
	resp, err := PartitionRequest[dto.ReadRequest, dto.ReadResponse](context.Background(), client, "orders", dto.VerbK23SIRead, req, time.Second)
	require.NoError(t, err)
	assert.True(t, resp.Status.Is2xxOK())
	assert.Equal(t, []byte("v1"), resp.Value)
}

func TestPartitionRequest_RoutingRefreshInvalidatesCache(t *testing.T) {
	server := &fakeServer{readStatus: dto.NewStatus(dto.CodeRefreshCollection, "stale")}
	client := newTestClient(server)

	req := dto.ReadRequest{CollectionName: "orders", Key: dto.Key("k1")}
	_, err := PartitionRequest[dto.ReadRequest, dto.ReadResponse](context.Background(), client, "orders", dto.VerbK23SIRead, req, 200*time.Millisecond)
	require.Error(t, err)

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, dto.CodeRefreshCollection, statusErr.Status.Code)
	assert.GreaterOrEqual(t, atomic.LoadInt32(&server.partitionMapCalls), int32(2), "should have refetched the partition map on stale routing")
}
