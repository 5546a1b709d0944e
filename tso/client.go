// Package tso implements the client side of the timestamp oracle protocol:
// acquiring a totally ordered, monotonic Timestamp for each new
// transaction without round-tripping to the oracle on every call.
package tso

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/chogori-io/k2go/dto"
	"github.com/chogori-io/k2go/transport"
)

// batchSize is how many timestamps the client requests from the oracle in
// one round trip. The oracle guarantees the returned range is exclusively
// owned by this client, so every value in it can be handed out locally
// without a further call.
const batchSize = 1000

const (
	initialBackoff = 20 * time.Millisecond
	maxBackoff     = 2 * time.Second
	maxAttempts    = 5
)

// Client hands out monotonically increasing Timestamps, batching oracle
// round trips behind a local counter. A single Client is meant to be
// shared by every transaction handle created on a shard; callers combine
// it with other shard state on their own, mirroring the single-threaded
// shard model the original assumes (see Design Note in package client).
type Client struct {
	log        *logrus.Entry
	dispatcher *transport.ProtocolDispatcher
	oracle     transport.Endpoint

	mu   sync.Mutex
	next dto.Timestamp
	end  dto.Timestamp // one past the last timestamp currently reserved.
}

// NewClient constructs a Client that fetches batches from oracle via
// dispatcher.
func NewClient(dispatcher *transport.ProtocolDispatcher, oracle transport.Endpoint, log *logrus.Entry) *Client {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Client{
		log:        log.WithField("component", "tso"),
		dispatcher: dispatcher,
		oracle:     oracle,
	}
}

// GetTimestamp returns the next timestamp in monotonic issuance order,
// fetching a fresh batch from the oracle when the local reservation is
// exhausted.
func (c *Client) GetTimestamp(ctx context.Context) (dto.Timestamp, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.next >= c.end {
		if err := c.fetchBatchLocked(ctx); err != nil {
			return 0, err
		}
	}
	ts := c.next
	c.next++
	return ts, nil
}

func (c *Client) fetchBatchLocked(ctx context.Context) error {
	req := dto.GetTimestampBatchRequest{Count: batchSize}

	var resp dto.GetTimestampBatchResponse
	backoff := initialBackoff
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			jittered := time.Duration(rand.Int63n(int64(backoff)))
			select {
			case <-time.After(jittered):
			case <-ctx.Done():
				return ctx.Err()
			}
			if backoff < maxBackoff {
				backoff *= 2
			}
		}

		var err error
		resp, err = c.call(ctx, req)
		if err == nil && resp.Status.Is2xxOK() {
			lastErr = nil
			break
		}
		if err != nil {
			lastErr = err
			c.log.WithError(err).WithField("attempt", attempt).Warn("timestamp batch request failed, retrying")
			continue
		}
		lastErr = errors.Wrap(resp.Status, "timestamp oracle rejected batch request")
		if !resp.Status.IsTransportError() {
			return lastErr
		}
		c.log.WithField("status", resp.Status).WithField("attempt", attempt).Warn("timestamp batch request retrying")
	}
	if lastErr != nil {
		return lastErr
	}

	c.next = resp.Start
	c.end = resp.Start + dto.Timestamp(resp.Count)
	return nil
}

func (c *Client) call(ctx context.Context, req dto.GetTimestampBatchRequest) (dto.GetTimestampBatchResponse, error) {
	payload := c.oracle.NewPayload()
	if err := msgpack.NewEncoder(payload).Encode(req); err != nil {
		return dto.GetTimestampBatchResponse{}, errors.Wrap(err, "encoding timestamp batch request")
	}

	replyCh := make(chan dto.GetTimestampBatchResponse, 1)
	errCh := make(chan error, 1)

	c.dispatcher.SetMessageObserver(func(verb transport.Verb, payload *transport.Payload, replyTo transport.Endpoint) {
		if verb != dto.VerbGetTimestampBatch {
			return
		}
		var resp dto.GetTimestampBatchResponse
		if err := msgpack.Unmarshal(payload.Bytes(), &resp); err != nil {
			errCh <- err
			return
		}
		replyCh <- resp
	})

	if err := c.dispatcher.Send(ctx, c.oracle, dto.VerbGetTimestampBatch, payload); err != nil {
		return dto.GetTimestampBatchResponse{}, err
	}

	select {
	case resp := <-replyCh:
		return resp, nil
	case err := <-errCh:
		return dto.GetTimestampBatchResponse{}, err
	case <-ctx.Done():
		return dto.GetTimestampBatchResponse{}, ctx.Err()
	}
}
