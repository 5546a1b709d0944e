// Package cpo implements the client side of the control-plane/placement
// oracle protocol: collection metadata and partition map caching, and the
// routing primitive every verb-specific request (read, write, heartbeat,
// end) is sent through.
package cpo

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/sync/singleflight"

	"github.com/chogori-io/k2go/dto"
	"github.com/chogori-io/k2go/transport"
)

// maxRoutingRetries bounds how many routing attempts PartitionRequest makes
// in total, so a request whose routing turned out to be stale is refreshed
// and retried at most maxRoutingRetries-1 (two) times, per spec (">= 2").
const maxRoutingRetries = 3

// CollectionEntry is the cached state for one collection: its server-
// assigned metadata and its current partition map.
type CollectionEntry struct {
	Metadata     dto.CollectionMetadata
	PartitionMap dto.PartitionMap
}

// Client caches collection metadata and partition maps fetched from the
// placement oracle, and exposes PartitionRequest as the one routing
// primitive every higher-level verb call goes through.
type Client struct {
	log        *logrus.Entry
	dispatcher *transport.ProtocolDispatcher
	oracle     transport.Endpoint

	mu          sync.RWMutex
	collections map[string]*CollectionEntry

	refreshGroup singleflight.Group
}

// NewClient constructs a Client that talks to the placement oracle at
// oracle via dispatcher.
func NewClient(dispatcher *transport.ProtocolDispatcher, oracle transport.Endpoint, log *logrus.Entry) *Client {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Client{
		log:         log.WithField("component", "cpo"),
		dispatcher:  dispatcher,
		oracle:      oracle,
		collections: make(map[string]*CollectionEntry),
	}
}

// CreateCollection asks the oracle to create a new collection, populating
// the local cache on success.
func (c *Client) CreateCollection(ctx context.Context, name string, metadata dto.CollectionMetadata, rangeSplits []dto.Key, deadline time.Duration) (dto.Status, error) {
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	req := dto.CreateCollectionRequest{CollectionName: name, Metadata: metadata, RangeSplits: rangeSplits}
	resp, err := callOracle[dto.CreateCollectionRequest, dto.CreateCollectionResponse](ctx, c, dto.VerbCreateCollection, req)
	if err != nil {
		return dto.Status{}, err
	}
	if resp.Status.Is2xxOK() {
		mapResp, err := c.fetchPartitionMap(ctx, name)
		if err == nil {
			c.store(name, mapResp)
		}
	}
	return resp.Status, nil
}

// GetPartitionMap returns the cached entry for name, fetching it from the
// oracle on a cache miss.
func (c *Client) GetPartitionMap(ctx context.Context, name string, deadline time.Duration) (*CollectionEntry, dto.Status, error) {
	c.mu.RLock()
	entry, ok := c.collections[name]
	c.mu.RUnlock()
	if ok {
		return entry, dto.StatusOK, nil
	}

	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	resp, err := c.fetchPartitionMap(ctx, name)
	if err != nil {
		return nil, dto.Status{}, err
	}
	if !resp.Status.Is2xxOK() {
		return nil, resp.Status, nil
	}
	entry = c.store(name, resp)
	return entry, dto.StatusOK, nil
}

// fetchPartitionMap fetches name's partition map from the oracle,
// collapsing concurrent fetches for the same name into one oracle round
// trip via singleflight — the Go-idiomatic replacement for a hand-rolled
// "one refresh in flight" coordinator.
func (c *Client) fetchPartitionMap(ctx context.Context, name string) (dto.GetPartitionMapResponse, error) {
	v, err, _ := c.refreshGroup.Do(name, func() (any, error) {
		req := dto.GetPartitionMapRequest{CollectionName: name}
		return callOracle[dto.GetPartitionMapRequest, dto.GetPartitionMapResponse](ctx, c, dto.VerbGetPartitionMap, req)
	})
	if err != nil {
		return dto.GetPartitionMapResponse{}, err
	}
	return v.(dto.GetPartitionMapResponse), nil
}

func (c *Client) store(name string, resp dto.GetPartitionMapResponse) *CollectionEntry {
	resp.Collection.PartitionMap.Sort()
	entry := &CollectionEntry{
		Metadata:     resp.Collection.Metadata,
		PartitionMap: resp.Collection.PartitionMap,
	}
	c.mu.Lock()
	c.collections[name] = entry
	c.mu.Unlock()
	return entry
}

func (c *Client) invalidate(name string) {
	c.mu.Lock()
	delete(c.collections, name)
	c.mu.Unlock()
}

// StatusError wraps a Status raised locally by the routing primitive
// itself — a deadline expiring, a cache lookup failing, routing retries
// exhausted — as opposed to a Status that arrived in a server response
// (which callers read off the typed Resp's GetStatus()).
type StatusError struct {
	Status dto.Status
}

func (e *StatusError) Error() string { return e.Status.Error() }

// PartitionRequest is the central routing primitive: it resolves req's
// routing key to an owning partition via the cached map, dispatches it to
// that partition's endpoint, and reacts to the four response classes the
// protocol distinguishes — success/application error, stale or unknown
// routing, transport timeout, and deadline expiry.
func PartitionRequest[Req dto.Keyed, Resp interface{ GetStatus() dto.Status }](
	ctx context.Context, c *Client, collection string, verb transport.Verb, req Req, deadline time.Duration,
) (Resp, error) {
	var zero Resp

	deadlineAt := time.Now().Add(deadline)
	ctx, cancel := context.WithDeadline(ctx, deadlineAt)
	defer cancel()

	for attempt := 0; attempt < maxRoutingRetries; attempt++ {
		if time.Now().After(deadlineAt) {
			return zero, &StatusError{Status: dto.NewStatus(dto.CodeDeadlineExceeded, "routing deadline exceeded")}
		}

		entry, status, err := c.GetPartitionMap(ctx, collection, time.Until(deadlineAt))
		if err != nil {
			return zero, err
		}
		if !status.Is2xxOK() {
			return zero, &StatusError{Status: status}
		}

		key, _ := req.RoutingKey()
		assignment, found := entry.PartitionMap.FindOwner(key)
		if !found {
			c.invalidate(collection)
			continue
		}

		// Stamp the resolved partition's version id onto the outgoing
		// request (spec §4.4 step 2; original's PartitionRequest fills in
		// dto::Partition::PVID() the same way).
		stamped, ok := req.WithPVID(assignment.PVID).(Req)
		if !ok {
			return zero, errors.Errorf("%T.WithPVID returned unexpected type", req)
		}

		resp, err := sendToEndpoint[Req, Resp](ctx, c.dispatcher, assignment.Endpoint, verb, stamped)
		if err != nil {
			if time.Now().Before(deadlineAt) {
				resp, err = sendToEndpoint[Req, Resp](ctx, c.dispatcher, assignment.Endpoint, verb, stamped)
			}
			if err != nil {
				if !time.Now().Before(deadlineAt) {
					return zero, &StatusError{Status: dto.NewStatus(dto.CodeDeadlineExceeded, "routing deadline exceeded")}
				}
				return zero, errors.Wrap(err, "partition request transport failure")
			}
		}

		if resp.GetStatus().IsRetryableRouting() {
			c.invalidate(collection)
			continue
		}
		return resp, nil
	}
	return zero, &StatusError{Status: dto.NewStatus(dto.CodeRefreshCollection, "exhausted routing retries")}
}

func sendToEndpoint[Req dto.Keyed, Resp interface{ GetStatus() dto.Status }](
	ctx context.Context, dispatcher *transport.ProtocolDispatcher, endpoint transport.Endpoint, verb transport.Verb, req Req,
) (Resp, error) {
	var zero Resp

	// Endpoints decoded from a partition map carry no allocator; attach one
	// before allocating the request payload.
	if !endpoint.CanAllocate() {
		endpoint = transport.NewEndpoint(endpoint.Protocol(), endpoint.Host(), endpoint.Port(), func() *transport.Payload { return transport.NewPayload() })
	}
	payload := endpoint.NewPayload()
	if err := msgpack.NewEncoder(payload).Encode(req); err != nil {
		return zero, errors.Wrap(err, "encoding request")
	}

	replyCh := make(chan Resp, 1)
	errCh := make(chan error, 1)

	dispatcher.SetMessageObserver(func(gotVerb transport.Verb, payload *transport.Payload, replyTo transport.Endpoint) {
		if gotVerb != verb {
			return
		}
		var resp Resp
		if err := msgpack.Unmarshal(payload.Bytes(), &resp); err != nil {
			errCh <- err
			return
		}
		replyCh <- resp
	})

	if err := dispatcher.Send(ctx, endpoint, verb, payload); err != nil {
		return zero, err
	}

	select {
	case resp := <-replyCh:
		return resp, nil
	case err := <-errCh:
		return zero, err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func callOracle[Req dto.Keyed, Resp interface{ GetStatus() dto.Status }](ctx context.Context, c *Client, verb transport.Verb, req Req) (Resp, error) {
	return sendToEndpoint[Req, Resp](ctx, c.dispatcher, c.oracle, verb, req)
}
