package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// ProtocolDispatcher is the transport's top-level object: a scheme-keyed
// registry of Dialers, and a cache of at most one live Channel per
// endpoint. Callers never construct a Channel directly; they call Send
// against a ProtocolDispatcher and let it lazily dial and memoize the
// channel. It has no Start and no listener: channels are only dialed,
// never accepted.
type ProtocolDispatcher struct {
	log *logrus.Entry

	mu       sync.RWMutex
	dialers  map[string]Dialer
	channels map[string]Channel // keyed by Endpoint.URL()

	onMessage MessageObserver

	metrics *metrics
}

// NewProtocolDispatcher constructs a dispatcher with the built-in "tcp"
// and "rdma" schemes registered. registerer may be nil to skip metrics
// registration (tests construct dispatchers freely and would otherwise
// collide on prometheus's default registry).
func NewProtocolDispatcher(log *logrus.Entry, registerer prometheus.Registerer) *ProtocolDispatcher {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	d := &ProtocolDispatcher{
		log:      log,
		dialers:  make(map[string]Dialer),
		channels: make(map[string]Channel),
		metrics:  newMetrics(registerer),
	}
	d.RegisterDialer("tcp", newTCPDialer(log))
	d.RegisterDialer("rdma", newRDMADialer(log))
	return d
}

// RegisterDialer installs the Dialer responsible for scheme. Registering
// under an already-registered scheme replaces it; existing channels for
// that scheme are unaffected.
func (d *ProtocolDispatcher) RegisterDialer(scheme string, dialer Dialer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dialers[scheme] = dialer
}

// SetMessageObserver installs the callback every channel this dispatcher
// owns will deliver inbound messages to. Must be set before the first
// Send to avoid missing early replies.
func (d *ProtocolDispatcher) SetMessageObserver(observer MessageObserver) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onMessage = observer
}

// Send transmits payload tagged with verb to endpoint, dialing and
// caching a channel for it on first use.
func (d *ProtocolDispatcher) Send(ctx context.Context, endpoint Endpoint, verb Verb, payload *Payload) error {
	channel, err := d.channelFor(ctx, endpoint)
	if err != nil {
		return err
	}
	if err := channel.Send(ctx, verb, payload); err != nil {
		return err
	}
	d.metrics.messagesSent.WithLabelValues(endpoint.Protocol()).Inc()
	d.metrics.bytesSent.WithLabelValues(endpoint.Protocol()).Add(float64(payload.Len()))
	return nil
}

func (d *ProtocolDispatcher) channelFor(ctx context.Context, endpoint Endpoint) (Channel, error) {
	d.mu.RLock()
	channel, ok := d.channels[endpoint.URL()]
	d.mu.RUnlock()
	if ok {
		return channel, nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	// Re-check under the write lock: another goroutine may have dialed
	// while we waited for it.
	if channel, ok := d.channels[endpoint.URL()]; ok {
		return channel, nil
	}

	dialer, ok := d.dialers[endpoint.Protocol()]
	if !ok {
		return nil, fmt.Errorf("transport: no dialer registered for scheme %q", endpoint.Protocol())
	}

	channel, err := dialer.Dial(ctx, endpoint)
	if err != nil {
		d.metrics.dialFailures.WithLabelValues(endpoint.Protocol()).Inc()
		return nil, err
	}
	// Route through a trampoline rather than handing the channel d.onMessage
	// directly: the observer can be replaced after this channel is cached
	// (each verb-specific call installs its own), so every delivery must
	// read the dispatcher's current observer rather than the one in effect
	// at dial time.
	channel.SetMessageObserver(func(verb Verb, payload *Payload, replyTo Endpoint) {
		d.mu.RLock()
		observer := d.onMessage
		d.mu.RUnlock()
		if observer != nil {
			observer(verb, payload, replyTo)
		}
	})
	channel.SetFailureObserver(func(err error) {
		d.forget(endpoint)
		d.metrics.channelsClosed.WithLabelValues(endpoint.Protocol()).Inc()
	})
	d.channels[endpoint.URL()] = channel
	d.metrics.channelsOpened.WithLabelValues(endpoint.Protocol()).Inc()
	return channel, nil
}

func (d *ProtocolDispatcher) forget(endpoint Endpoint) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.channels, endpoint.URL())
}

// Stop gracefully closes every live channel, collecting and joining any
// close errors. Channels are closed concurrently, bounded by an errgroup,
// mirroring the source's collect-then-close-all teardown sequencing.
func (d *ProtocolDispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	channels := make([]Channel, 0, len(d.channels))
	for _, c := range d.channels {
		channels = append(channels, c)
	}
	d.channels = make(map[string]Channel)
	d.mu.Unlock()

	g, ctx := errgroup.WithContext(ctx)
	for _, c := range channels {
		c := c
		g.Go(func() error {
			return c.GracefulClose(ctx)
		})
	}
	return g.Wait()
}
