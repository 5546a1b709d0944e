package transport

import (
	"context"
	"errors"
)

// Verb identifies the meaning of a message independent of its payload
// encoding; it is threaded through the wire header so the receiving side
// can dispatch to the right handler without peeking at the body.
type Verb uint8

// MessageObserver is invoked for every inbound message a Channel receives,
// keyed by the Verb in its header. ProtocolDispatcher installs one on each
// channel when it dials it, forwarding every message to the dispatcher's
// current observer.
type MessageObserver func(verb Verb, payload *Payload, replyTo Endpoint)

// FailureObserver is invoked once, at most, when a Channel transitions to
// closed — either gracefully or due to a transport error. err is nil on a
// graceful close the local side initiated.
type FailureObserver func(err error)

// ErrChannelClosed is returned by Send once a Channel has observed its
// failure or had GracefulClose called.
var ErrChannelClosed = errors.New("transport: channel closed")

// Channel is the capability set every protocol implementation (tcp, rdma,
// ...) exposes uniformly to the dispatcher: send a verb-tagged payload,
// register callbacks for inbound messages and failure, and close.
//
// A Channel is always addressed at one remote Endpoint; the dispatcher
// keeps at most one live Channel per endpoint (see ProtocolDispatcher).
type Channel interface {
	// Send transmits payload tagged with verb to the channel's remote
	// endpoint. Send does not block on a reply; request/response pairing
	// is a caller concern layered on top via MessageObserver.
	Send(ctx context.Context, verb Verb, payload *Payload) error

	// SetMessageObserver installs the callback invoked for every message
	// this channel receives. Must be called before the channel is handed
	// to callers that might race inbound traffic against the first Send.
	SetMessageObserver(observer MessageObserver)

	// SetFailureObserver installs the callback invoked once when the
	// channel's connection is lost or closed.
	SetFailureObserver(observer FailureObserver)

	// GracefulClose flushes any pending sends and closes the underlying
	// connection, invoking the failure observer with a nil error.
	GracefulClose(ctx context.Context) error

	// Endpoint reports the remote endpoint this channel is bound to.
	Endpoint() Endpoint
}

// Dialer constructs a Channel connected to endpoint, used by a
// ProtocolDispatcher to lazily create channels on first send.
type Dialer interface {
	Dial(ctx context.Context, endpoint Endpoint) (Channel, error)
}
