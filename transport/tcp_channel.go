package transport

import (
	"bufio"
	"context"
	"encoding/binary"
	"io"
	"net"
	"strconv"
	"sync"

	"github.com/sirupsen/logrus"
)

// wireHeaderSize is the fixed-size prefix tcpChannel writes ahead of every
// message: a verb byte followed by a uint32 body length.
const wireHeaderSize = 5

// tcpChannel is a Channel backed by a single long-lived net.Conn, framed
// with a tiny length-prefixed header. It is the channel for the "tcp"
// scheme and the stream underneath rdmaChannel; a scheme with no
// registered Dialer gets no channel at all.
type tcpChannel struct {
	conn     net.Conn
	endpoint Endpoint
	log      *logrus.Entry

	writeMu sync.Mutex

	closeOnce sync.Once
	closed    chan struct{}

	observerMu sync.RWMutex
	onMessage  MessageObserver
	onFailure  FailureObserver
}

// newTCPChannel wraps conn, bound to the logical remote endpoint it was
// dialed to (or accepted from), and starts its inbound read loop.
func newTCPChannel(conn net.Conn, endpoint Endpoint, log *logrus.Entry) *tcpChannel {
	c := &tcpChannel{
		conn:     conn,
		endpoint: endpoint,
		log:      log.WithField("endpoint", endpoint.URL()),
		closed:   make(chan struct{}),
	}
	go c.readLoop()
	return c
}

func (c *tcpChannel) Endpoint() Endpoint { return c.endpoint }

func (c *tcpChannel) SetMessageObserver(observer MessageObserver) {
	c.observerMu.Lock()
	defer c.observerMu.Unlock()
	c.onMessage = observer
}

func (c *tcpChannel) SetFailureObserver(observer FailureObserver) {
	c.observerMu.Lock()
	defer c.observerMu.Unlock()
	c.onFailure = observer
}

func (c *tcpChannel) Send(ctx context.Context, verb Verb, payload *Payload) error {
	select {
	case <-c.closed:
		return ErrChannelClosed
	default:
	}

	body := payload.Body(MaxHeaderSize)
	header := make([]byte, wireHeaderSize)
	header[0] = byte(verb)
	binary.BigEndian.PutUint32(header[1:], uint32(len(body)))

	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetWriteDeadline(deadline)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := c.conn.Write(header); err != nil {
		c.fail(err)
		return err
	}
	if _, err := c.conn.Write(body); err != nil {
		c.fail(err)
		return err
	}
	return nil
}

func (c *tcpChannel) readLoop() {
	r := bufio.NewReader(c.conn)
	header := make([]byte, wireHeaderSize)
	for {
		if _, err := io.ReadFull(r, header); err != nil {
			c.fail(err)
			return
		}
		verb := Verb(header[0])
		bodyLen := binary.BigEndian.Uint32(header[1:])

		body := make([]byte, bodyLen)
		if _, err := io.ReadFull(r, body); err != nil {
			c.fail(err)
			return
		}

		c.observerMu.RLock()
		observer := c.onMessage
		c.observerMu.RUnlock()
		if observer != nil {
			observer(verb, FromBytes(body), c.endpoint)
		}
	}
}

func (c *tcpChannel) fail(err error) {
	c.closeOnce.Do(func() {
		close(c.closed)
		_ = c.conn.Close()
		c.observerMu.RLock()
		observer := c.onFailure
		c.observerMu.RUnlock()
		if observer != nil {
			observer(err)
		}
		if err != nil && err != io.EOF {
			c.log.WithError(err).Warn("tcp channel failed")
		}
	})
}

func (c *tcpChannel) GracefulClose(ctx context.Context) error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.conn.Close()
		c.observerMu.RLock()
		observer := c.onFailure
		c.observerMu.RUnlock()
		if observer != nil {
			observer(nil)
		}
	})
	return err
}

// tcpDialer implements Dialer over plain net.Dial, used by the
// ProtocolDispatcher registered under the "tcp" scheme.
type tcpDialer struct {
	log *logrus.Entry
}

func newTCPDialer(log *logrus.Entry) *tcpDialer {
	return &tcpDialer{log: log}
}

func (d *tcpDialer) Dial(ctx context.Context, endpoint Endpoint) (Channel, error) {
	var dialer net.Dialer
	if deadline, ok := ctx.Deadline(); ok {
		dialer.Deadline = deadline
	}
	port := strconv.FormatUint(uint64(endpoint.Port()), 10)
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(endpoint.Host(), port))
	if err != nil {
		return nil, err
	}
	return newTCPChannel(conn, endpoint, d.log), nil
}
