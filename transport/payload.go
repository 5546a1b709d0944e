package transport

// Payload is a growable send/receive buffer. It plays the role the
// original's scatter-gather Payload plays for RDMA sends: callers write
// into it via Write, the transport reads the accumulated bytes via Bytes,
// and skip() reserves header room up front so a protocol implementation
// can fill in a length-prefixed header without re-copying the body.
type Payload struct {
	buf []byte
}

// NewPayload allocates an empty payload. Production code goes through
// Endpoint.NewPayload so the MaxHeaderSize skip happens uniformly; this
// constructor exists for tests and for protocols receiving bytes off the
// wire that don't need the skip.
func NewPayload() *Payload {
	return &Payload{}
}

func (p *Payload) skip(n int) {
	p.buf = append(p.buf, make([]byte, n)...)
}

// Write appends b to the payload, implementing io.Writer so msgpack (or
// any other encoder) can serialize directly into it.
func (p *Payload) Write(b []byte) (int, error) {
	p.buf = append(p.buf, b...)
	return len(b), nil
}

// Bytes returns the payload's full accumulated contents, header region
// included.
func (p *Payload) Bytes() []byte { return p.buf }

// Body returns the payload's contents past the first headerLen bytes, the
// portion a protocol's wire encoding considers the message body.
func (p *Payload) Body(headerLen int) []byte {
	if headerLen >= len(p.buf) {
		return nil
	}
	return p.buf[headerLen:]
}

// Len reports the total number of bytes currently in the payload.
func (p *Payload) Len() int { return len(p.buf) }

// FromBytes wraps an existing byte slice as a Payload without copying,
// used when a channel implementation hands received bytes upward.
func FromBytes(b []byte) *Payload {
	return &Payload{buf: b}
}
