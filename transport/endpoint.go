// Package transport implements the RPC transport dispatch core: a
// protocol-pluggable endpoint registry, per-endpoint channel lifecycle, and
// the uniform endpoint-URL model every layer above routes through.
package transport

import (
	"fmt"
	"hash/fnv"
	"net"
	"net/url"
	"strconv"

	"github.com/vmihailenco/msgpack/v5"
)

// MaxHeaderSize is the number of bytes a Payload allocated through
// Endpoint.NewPayload is pre-skipped by, so the transport can back-fill a
// wire header without a copy.
const MaxHeaderSize = 32

// Allocator produces an empty send-buffer; Endpoint.NewPayload calls it and
// then skips MaxHeaderSize bytes.
type Allocator func() *Payload

// Endpoint is an immutable, canonically-addressable identity: protocol,
// host, port, the canonical URL they combine into, and a hash derived from
// that URL. Two Endpoints are equal iff their URLs are byte-equal after
// canonicalization.
type Endpoint struct {
	protocol  string
	host      string // canonical form: lowercase, IPv6 expanded.
	port      uint32
	url       string
	hash      uint64
	allocator Allocator
}

// FromURL parses url of the form `proto://host:port` (IPv4 or bare
// hostname) or `proto://[host]:port` (IPv6), returning a canonicalized
// Endpoint. A missing host, missing scheme, out-of-range port, or
// syntactic mismatch yields an error.
//
// net/url already implements the bracketed-host URL grammar this needs
// (IPv6 canonicalization is then a net.ParseIP round trip in
// canonicalizeHost), so this is a thin,
// validating wrapper rather than a hand-rolled parser — see DESIGN.md for
// why no third-party URL library improves on net/url here.
func FromURL(raw string, allocator Allocator) (Endpoint, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Endpoint{}, fmt.Errorf("invalid endpoint url %q: %w", raw, err)
	}
	if u.Scheme == "" {
		return Endpoint{}, fmt.Errorf("invalid endpoint url %q: missing scheme", raw)
	}
	if u.Host == "" {
		return Endpoint{}, fmt.Errorf("invalid endpoint url %q: missing host", raw)
	}

	hostPart, portPart, err := net.SplitHostPort(u.Host)
	if err != nil {
		return Endpoint{}, fmt.Errorf("invalid endpoint url %q: %w", raw, err)
	}
	if hostPart == "" {
		return Endpoint{}, fmt.Errorf("invalid endpoint url %q: missing host", raw)
	}

	port, err := strconv.ParseUint(portPart, 10, 32)
	if err != nil {
		return Endpoint{}, fmt.Errorf("invalid endpoint url %q: bad port: %w", raw, err)
	}

	host := canonicalizeHost(hostPart)
	return newEndpoint(u.Scheme, host, uint32(port), allocator), nil
}

func canonicalizeHost(host string) string {
	if ip := net.ParseIP(host); ip != nil {
		return ip.String() // lowercase, zero-compressed canonical form.
	}
	return host
}

func isIPv6(host string) bool {
	ip := net.ParseIP(host)
	return ip != nil && ip.To4() == nil
}

func newEndpoint(protocol, host string, port uint32, allocator Allocator) Endpoint {
	var rawURL string
	if isIPv6(host) {
		rawURL = fmt.Sprintf("%s://[%s]:%d", protocol, host, port)
	} else {
		rawURL = fmt.Sprintf("%s://%s:%d", protocol, host, port)
	}

	h := fnv.New64a()
	_, _ = h.Write([]byte(rawURL))

	return Endpoint{
		protocol:  protocol,
		host:      host,
		port:      port,
		url:       rawURL,
		hash:      h.Sum64(),
		allocator: allocator,
	}
}

// NewEndpoint builds an Endpoint directly from its parts, bypassing URL
// parsing. Used by protocol implementations constructing endpoints for
// accepted connections (e.g. from a peer address) rather than from a URL
// string a caller supplied.
func NewEndpoint(protocol, host string, port uint32, allocator Allocator) Endpoint {
	return newEndpoint(protocol, canonicalizeHost(host), port, allocator)
}

func (e Endpoint) Protocol() string { return e.protocol }
func (e Endpoint) Host() string     { return e.host }
func (e Endpoint) Port() uint32     { return e.port }
func (e Endpoint) URL() string      { return e.url }
func (e Endpoint) Hash() uint64     { return e.hash }
func (e Endpoint) CanAllocate() bool { return e.allocator != nil }

// Equal reports URL equality, per spec: two Endpoints are equal iff their
// canonicalized URLs are byte-equal.
func (e Endpoint) Equal(other Endpoint) bool { return e.url == other.url }

func (e Endpoint) String() string { return e.url }

// EncodeMsgpack serializes the endpoint's (protocol, host, port) triple —
// enough to reconstruct an equivalent Endpoint on the decoding side via
// newEndpoint. The url/hash fields are derived, and the allocator is a
// local-process function value, so neither travels over the wire.
func (e Endpoint) EncodeMsgpack(enc *msgpack.Encoder) error {
	return enc.EncodeMulti(e.protocol, e.host, e.port)
}

// DecodeMsgpack reconstructs an Endpoint from the wire form EncodeMsgpack
// produced. The decoded endpoint has no allocator; callers that need one
// attach it separately (the CPO client rebuilds a partition-map endpoint
// with NewEndpoint and an allocator before sending to it).
func (e *Endpoint) DecodeMsgpack(dec *msgpack.Decoder) error {
	var protocol, host string
	var port uint32
	if err := dec.DecodeMulti(&protocol, &host, &port); err != nil {
		return err
	}
	*e = newEndpoint(protocol, host, port, nil)
	return nil
}

// NewPayload allocates a payload via the endpoint's allocator, panicking if
// the endpoint cannot allocate (mirrors the source's K2ASSERT: calling this
// on a non-allocating endpoint is a programmer error, not a runtime one).
func (e Endpoint) NewPayload() *Payload {
	if e.allocator == nil {
		panic("transport: NewPayload called on a non-allocating endpoint")
	}
	p := e.allocator()
	p.skip(MaxHeaderSize)
	return p
}
