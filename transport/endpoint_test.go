package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromURL_IPv4(t *testing.T) {
	ep, err := FromURL("tcp://127.0.0.1:3000", nil)
	require.NoError(t, err)
	assert.Equal(t, "tcp", ep.Protocol())
	assert.Equal(t, "127.0.0.1", ep.Host())
	assert.Equal(t, uint32(3000), ep.Port())
	assert.Equal(t, "tcp://127.0.0.1:3000", ep.URL())
}

func TestFromURL_IPv6Canonicalization(t *testing.T) {
	ep, err := FromURL("tcp://[::1]:3000", nil)
	require.NoError(t, err)
	assert.Equal(t, "::1", ep.Host())
	assert.Equal(t, "tcp://[::1]:3000", ep.URL())

	ep2, err := FromURL("tcp://[0:0:0:0:0:0:0:1]:3000", nil)
	require.NoError(t, err)
	assert.True(t, ep.Equal(ep2), "expanded and compressed IPv6 forms must canonicalize equal")
}

func TestFromURL_Errors(t *testing.T) {
	_, err := FromURL("not-a-url", nil)
	assert.Error(t, err)

	_, err = FromURL("tcp://", nil)
	assert.Error(t, err)

	_, err = FromURL("tcp://host:notaport", nil)
	assert.Error(t, err)
}

func TestEndpoint_EqualityIsURLBased(t *testing.T) {
	a, err := FromURL("tcp://10.0.0.1:3000", nil)
	require.NoError(t, err)
	b, err := FromURL("tcp://10.0.0.1:3000", nil)
	require.NoError(t, err)
	c, err := FromURL("tcp://10.0.0.1:3001", nil)
	require.NoError(t, err)

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.Equal(t, a.Hash(), b.Hash())
}

func TestEndpoint_NewPayloadRequiresAllocator(t *testing.T) {
	ep, err := FromURL("tcp://10.0.0.1:3000", nil)
	require.NoError(t, err)
	assert.False(t, ep.CanAllocate())
	assert.Panics(t, func() { ep.NewPayload() })

	allocEp := NewEndpoint("tcp", "10.0.0.1", 3000, func() *Payload { return NewPayload() })
	assert.True(t, allocEp.CanAllocate())
	p := allocEp.NewPayload()
	assert.Equal(t, MaxHeaderSize, p.Len())
}
