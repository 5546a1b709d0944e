package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRdmaAddressKey_DialedVsAcceptedDisjoint(t *testing.T) {
	const qp = 0x00ABCDEF

	dialed := rdmaAddressKey(qp, false)
	accepted := rdmaAddressKey(qp, true)

	assert.NotEqual(t, dialed, accepted, "dialed and accepted keys for the same QP number must not collide")
	assert.Equal(t, uint32(qp), dialed)
	assert.Equal(t, uint32(qp)<<rdmaQPShift, accepted)
}

func TestRdmaAddressKey_MasksToLow24Bits(t *testing.T) {
	key := rdmaAddressKey(0xFFFFFFFF, false)
	assert.Equal(t, uint32(rdmaQPMask), key)
}
