package dto

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatus_Classification(t *testing.T) {
	assert.True(t, StatusOK.Is2xxOK())
	assert.False(t, StatusOK.IsFailureTransition())

	abort := NewStatus(CodeAbortConflict, "conflict on key %s", "foo")
	assert.True(t, abort.IsAbortConflict())
	assert.True(t, abort.IsFailureTransition())
	assert.False(t, abort.Is4xxApplication())

	stale := NewStatus(CodeRefreshCollection, "stale partition map")
	assert.True(t, stale.IsRetryableRouting())
	assert.True(t, stale.IsStalePartitionMap())

	timeout := NewStatus(CodeTimeout, "dial timed out")
	assert.True(t, timeout.IsTransportError())

	assert.Equal(t, "status 409: conflict on key foo", abort.Error())
}
