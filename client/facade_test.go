package client

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RejectsInvalidEndpoints(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CPO = "not-a-url"
	cfg.TCPRemotes = []string{"tcp://127.0.0.1:3000"}

	_, err := New(cfg, nil, nil)
	assert.Error(t, err)
}

func TestNew_ValidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CPO = "tcp://127.0.0.1:9000"
	cfg.TCPRemotes = []string{"tcp://127.0.0.1:3000", "tcp://127.0.0.1:3001"}

	c, err := New(cfg, nil, nil)
	require.NoError(t, err)
	assert.NotNil(t, c)

	snapshot := c.Counters()
	assert.Equal(t, uint64(0), snapshot.TotalTxns)
}
