package dto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assignment(start, end string) KeyRangeAssignment {
	var endKey Key
	if end != "" {
		endKey = Key(end)
	}
	return KeyRangeAssignment{StartKey: Key(start), EndKey: endKey}
}

func TestPartitionMap_FindOwner(t *testing.T) {
	m := &PartitionMap{
		Assignments: []KeyRangeAssignment{
			assignment("", "m"),
			assignment("m", "t"),
			assignment("t", ""),
		},
	}

	owner, ok := m.FindOwner(Key("a"))
	require.True(t, ok)
	assert.Equal(t, Key(""), owner.StartKey)

	owner, ok = m.FindOwner(Key("m"))
	require.True(t, ok)
	assert.Equal(t, Key("m"), owner.StartKey)

	owner, ok = m.FindOwner(Key("zzz"))
	require.True(t, ok)
	assert.Equal(t, Key("t"), owner.StartKey)
}

func TestPartitionMap_FindOwnerEmpty(t *testing.T) {
	var m PartitionMap
	_, ok := m.FindOwner(Key("a"))
	assert.False(t, ok)
}

func TestPartitionMap_Sort(t *testing.T) {
	m := &PartitionMap{
		Assignments: []KeyRangeAssignment{
			assignment("t", ""),
			assignment("", "m"),
			assignment("m", "t"),
		},
	}
	m.Sort()
	assert.Equal(t, Key(""), m.Assignments[0].StartKey)
	assert.Equal(t, Key("m"), m.Assignments[1].StartKey)
	assert.Equal(t, Key("t"), m.Assignments[2].StartKey)
}
