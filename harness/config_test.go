package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_QuorumSize(t *testing.T) {
	assert.Equal(t, 3, Config{N: 4, F: 1, C: 0}.QuorumSize())
	assert.Equal(t, 5, Config{N: 7, F: 2, C: 0}.QuorumSize())
	assert.Equal(t, 7, Config{N: 9, F: 2, C: 1}.QuorumSize())
}

func TestConfig_PrimaryOf(t *testing.T) {
	cfg := Config{N: 4, F: 1, C: 0}
	assert.Equal(t, ReplicaID(0), cfg.PrimaryOf(0))
	assert.Equal(t, ReplicaID(1), cfg.PrimaryOf(1))
	assert.Equal(t, ReplicaID(3), cfg.PrimaryOf(3))
	// Views wrap around the replica set.
	assert.Equal(t, ReplicaID(0), cfg.PrimaryOf(4))
	assert.Equal(t, ReplicaID(1), cfg.PrimaryOf(9))
}

func TestConfig_Validate(t *testing.T) {
	require.NoError(t, Config{N: 4, F: 1, C: 0}.Validate())
	require.NoError(t, Config{N: 7, F: 2, C: 0}.Validate())
	require.NoError(t, Config{N: 6, F: 1, C: 1}.Validate())

	err := Config{N: 4, F: 2, C: 0}.Validate()
	require.Error(t, err)
	assert.True(t, IsConfig(err))

	err = Config{N: 0, F: 0, C: 0}.Validate()
	require.Error(t, err)
	assert.True(t, IsConfig(err))

	err = Config{N: 4, F: -1, C: 0}.Validate()
	require.Error(t, err)
	assert.True(t, IsConfig(err))
}

func TestAllReplicas(t *testing.T) {
	assert.Equal(t, []ReplicaID{0, 1, 2, 3}, AllReplicas(4, nil))
	assert.Equal(t, []ReplicaID{1, 3}, AllReplicas(4, NewReplicaSet(0, 2)))
	assert.Empty(t, AllReplicas(2, NewReplicaSet(0, 1)))
}

func TestReplicaSet_Union(t *testing.T) {
	s := NewReplicaSet(0, 1).Union(NewReplicaSet(1, 2))
	assert.True(t, s.Contains(0))
	assert.True(t, s.Contains(1))
	assert.True(t, s.Contains(2))
	assert.False(t, s.Contains(3))
	assert.Len(t, s, 3)
}

func TestReplicaSet_ContainsNil(t *testing.T) {
	var s ReplicaSet
	assert.False(t, s.Contains(0))
}
