package pbft_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pbftchain/pbft"
)

func TestNewNodeGenesisStatus(t *testing.T) {
	nodes := newCluster(4)
	status := nodes["node1"].GetStatus()

	assert.Equal(t, "node1", status.NodeID)
	assert.True(t, status.IsPrimary)
	assert.Equal(t, uint64(0), status.View)
	assert.Equal(t, uint64(0), status.ChainHeight)
	assert.Equal(t, string(pbft.ModeHonest), status.MaliciousMode)
}

func TestSetMaliciousModeRejectsUnknownMode(t *testing.T) {
	nodes := newCluster(4)
	err := nodes["node2"].SetMaliciousMode("not-a-real-mode")
	require.Error(t, err)
	assert.ErrorIs(t, err, pbft.ErrInvalidMode)
}

func TestSetMaliciousModeRoundTrip(t *testing.T) {
	nodes := newCluster(4)
	node := nodes["node2"]

	require.NoError(t, node.SetMaliciousMode(pbft.ModeSilent))
	assert.Equal(t, string(pbft.ModeSilent), node.GetStatus().MaliciousMode)

	require.NoError(t, node.SetMaliciousMode(pbft.ModeHonest))
	assert.Equal(t, string(pbft.ModeHonest), node.GetStatus().MaliciousMode)
}

func TestQuorumSizeForReferenceConfiguration(t *testing.T) {
	// N=5, f=1 => Q=3. With all five nodes honest the primary's
	// proposal gathers a quorum and reaches height 1.
	nodes := newCluster(5)
	reply, err := nodes["node1"].ClientSubmitBlock("q")
	require.NoError(t, err)
	require.True(t, reply.Accepted)

	require.True(t, waitForHeight(t, nodes["node1"], 1, time.Second))
}
