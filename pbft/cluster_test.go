package pbft_test

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pbftchain/pbft"
	"pbftchain/transport"
)

// fakeTransport dispatches Broadcast/Send directly into sibling nodes'
// exported handlers, in a goroutine per peer, so the three-phase
// protocol can be driven end to end without opening real sockets.
type fakeTransport struct {
	selfID  string
	peerIDs []string

	mu      sync.RWMutex
	cluster map[string]*pbft.Node
}

func newFakeTransport(selfID string, peerIDs []string) *fakeTransport {
	return &fakeTransport{
		selfID:  selfID,
		peerIDs: peerIDs,
		cluster: make(map[string]*pbft.Node),
	}
}

func (f *fakeTransport) setCluster(cluster map[string]*pbft.Node) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cluster = cluster
}

func (f *fakeTransport) PeerIDs() []string {
	out := make([]string, len(f.peerIDs))
	copy(out, f.peerIDs)
	return out
}

func (f *fakeTransport) Send(peerID, method string, args, reply interface{}) error {
	f.mu.RLock()
	node, ok := f.cluster[peerID]
	f.mu.RUnlock()
	if !ok {
		return fmt.Errorf("fake transport: unknown peer %q", peerID)
	}
	return dispatch(node, method, args, reply)
}

func (f *fakeTransport) Broadcast(method string, args interface{}) []transport.BroadcastResult {
	ids := f.PeerIDs()
	results := make([]transport.BroadcastResult, len(ids))

	var wg sync.WaitGroup
	wg.Add(len(ids))
	for i, id := range ids {
		go func(i int, id string) {
			defer wg.Done()
			var ack pbft.Ack
			err := f.Send(id, method, args, &ack)
			results[i] = transport.BroadcastResult{PeerID: id, Err: err}
		}(i, id)
	}
	wg.Wait()
	return results
}

func dispatch(node *pbft.Node, method string, args, reply interface{}) error {
	switch method {
	case pbft.MethodPrePrepare:
		a := args.(pbft.PrePrepareArgs)
		err := node.HandlePrePrepare(a)
		if r, ok := reply.(*pbft.Ack); ok {
			*r = pbft.Ack{OK: err == nil}
		}
		return err
	case pbft.MethodPrepare:
		a := args.(pbft.VoteArgs)
		err := node.HandlePrepare(a)
		if r, ok := reply.(*pbft.Ack); ok {
			*r = pbft.Ack{OK: err == nil}
		}
		return err
	case pbft.MethodCommit:
		a := args.(pbft.VoteArgs)
		err := node.HandleCommit(a)
		if r, ok := reply.(*pbft.Ack); ok {
			*r = pbft.Ack{OK: err == nil}
		}
		return err
	default:
		return fmt.Errorf("fake transport: unknown method %q", method)
	}
}

// newCluster wires N nodes (node1..nodeN), node1 as primary, each
// talking to the others through a fakeTransport.
func newCluster(n int) map[string]*pbft.Node {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("node%d", i+1)
	}

	nodes := make(map[string]*pbft.Node, n)
	transports := make(map[string]*fakeTransport, n)

	for _, id := range ids {
		var peers []string
		for _, other := range ids {
			if other != id {
				peers = append(peers, other)
			}
		}
		ft := newFakeTransport(id, peers)
		transports[id] = ft
		nodes[id] = pbft.NewNode(pbft.Config{
			ID:          id,
			PrimaryID:   "node1",
			ClusterSize: n,
			Transport:   ft,
		})
	}
	for _, ft := range transports {
		ft.setCluster(nodes)
	}
	return nodes
}

func waitForHeight(t *testing.T, node *pbft.Node, height uint64, timeout time.Duration) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if node.GetStatus().ChainHeight >= height {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return node.GetStatus().ChainHeight >= height
}

func TestHappyPath(t *testing.T) {
	nodes := newCluster(5)
	primary := nodes["node1"]

	reply, err := primary.ClientSubmitBlock("hello")
	require.NoError(t, err)
	assert.True(t, reply.Accepted)
	assert.Equal(t, uint64(1), reply.BlockHeight)

	for id, node := range nodes {
		require.True(t, waitForHeight(t, node, 1, time.Second), "node %s never reached height 1", id)
		chain := node.GetBlockchain()
		require.Len(t, chain, 2)
		assert.Equal(t, "hello", chain[1].Data)
		assert.Equal(t, uint64(1), chain[1].BlockHeight)
		assert.Equal(t, chain[0].BlockHash, chain[1].PreviousHash)
		assert.Equal(t, pbft.Digest("hello", chain[0].BlockHash, 1), chain[1].BlockHash)
	}
}

func TestAgreementAcrossHonestNodes(t *testing.T) {
	nodes := newCluster(5)
	primary := nodes["node1"]

	_, err := primary.ClientSubmitBlock("x")
	require.NoError(t, err)

	for _, node := range nodes {
		require.True(t, waitForHeight(t, node, 1, time.Second))
	}

	var reference []pbft.Block
	for id, node := range nodes {
		chain := node.GetBlockchain()
		if reference == nil {
			reference = chain
		}
		assert.Equal(t, reference, chain, "node %s diverged from the first node checked", id)
	}
}

func TestOneSilentReplica(t *testing.T) {
	nodes := newCluster(5)
	require.NoError(t, nodes["node3"].SetMaliciousMode(pbft.ModeSilent))

	_, err := nodes["node1"].ClientSubmitBlock("x")
	require.NoError(t, err)

	for _, id := range []string{"node1", "node2", "node4", "node5"} {
		require.True(t, waitForHeight(t, nodes[id], 1, time.Second), "node %s should have committed", id)
	}
	assert.Equal(t, uint64(0), nodes["node3"].GetStatus().ChainHeight)
}

func TestOneWrongHashReplica(t *testing.T) {
	nodes := newCluster(5)
	require.NoError(t, nodes["node2"].SetMaliciousMode(pbft.ModeWrongHash))

	_, err := nodes["node1"].ClientSubmitBlock("y")
	require.NoError(t, err)

	for _, id := range []string{"node1", "node3", "node4", "node5"} {
		require.True(t, waitForHeight(t, nodes[id], 1, time.Second), "node %s should have committed", id)
	}

	var reference []pbft.Block
	for _, id := range []string{"node1", "node3", "node4", "node5"} {
		chain := nodes[id].GetBlockchain()
		if reference == nil {
			reference = chain
		}
		assert.Equal(t, reference, chain)
	}
}

func TestTwoByzantineNodesSafetyBoundary(t *testing.T) {
	nodes := newCluster(5)
	require.NoError(t, nodes["node2"].SetMaliciousMode(pbft.ModeSilent))
	require.NoError(t, nodes["node3"].SetMaliciousMode(pbft.ModeWrongHash))

	_, err := nodes["node1"].ClientSubmitBlock("z")
	require.NoError(t, err)

	for _, id := range []string{"node1", "node4", "node5"} {
		require.True(t, waitForHeight(t, nodes[id], 1, time.Second), "node %s should have committed", id)
	}
}

func TestThreeByzantineNodesLivenessViolation(t *testing.T) {
	nodes := newCluster(5)
	require.NoError(t, nodes["node2"].SetMaliciousMode(pbft.ModeSilent))
	require.NoError(t, nodes["node3"].SetMaliciousMode(pbft.ModeWrongHash))
	require.NoError(t, nodes["node4"].SetMaliciousMode(pbft.ModeSilent))

	_, err := nodes["node1"].ClientSubmitBlock("w")
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, uint64(0), nodes["node1"].GetStatus().ChainHeight)
	assert.Equal(t, uint64(0), nodes["node5"].GetStatus().ChainHeight)
}

func TestNonPrimaryRejectsClientSubmit(t *testing.T) {
	nodes := newCluster(5)
	reply, err := nodes["node2"].ClientSubmitBlock("nope")
	require.Error(t, err)
	assert.False(t, reply.Accepted)
	assert.Equal(t, "node1", reply.PrimaryID)
}

func TestEquivocationDetection(t *testing.T) {
	nodes := newCluster(5)
	replica := nodes["node2"]

	first := pbft.MakeBlock("a", pbft.GenesisBlock().BlockHash, 1, 0, 0, time.Now())
	second := pbft.MakeBlock("b", pbft.GenesisBlock().BlockHash, 1, 0, 0, time.Now())

	require.NoError(t, replica.HandlePrePrepare(pbft.PrePrepareArgs{View: 0, Seq: 0, Block: first, Sender: "node1"}))
	err := replica.HandlePrePrepare(pbft.PrePrepareArgs{View: 0, Seq: 0, Block: second, Sender: "node1"})
	require.ErrorIs(t, err, pbft.ErrEquivocation)

	chain := replica.GetBlockchain()
	assert.Equal(t, uint64(0), chain[len(chain)-1].BlockHeight)
}

func TestDuplicateDeliveryIsIdempotent(t *testing.T) {
	nodes := newCluster(5)
	replica := nodes["node2"]

	block := pbft.MakeBlock("dup", pbft.GenesisBlock().BlockHash, 1, 0, 0, time.Now())
	args := pbft.PrePrepareArgs{View: 0, Seq: 0, Block: block, Sender: "node1"}

	require.NoError(t, replica.HandlePrePrepare(args))
	require.NoError(t, replica.HandlePrePrepare(args))

	vote := pbft.VoteArgs{View: 0, Seq: 0, Digest: block.BlockHash, Sender: "node3"}
	require.NoError(t, replica.HandlePrepare(vote))
	require.NoError(t, replica.HandlePrepare(vote))
}
