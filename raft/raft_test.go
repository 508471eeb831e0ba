package raft_test

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pbftchain/raft"
)

// fakeTransport dispatches RequestVote/AppendEntries directly between
// in-process nodes, the same role transport.Directory plays over
// net/rpc in production.
type fakeTransport struct {
	selfID  string
	peerIDs []string

	mu      sync.RWMutex
	cluster map[string]*raft.Node
}

func (f *fakeTransport) setCluster(c map[string]*raft.Node) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cluster = c
}

func (f *fakeTransport) PeerIDs() []string {
	return f.peerIDs
}

func (f *fakeTransport) Send(peerID, serviceMethod string, args, reply interface{}) error {
	f.mu.RLock()
	node, ok := f.cluster[peerID]
	f.mu.RUnlock()
	if !ok {
		return fmt.Errorf("unknown peer %q", peerID)
	}

	switch serviceMethod {
	case raft.MethodRequestVote:
		out := node.HandleRequestVote(args.(raft.RequestVoteArgs))
		*reply.(*raft.RequestVoteReply) = out
	case raft.MethodAppendEntries:
		out := node.HandleAppendEntries(args.(raft.AppendEntriesArgs))
		*reply.(*raft.AppendEntriesReply) = out
	default:
		return fmt.Errorf("unknown method %q", serviceMethod)
	}
	return nil
}

func newCluster(t *testing.T, n int) (map[string]*raft.Node, map[string]*fakeTransport) {
	t.Helper()

	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("node%d", i+1)
	}

	transports := make(map[string]*fakeTransport, n)
	nodes := make(map[string]*raft.Node, n)
	for _, id := range ids {
		peers := make([]string, 0, n-1)
		for _, other := range ids {
			if other != id {
				peers = append(peers, other)
			}
		}
		tr := &fakeTransport{selfID: id, peerIDs: peers}
		transports[id] = tr
		nodes[id] = raft.NewNode(raft.Config{ID: id, ClusterSize: n, Transport: tr})
	}
	for _, tr := range transports {
		tr.setCluster(nodes)
	}
	return nodes, transports
}

func startAll(nodes map[string]*raft.Node) {
	for _, n := range nodes {
		n.Start()
	}
}

func stopAll(nodes map[string]*raft.Node) {
	for _, n := range nodes {
		n.Stop()
	}
}

func waitForLeader(t *testing.T, nodes map[string]*raft.Node, timeout time.Duration) *raft.Node {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		for _, n := range nodes {
			if n.IsLeader() {
				return n
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	return nil
}

func TestElectsExactlyOneLeader(t *testing.T) {
	nodes, _ := newCluster(t, 5)
	startAll(nodes)
	defer stopAll(nodes)

	leader := waitForLeader(t, nodes, 3*time.Second)
	require.NotNil(t, leader, "expected a leader to be elected")

	count := 0
	for _, n := range nodes {
		if n.IsLeader() {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestAppendCommandReplicatesAndCommits(t *testing.T) {
	nodes, _ := newCluster(t, 3)
	startAll(nodes)
	defer stopAll(nodes)

	leader := waitForLeader(t, nodes, 3*time.Second)
	require.NotNil(t, leader)

	index, term, err := leader.AppendCommand("set x=1")
	require.NoError(t, err)
	assert.Equal(t, 1, index)
	assert.Positive(t, term)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		allCommitted := true
		for _, n := range nodes {
			if n.GetStatus().CommitIndex < 1 {
				allCommitted = false
			}
		}
		if allCommitted {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	for id, n := range nodes {
		assert.GreaterOrEqualf(t, n.GetStatus().CommitIndex, 1, "node %s did not commit", id)
	}
}

func TestNonLeaderRejectsAppendCommand(t *testing.T) {
	nodes, _ := newCluster(t, 3)
	startAll(nodes)
	defer stopAll(nodes)

	leader := waitForLeader(t, nodes, 3*time.Second)
	require.NotNil(t, leader)

	for id, n := range nodes {
		if n == leader {
			continue
		}
		_, _, err := n.AppendCommand("should fail")
		assert.ErrorIsf(t, err, raft.ErrNotLeader, "node %s", id)
	}
}
