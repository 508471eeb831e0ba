package raft

import (
	"math/rand"
	"sync"
	"time"

	"pbftchain/internal/logging"
)

// State names which of the three Raft roles a node currently holds.
type State int

const (
	Follower State = iota
	Candidate
	Leader
)

func (s State) String() string {
	switch s {
	case Follower:
		return "follower"
	case Candidate:
		return "candidate"
	case Leader:
		return "leader"
	default:
		return "unknown"
	}
}

const (
	electionTimeoutMin = 300 * time.Millisecond
	electionTimeoutMax = 600 * time.Millisecond
	heartbeatInterval  = 75 * time.Millisecond
)

// Node is one Raft participant: crash-fault-only leader election plus
// log replication, layered on the same transport.Directory peer fabric
// the pBFT engine uses. Unlike the pBFT node, election and heartbeat
// timers are intrinsic to the algorithm, so a Node owns a background
// goroutine rather than advancing purely on inbound RPCs.
type Node struct {
	id        string
	transport Transport
	quorum    int

	mu          sync.Mutex
	state       State
	currentTerm int
	votedFor    string
	leaderID    string
	log         []LogEntry // log[i] is raft index i+1
	commitIndex int
	lastApplied int
	nextIndex   map[string]int
	matchIndex  map[string]int

	resetElection chan struct{}
	stopCh        chan struct{}
	started       bool

	applyFn func(index int, command string)

	logger interface {
		Infow(string, ...interface{})
		Warnw(string, ...interface{})
	}
}

// Config bundles a Node's startup-only parameters.
type Config struct {
	ID          string
	ClusterSize int
	Transport   Transport
	// ApplyFn, if set, is invoked once per log entry as commitIndex
	// advances past it. Called without the node's lock held.
	ApplyFn func(index int, command string)
}

// NewNode constructs a Node in the Follower state with an empty log.
func NewNode(cfg Config) *Node {
	return &Node{
		id:            cfg.ID,
		transport:     cfg.Transport,
		quorum:        cfg.ClusterSize/2 + 1,
		state:         Follower,
		votedFor:      "",
		nextIndex:     make(map[string]int),
		matchIndex:    make(map[string]int),
		resetElection: make(chan struct{}, 1),
		stopCh:        make(chan struct{}),
		applyFn:       cfg.ApplyFn,
		logger:        logging.Named("raft." + cfg.ID),
	}
}

func randomElectionTimeout() time.Duration {
	span := int64(electionTimeoutMax - electionTimeoutMin)
	return electionTimeoutMin + time.Duration(rand.Int63n(span))
}

// lastLogIndexLocked and lastLogTermLocked describe the tail of the
// local log. Caller must hold n.mu. Raft log indices are 1-based; 0
// means empty.
func (n *Node) lastLogIndexLocked() int {
	return len(n.log)
}

func (n *Node) lastLogTermLocked() int {
	if len(n.log) == 0 {
		return 0
	}
	return n.log[len(n.log)-1].Term
}

func (n *Node) termAtLocked(index int) int {
	if index <= 0 || index > len(n.log) {
		return 0
	}
	return n.log[index-1].Term
}

// GetStatus returns a snapshot of this node's election/log state.
func (n *Node) GetStatus() StatusReply {
	n.mu.Lock()
	defer n.mu.Unlock()
	return StatusReply{
		NodeID:      n.id,
		State:       n.state.String(),
		CurrentTerm: n.currentTerm,
		LeaderID:    n.leaderID,
		LogLength:   len(n.log),
		CommitIndex: n.commitIndex,
	}
}

// IsLeader reports whether this node currently believes it is leader.
func (n *Node) IsLeader() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state == Leader
}

func (n *Node) nudgeElectionTimer() {
	select {
	case n.resetElection <- struct{}{}:
	default:
	}
}

// stepDownLocked reverts to Follower at a newer term observed from a
// peer. Caller must hold n.mu.
func (n *Node) stepDownLocked(term int) {
	n.state = Follower
	n.currentTerm = term
	n.votedFor = ""
}
