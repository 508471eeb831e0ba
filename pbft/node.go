package pbft

import (
	"fmt"
	"sync"
	"time"

	"pbftchain/internal/logging"
	"pbftchain/internal/metrics"
)

// SlotState names where one sequence number's proposal sits in the
// three-phase pipeline. It mirrors the quorum predicates rather than
// driving them: prepared_seen/committed_seen are still the source of
// truth for idempotency. The engine records a SlotState per seq, but
// GetStatus, log lines and tests do not report it.
type SlotState int

const (
	StateIdle SlotState = iota
	StatePrePrepared
	StatePrepared
	StateCommitted
	StateApplied
	StateRejected
)

func (s SlotState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePrePrepared:
		return "pre_prepared"
	case StatePrepared:
		return "prepared"
	case StateCommitted:
		return "committed"
	case StateApplied:
		return "applied"
	case StateRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Node is one pBFT replica: its chain, its per-sequence logs, and the
// single mutex region every mutation to them goes through. Peer RPC
// sends happen outside that region (see engine.go); the decision to
// send and the idempotency guards are made inside it.
type Node struct {
	ID        string
	PrimaryID string
	IsPrimary bool
	View      uint64

	transport Transport
	quorum    int // Q = 2f+1, derived from cluster size at construction

	mu            sync.Mutex
	nextSeq       uint64 // primary only: next slot to assign
	nextApplySeq  uint64 // next seq expected to be appended, independent of chain height
	chain         *Chain
	log           *MessageLog
	pendingBlocks map[uint64]Block    // seq -> proposal currently under consensus
	slotState     map[uint64]SlotState
	preparedSeen  map[seqDigest]bool
	committedSeen map[seqDigest]bool
	readyDigest   map[uint64]string // seq -> digest that reached commit quorum, awaiting apply
	mode          Mode

	onStatusChange func(StatusReply)

	logger interface {
		Infow(string, ...interface{})
		Warnw(string, ...interface{})
		Errorw(string, ...interface{})
	}
}

// Config bundles the fixed, startup-only parameters a Node needs.
type Config struct {
	ID         string
	PrimaryID  string
	ClusterSize int // N = 3f+1, including self
	Transport  Transport
}

// NewNode constructs a node at genesis, honest by default.
func NewNode(cfg Config) *Node {
	f := (cfg.ClusterSize - 1) / 3
	quorum := 2*f + 1

	return &Node{
		ID:            cfg.ID,
		PrimaryID:     cfg.PrimaryID,
		IsPrimary:     cfg.ID == cfg.PrimaryID,
		View:          0,
		transport:     cfg.Transport,
		quorum:        quorum,
		chain:         NewChain(),
		log:           NewMessageLog(),
		pendingBlocks: make(map[uint64]Block),
		slotState:     make(map[uint64]SlotState),
		preparedSeen:  make(map[seqDigest]bool),
		committedSeen: make(map[seqDigest]bool),
		readyDigest:   make(map[uint64]string),
		mode:          ModeHonest,
		logger:        logging.Named("pbft." + cfg.ID),
	}
}

func (n *Node) nowTimestamp() time.Time {
	return time.Now()
}

// snapshotStatusLocked builds a GetStatus reply; caller must hold n.mu.
func (n *Node) snapshotStatusLocked() StatusReply {
	return StatusReply{
		NodeID:        n.ID,
		View:          n.View,
		IsPrimary:     n.IsPrimary,
		ChainHeight:   n.chain.Height(),
		MaliciousMode: string(n.mode),
	}
}

// GetStatus returns the node's current view/height/mode snapshot.
func (n *Node) GetStatus() StatusReply {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.snapshotStatusLocked()
}

// GetBlockchain returns the ordered, committed chain.
func (n *Node) GetBlockchain() []Block {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.chain.Blocks()
}

// SetMaliciousMode switches the fault-injection behavior used on this
// node's outbound path. It never changes how inbound messages are
// validated.
func (n *Node) SetMaliciousMode(mode Mode) error {
	if !ValidModes[mode] {
		return fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}
	n.mu.Lock()
	n.mode = mode
	n.mu.Unlock()

	metrics.MaliciousMode.Reset()
	metrics.MaliciousMode.WithLabelValues(string(mode)).Set(1)
	n.logger.Warnw("malicious mode changed", "mode", mode)
	n.notifyStatusChange()
	return nil
}

func (n *Node) modeLocked() Mode {
	return n.mode
}

// OnStatusChange registers a listener invoked after every committed
// block and every malicious-mode change, outside the node's lock. Used
// to wire an optional status-feed push. The listener runs synchronously
// on the goroutine that applied the block or changed the mode, so that
// call returns only after the listener does.
func (n *Node) OnStatusChange(fn func(StatusReply)) {
	n.mu.Lock()
	n.onStatusChange = fn
	n.mu.Unlock()
}

// notifyStatusChange fires the registered listener, if any, with a
// fresh snapshot. Must be called without holding n.mu.
func (n *Node) notifyStatusChange() {
	n.mu.Lock()
	fn := n.onStatusChange
	status := n.snapshotStatusLocked()
	n.mu.Unlock()

	if fn != nil {
		fn(status)
	}
}
