package raft

import (
	"sync"
	"time"
)

// Start launches the background timer loop that drives elections and,
// once leader, heartbeats. Safe to call once per Node.
func (n *Node) Start() {
	n.mu.Lock()
	if n.started {
		n.mu.Unlock()
		return
	}
	n.started = true
	n.mu.Unlock()

	go n.runTimerLoop()
}

// Stop halts the timer loop and any in-flight heartbeat goroutine.
func (n *Node) Stop() {
	close(n.stopCh)
}

// runTimerLoop is the one long-lived goroutine per node: it waits for
// either the election timeout to elapse or a reset signal (delivered
// on every valid AppendEntries/RequestVote received), and starts an
// election on timeout. A separate goroutine, started in becomeLeader,
// handles heartbeats while this node holds leadership.
func (n *Node) runTimerLoop() {
	timer := time.NewTimer(randomElectionTimeout())
	defer timer.Stop()

	for {
		select {
		case <-n.stopCh:
			return
		case <-n.resetElection:
			if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(randomElectionTimeout())
		case <-timer.C:
			n.mu.Lock()
			isLeader := n.state == Leader
			n.mu.Unlock()
			if !isLeader {
				n.startElection()
			}
			timer.Reset(randomElectionTimeout())
		}
	}
}

// startElection runs one candidacy: increment term, vote for self,
// solicit votes from every peer in parallel, and become leader if a
// quorum (including the self-vote) is reached and, once every peer has
// answered or failed, this node is still a candidate in the same term.
// The timer loop waits for this call to return.
func (n *Node) startElection() {
	n.mu.Lock()
	n.state = Candidate
	n.currentTerm++
	n.votedFor = n.id
	term := n.currentTerm
	lastIndex := n.lastLogIndexLocked()
	lastTerm := n.lastLogTermLocked()
	n.mu.Unlock()

	n.logger.Infow("starting election", "term", term)

	args := RequestVoteArgs{
		Term:         term,
		CandidateID:  n.id,
		LastLogIndex: lastIndex,
		LastLogTerm:  lastTerm,
	}

	peers := n.transport.PeerIDs()
	votes := 1 // self
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, peerID := range peers {
		wg.Add(1)
		go func(peerID string) {
			defer wg.Done()
			var reply RequestVoteReply
			if err := n.transport.Send(peerID, MethodRequestVote, args, &reply); err != nil {
				return
			}

			n.mu.Lock()
			if reply.Term > n.currentTerm {
				n.stepDownLocked(reply.Term)
				n.mu.Unlock()
				return
			}
			stillCandidate := n.state == Candidate && n.currentTerm == term
			n.mu.Unlock()

			if !stillCandidate || !reply.VoteGranted {
				return
			}

			mu.Lock()
			votes++
			mu.Unlock()
		}(peerID)
	}
	wg.Wait()

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.state != Candidate || n.currentTerm != term {
		return // stepped down or a newer term arrived mid-election
	}
	if votes >= n.quorum {
		n.becomeLeaderLocked()
	}
}

// becomeLeaderLocked transitions to Leader and starts the heartbeat
// goroutine. Caller must hold n.mu.
func (n *Node) becomeLeaderLocked() {
	n.state = Leader
	n.leaderID = n.id
	nextIdx := n.lastLogIndexLocked() + 1
	n.nextIndex = make(map[string]int)
	n.matchIndex = make(map[string]int)
	for _, peerID := range n.transport.PeerIDs() {
		n.nextIndex[peerID] = nextIdx
		n.matchIndex[peerID] = 0
	}
	term := n.currentTerm
	n.logger.Infow("became leader", "term", term)

	go n.runHeartbeats(term)
}

// runHeartbeats periodically replicates to every peer while this node
// remains leader of the given term.
func (n *Node) runHeartbeats(term int) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	n.replicateToAll()

	for {
		select {
		case <-n.stopCh:
			return
		case <-ticker.C:
			n.mu.Lock()
			stillLeader := n.state == Leader && n.currentTerm == term
			n.mu.Unlock()
			if !stillLeader {
				return
			}
			n.replicateToAll()
		}
	}
}
