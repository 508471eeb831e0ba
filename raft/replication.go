package raft

import "sort"

// AppendCommand appends command to the leader's log and returns the
// index it was assigned. Replication to followers happens
// asynchronously via the heartbeat loop and an immediate best-effort
// fan-out triggered here; callers that need durability should poll
// GetStatus().CommitIndex.
func (n *Node) AppendCommand(command string) (index int, term int, err error) {
	n.mu.Lock()
	if n.state != Leader {
		n.mu.Unlock()
		return 0, 0, ErrNotLeader
	}
	n.log = append(n.log, LogEntry{Term: n.currentTerm, Command: command})
	index = len(n.log)
	term = n.currentTerm
	n.matchIndex[n.id] = index
	n.mu.Unlock()

	go n.replicateToAll()
	return index, term, nil
}

// replicateToAll sends AppendEntries (heartbeat or log-carrying) to
// every peer in parallel.
func (n *Node) replicateToAll() {
	for _, peerID := range n.transport.PeerIDs() {
		go n.replicateToPeer(peerID)
	}
}

func (n *Node) replicateToPeer(peerID string) {
	n.mu.Lock()
	if n.state != Leader {
		n.mu.Unlock()
		return
	}
	term := n.currentTerm
	next := n.nextIndex[peerID]
	if next < 1 {
		next = 1
	}
	prevIndex := next - 1
	prevTerm := n.termAtLocked(prevIndex)
	entries := append([]LogEntry(nil), n.log[prevIndex:]...)
	leaderCommit := n.commitIndex
	n.mu.Unlock()

	args := AppendEntriesArgs{
		Term:         term,
		LeaderID:     n.id,
		PrevLogIndex: prevIndex,
		PrevLogTerm:  prevTerm,
		Entries:      entries,
		LeaderCommit: leaderCommit,
	}
	var reply AppendEntriesReply
	if err := n.transport.Send(peerID, MethodAppendEntries, args, &reply); err != nil {
		return
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if reply.Term > n.currentTerm {
		n.stepDownLocked(reply.Term)
		return
	}
	if n.state != Leader || n.currentTerm != term {
		return
	}

	if reply.Success {
		n.matchIndex[peerID] = prevIndex + len(entries)
		n.nextIndex[peerID] = n.matchIndex[peerID] + 1
		n.advanceCommitIndexLocked()
		return
	}

	// Back up nextIndex past the follower's conflicting term in one
	// round trip rather than decrementing by one entry at a time.
	if reply.ConflictTerm == 0 {
		n.nextIndex[peerID] = reply.ConflictIndex
		return
	}
	lastIdxOfTerm := 0
	for i := len(n.log); i >= 1; i-- {
		if n.log[i-1].Term == reply.ConflictTerm {
			lastIdxOfTerm = i
			break
		}
	}
	if lastIdxOfTerm > 0 {
		n.nextIndex[peerID] = lastIdxOfTerm + 1
	} else {
		n.nextIndex[peerID] = reply.ConflictIndex
	}
}

// advanceCommitIndexLocked recomputes commitIndex as the highest N
// replicated to a majority whose entry belongs to the current term
// (the Raft §5.4.2 restriction against committing a previous term's
// entry solely by match-index count). Caller must hold n.mu.
func (n *Node) advanceCommitIndexLocked() {
	matches := make([]int, 0, len(n.matchIndex)+1)
	matches = append(matches, n.lastLogIndexLocked()) // self
	for peerID, m := range n.matchIndex {
		if peerID == n.id {
			continue
		}
		matches = append(matches, m)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(matches)))

	candidate := matches[n.quorum-1]
	if candidate > n.commitIndex && n.termAtLocked(candidate) == n.currentTerm {
		n.commitIndex = candidate
		n.applyCommittedLocked()
	}
}

// applyCommittedLocked invokes applyFn for every entry between
// lastApplied and commitIndex. Caller must hold n.mu; applyFn itself
// is called after releasing it to avoid calling back into the node
// under lock.
func (n *Node) applyCommittedLocked() {
	if n.applyFn == nil {
		n.lastApplied = n.commitIndex
		return
	}
	toApply := make([]LogEntry, 0, n.commitIndex-n.lastApplied)
	startIndex := n.lastApplied + 1
	for i := n.lastApplied + 1; i <= n.commitIndex; i++ {
		toApply = append(toApply, n.log[i-1])
	}
	n.lastApplied = n.commitIndex

	fn := n.applyFn
	go func() {
		for i, entry := range toApply {
			fn(startIndex+i, entry.Command)
		}
	}()
}
