package raft

// HandleRequestVote implements the RequestVote RPC receiver (Raft
// §5.2, §5.4): grants a vote only for a candidate whose log is at
// least as up to date as the receiver's, and only once per term.
func (n *Node) HandleRequestVote(args RequestVoteArgs) RequestVoteReply {
	n.mu.Lock()
	defer n.mu.Unlock()

	if args.Term < n.currentTerm {
		return RequestVoteReply{Term: n.currentTerm, VoteGranted: false}
	}
	if args.Term > n.currentTerm {
		n.stepDownLocked(args.Term)
	}

	upToDate := args.LastLogTerm > n.lastLogTermLocked() ||
		(args.LastLogTerm == n.lastLogTermLocked() && args.LastLogIndex >= n.lastLogIndexLocked())

	canVote := n.votedFor == "" || n.votedFor == args.CandidateID
	if canVote && upToDate {
		n.votedFor = args.CandidateID
		n.nudgeElectionTimer()
		return RequestVoteReply{Term: n.currentTerm, VoteGranted: true}
	}
	return RequestVoteReply{Term: n.currentTerm, VoteGranted: false}
}

// HandleAppendEntries implements the AppendEntries RPC receiver (Raft
// §5.3): heartbeat and log-replication in one message, with the
// ConflictIndex/ConflictTerm fast-backup optimization on mismatch.
func (n *Node) HandleAppendEntries(args AppendEntriesArgs) AppendEntriesReply {
	n.mu.Lock()
	defer n.mu.Unlock()

	if args.Term < n.currentTerm {
		return AppendEntriesReply{Term: n.currentTerm, Success: false}
	}
	if args.Term > n.currentTerm {
		n.stepDownLocked(args.Term)
	}

	n.state = Follower
	n.leaderID = args.LeaderID
	n.nudgeElectionTimer()

	if args.PrevLogIndex > n.lastLogIndexLocked() {
		return AppendEntriesReply{
			Term:          n.currentTerm,
			Success:       false,
			ConflictIndex: n.lastLogIndexLocked() + 1,
		}
	}
	if args.PrevLogIndex > 0 && n.termAtLocked(args.PrevLogIndex) != args.PrevLogTerm {
		conflictTerm := n.termAtLocked(args.PrevLogIndex)
		firstOfTerm := args.PrevLogIndex
		for firstOfTerm > 1 && n.termAtLocked(firstOfTerm-1) == conflictTerm {
			firstOfTerm--
		}
		return AppendEntriesReply{
			Term:          n.currentTerm,
			Success:       false,
			ConflictTerm:  conflictTerm,
			ConflictIndex: firstOfTerm,
		}
	}

	// Splice in the new entries, truncating on the first conflict.
	for i, entry := range args.Entries {
		idx := args.PrevLogIndex + i + 1
		if idx <= len(n.log) {
			if n.log[idx-1].Term != entry.Term {
				n.log = n.log[:idx-1]
				n.log = append(n.log, args.Entries[i:]...)
				break
			}
			continue
		}
		n.log = append(n.log, args.Entries[i:]...)
		break
	}

	if args.LeaderCommit > n.commitIndex {
		newCommit := args.LeaderCommit
		if last := n.lastLogIndexLocked(); newCommit > last {
			newCommit = last
		}
		if newCommit > n.commitIndex {
			n.commitIndex = newCommit
			n.applyCommittedLocked()
		}
	}

	return AppendEntriesReply{Term: n.currentTerm, Success: true}
}
