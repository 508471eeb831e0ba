package pbft

import "fmt"

// ClientSubmitBlock is the primary-only entry point: take the next
// sequence number, build a block on top of the current tip, record and
// broadcast the pre-prepare, then immediately enter this node's own
// prepare phase as if it had received its own pre-prepare (§4.3 — the
// primary counts itself toward quorum by recording the self-vote
// directly rather than looping its own broadcast back to itself).
func (n *Node) ClientSubmitBlock(data string) (SubmitReply, error) {
	n.mu.Lock()
	if !n.IsPrimary {
		primary := n.PrimaryID
		n.mu.Unlock()
		return SubmitReply{Accepted: false, Error: ErrNotPrimary.Error(), PrimaryID: primary}, ErrNotPrimary
	}

	tip := n.chain.Tip()
	seq := n.nextSeq
	n.nextSeq++
	block := MakeBlock(data, tip.BlockHash, tip.BlockHeight+1, n.View, seq, n.nowTimestamp())

	if ok, _ := n.log.RecordPrePrepare(seq, block); !ok {
		// A primary proposing twice for a seq it just minted itself
		// can't happen without a bug; treat it as a hard invariant
		// violation rather than silently continuing.
		n.mu.Unlock()
		return SubmitReply{Accepted: false, Error: ErrEquivocation.Error()}, fmt.Errorf("%w: self pre-prepare at seq %d", ErrEquivocation, seq)
	}
	n.pendingBlocks[seq] = block
	n.slotState[seq] = StatePrePrepared
	n.mu.Unlock()

	n.broadcast(MethodPrePrepare, PrePrepareArgs{View: n.View, Seq: seq, Block: block, Sender: n.ID})

	n.enterPreparePhase(seq, block)

	return SubmitReply{Accepted: true, BlockHeight: block.BlockHeight}, nil
}

// HandlePrePrepare is the replica-side entry point (§4.3 IDLE →
// PRE_PREPARED). A primary also passes its own proposal through the
// log via ClientSubmitBlock directly, so this path is replica-only in
// practice, but nothing here assumes that — a primary that received a
// stray PrePrepare would be handled identically.
func (n *Node) HandlePrePrepare(args PrePrepareArgs) error {
	if args.View != n.View {
		return fmt.Errorf("%w: got %d want %d", ErrViewMismatch, args.View, n.View)
	}

	n.mu.Lock()
	if !n.chain.VerifyBlock(args.Block) {
		n.mu.Unlock()
		return fmt.Errorf("%w: seq %d", ErrInvalidBlock, args.Seq)
	}

	ok, equiv := n.log.RecordPrePrepare(args.Seq, args.Block)
	if equiv {
		n.mu.Unlock()
		equivocationsTotal()
		return fmt.Errorf("%w: seq %d already has a different proposal", ErrEquivocation, args.Seq)
	}
	if !ok {
		// unreachable given RecordPrePrepare's contract, kept for clarity
		n.mu.Unlock()
		return fmt.Errorf("%w: seq %d", ErrInvalidBlock, args.Seq)
	}

	n.pendingBlocks[args.Seq] = args.Block
	if n.slotState[args.Seq] < StatePrePrepared {
		n.slotState[args.Seq] = StatePrePrepared
	}
	applied := n.tryApplyLocked()
	n.mu.Unlock()

	if applied {
		n.notifyStatusChange()
	}
	n.enterPreparePhase(args.Seq, args.Block)
	return nil
}

// enterPreparePhase broadcasts this node's own Prepare vote for
// (seq, block's digest) and records it locally — PRE_PREPARED →
// (emit Prepare) in §4.3. Safe to call from both the primary's
// self-path and a replica's HandlePrePrepare path.
func (n *Node) enterPreparePhase(seq uint64, block Block) {
	digest := n.outboundDigest(block.BlockHash)

	n.mu.Lock()
	n.log.RecordPrepare(seq, digest, n.ID)
	n.mu.Unlock()

	n.broadcast(MethodPrepare, VoteArgs{View: n.View, Seq: seq, Digest: digest, Sender: n.ID})
	n.checkPrepared(seq, digest)
}

// HandlePrepare records an inbound Prepare vote and, the first time
// (seq, digest) reaches quorum, emits this node's Commit vote exactly
// once (guarded by preparedSeen). A node that hasn't seen a
// pre-prepare for seq yet still records the vote speculatively; the
// quorum predicate itself requires the pre-prepare's digest to match
// before firing (see MessageLog.Prepared).
func (n *Node) HandlePrepare(args VoteArgs) error {
	if args.View != n.View {
		return fmt.Errorf("%w: got %d want %d", ErrViewMismatch, args.View, n.View)
	}

	n.mu.Lock()
	n.log.RecordPrepare(args.Seq, args.Digest, args.Sender)
	metricsSetPrepareVotes(n.log.PrepareCount(args.Seq, args.Digest))
	n.mu.Unlock()

	n.checkPrepared(args.Seq, args.Digest)
	return nil
}

// checkPrepared transitions PRE_PREPARED/PREPARED → (emit Commit) the
// first time prepared(seq, digest) becomes true.
func (n *Node) checkPrepared(seq uint64, digest string) {
	n.mu.Lock()
	key := seqDigest{seq, digest}
	already := n.preparedSeen[key]
	fires := !already && n.log.Prepared(seq, digest, n.quorum)
	if fires {
		n.preparedSeen[key] = true
		n.slotState[seq] = StatePrepared
	}
	n.mu.Unlock()

	if !fires {
		return
	}

	outDigest := n.outboundDigest(digest)
	n.mu.Lock()
	n.log.RecordCommit(seq, outDigest, n.ID)
	n.mu.Unlock()

	n.broadcast(MethodCommit, VoteArgs{View: n.View, Seq: seq, Digest: outDigest, Sender: n.ID})
	n.checkCommitted(seq, outDigest)
}

// HandleCommit records an inbound Commit vote and, the first time
// (seq, digest) reaches quorum, atomically appends the matching block
// and advances toward APPLIED (guarded by committedSeen).
func (n *Node) HandleCommit(args VoteArgs) error {
	if args.View != n.View {
		return fmt.Errorf("%w: got %d want %d", ErrViewMismatch, args.View, n.View)
	}

	n.mu.Lock()
	n.log.RecordCommit(args.Seq, args.Digest, args.Sender)
	metricsSetCommitVotes(n.log.CommitCount(args.Seq, args.Digest))
	n.mu.Unlock()

	n.checkCommitted(args.Seq, args.Digest)
	return nil
}

// checkCommitted fires COMMITTED → APPLIED the first time
// committed_local(seq, digest) becomes true, then drains whatever
// consecutive sequence numbers are now ready to append in order.
func (n *Node) checkCommitted(seq uint64, digest string) {
	n.mu.Lock()

	key := seqDigest{seq, digest}
	if n.committedSeen[key] {
		n.mu.Unlock()
		return
	}
	if !n.log.CommittedLocal(seq, digest, n.quorum) {
		n.mu.Unlock()
		return
	}
	n.committedSeen[key] = true
	n.slotState[seq] = StateCommitted
	n.readyDigest[seq] = digest

	applied := n.tryApplyLocked()
	n.mu.Unlock()

	if applied {
		n.notifyStatusChange()
	}
}

// tryApplyLocked appends every consecutive, ready (committed-local)
// block starting at nextApplySeq, stalling at the first gap. Caller
// must hold n.mu. This is the ordering policy from §4.3: apply only
// ever proceeds in strictly increasing seq. The next seq to apply is
// tracked independently of chain height — seq numbering is the
// primary's own counter and need not equal height-1 — so the two
// never drift out of step. Reports whether at least one block was
// appended, so callers know whether to notify status listeners once
// the lock is released.
func (n *Node) tryApplyLocked() bool {
	applied := false
	for {
		next := n.nextApplySeq
		digest, ready := n.readyDigest[next]
		if !ready {
			return applied
		}
		block, have := n.log.PrePrepareBlock(next)
		if !have || block.BlockHash != digest {
			return applied // commit quorum reached before the block body arrived; stall
		}
		if err := n.chain.Append(block); err != nil {
			n.slotState[next] = StateRejected
			delete(n.pendingBlocks, next)
			n.logger.Errorw("failed to apply committed block", "seq", next, "err", err)
			return applied
		}
		delete(n.readyDigest, next)
		delete(n.pendingBlocks, next)
		n.slotState[next] = StateApplied
		n.nextApplySeq++
		chainHeightGauge(n.chain.Height())
		blocksCommittedCounter()
		applied = true
	}
}

func (n *Node) broadcast(method string, args interface{}) {
	if n.modeSnapshot() == ModeSilent {
		return
	}
	n.transport.Broadcast(method, args)
}

func (n *Node) modeSnapshot() Mode {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.modeLocked()
}

// outboundDigest applies the wrong_hash fault-injection mode to an
// otherwise-correct digest before it goes out on the wire. Inbound
// acceptance logic never calls this — only outbound production is
// affected by malicious mode, per §4.6.
func (n *Node) outboundDigest(correct string) string {
	if n.modeSnapshot() == ModeWrongHash {
		return wrongDigest(correct)
	}
	return correct
}
