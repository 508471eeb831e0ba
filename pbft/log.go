package pbft

import "fmt"

// seqDigest keys every prepare/commit tally by (sequence, digest), not
// by sequence alone — a Byzantine primary or replica can broadcast
// different digests for the same slot, and correctness depends on
// only counting matching votes.
type seqDigest struct {
	seq    uint64
	digest string
}

// MessageLog holds the per-sequence tallies the consensus engine reads
// its prepared/committed-local predicates from. It has no lock of its
// own; the engine serializes access under its single mutex region.
type MessageLog struct {
	prePrepare map[uint64]Block
	prepare    map[seqDigest]map[string]bool
	commit     map[seqDigest]map[string]bool
}

// NewMessageLog returns an empty log.
func NewMessageLog() *MessageLog {
	return &MessageLog{
		prePrepare: make(map[uint64]Block),
		prepare:    make(map[seqDigest]map[string]bool),
		commit:     make(map[seqDigest]map[string]bool),
	}
}

// RecordPrePrepare stores block as the proposal for seq, unless a
// distinct proposal already occupies that slot. A second distinct
// block for an occupied seq is equivocation and is rejected; ok
// reports whether the proposal was accepted (either newly stored, or
// an idempotent re-delivery of the same block).
func (l *MessageLog) RecordPrePrepare(seq uint64, block Block) (ok bool, equivocation bool) {
	existing, seen := l.prePrepare[seq]
	if !seen {
		l.prePrepare[seq] = block
		return true, false
	}
	if existing.BlockHash == block.BlockHash {
		return true, false // duplicate delivery of the same proposal
	}
	return false, true
}

// PrePrepareBlock returns the proposal recorded for seq, if any.
func (l *MessageLog) PrePrepareBlock(seq uint64) (Block, bool) {
	b, ok := l.prePrepare[seq]
	return b, ok
}

// RecordPrepare adds sender's prepare vote for (seq, digest).
// Duplicate votes from the same sender are no-ops.
func (l *MessageLog) RecordPrepare(seq uint64, digest, sender string) {
	recordVote(l.prepare, seqDigest{seq, digest}, sender)
}

// RecordCommit adds sender's commit vote for (seq, digest). Duplicate
// votes from the same sender are no-ops.
func (l *MessageLog) RecordCommit(seq uint64, digest, sender string) {
	recordVote(l.commit, seqDigest{seq, digest}, sender)
}

func recordVote(votes map[seqDigest]map[string]bool, key seqDigest, sender string) {
	set, ok := votes[key]
	if !ok {
		set = make(map[string]bool)
		votes[key] = set
	}
	set[sender] = true
}

// PrepareCount returns the number of distinct senders who have voted
// prepare for (seq, digest).
func (l *MessageLog) PrepareCount(seq uint64, digest string) int {
	return len(l.prepare[seqDigest{seq, digest}])
}

// CommitCount returns the number of distinct senders who have voted
// commit for (seq, digest).
func (l *MessageLog) CommitCount(seq uint64, digest string) int {
	return len(l.commit[seqDigest{seq, digest}])
}

// Prepared reports whether (seq, digest) has reached quorum on
// prepare votes AND the recorded pre-prepare for seq carries the same
// digest; a quorum of prepares for a digest the primary never
// proposed must not fire.
func (l *MessageLog) Prepared(seq uint64, digest string, quorum int) bool {
	block, ok := l.prePrepare[seq]
	if !ok || block.BlockHash != digest {
		return false
	}
	return l.PrepareCount(seq, digest) >= quorum
}

// CommittedLocal reports whether (seq, digest) has reached quorum on
// commit votes.
func (l *MessageLog) CommittedLocal(seq uint64, digest string, quorum int) bool {
	return l.CommitCount(seq, digest) >= quorum
}

func (k seqDigest) String() string {
	return fmt.Sprintf("%d:%s", k.seq, k.digest)
}
