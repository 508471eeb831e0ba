package raft

import "errors"

var (
	// ErrNotLeader is returned by AppendCommand when called against a
	// node that does not currently believe itself to be leader.
	ErrNotLeader = errors.New("raft: not the leader")
)
