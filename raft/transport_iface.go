package raft

import "pbftchain/transport"

// Transport is the peer fabric a Node sends RequestVote/AppendEntries
// RPCs over. It is satisfied by *transport.Directory in production and
// by an in-memory fake in tests, mirroring the pbft package's split.
type Transport interface {
	Send(peerID, serviceMethod string, args, reply interface{}) error
	PeerIDs() []string
}

var _ Transport = (*transport.Directory)(nil)
