package pbft

import "pbftchain/transport"

// Transport is the narrow surface the consensus engine needs from the
// peer fabric: send to one peer, or broadcast to the whole group.
// *transport.Directory implements this over net/rpc; tests substitute
// an in-memory fake that calls sibling nodes' handlers directly so the
// three-phase protocol can be exercised without real sockets.
type Transport interface {
	Send(peerID, serviceMethod string, args, reply interface{}) error
	Broadcast(serviceMethod string, args interface{}) []transport.BroadcastResult
	PeerIDs() []string
}
