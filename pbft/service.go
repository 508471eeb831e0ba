package pbft

// Service adapts a Node to the net/rpc calling convention
// (func(args, *reply) error, every method exported, both params
// exported types) for the wire endpoints in the node facade. It is
// registered under the name "PBFT" so methods dial as "PBFT.Prepare",
// etc. — see the transport.Server registration in cmd/pbftnode.
type Service struct {
	node *Node
}

// NewService wraps node for net/rpc registration.
func NewService(node *Node) *Service {
	return &Service{node: node}
}

// ClientSubmitBlock reports its outcome to the caller synchronously —
// the caller here is a (trusted-enough) client, not an untrusted peer.
// A rejection comes back in the reply (Accepted false, Error, and
// PrimaryID for a non-primary); the RPC call itself does not fail.
func (s *Service) ClientSubmitBlock(args SubmitArgs, reply *SubmitReply) error {
	s.node.logger.Infow("client submit received", "request_id", args.RequestID, "bytes", len(args.Data))
	result, err := s.node.ClientSubmitBlock(args.Data)
	*reply = result
	_ = err // the error is already reflected in reply.Error/PrimaryID
	return nil
}

// PrePrepare drives the replica-side IDLE -> PRE_PREPARED transition.
// Validation failures are logged and dropped, never surfaced as an RPC
// failure — the sender is an untrusted peer.
func (s *Service) PrePrepare(args PrePrepareArgs, reply *Ack) error {
	if err := s.node.HandlePrePrepare(args); err != nil {
		s.node.logger.Warnw("pre-prepare rejected", "seq", args.Seq, "err", err)
		*reply = Ack{OK: false}
		return nil
	}
	*reply = Ack{OK: true}
	return nil
}

// Prepare records an inbound Prepare vote.
func (s *Service) Prepare(args VoteArgs, reply *Ack) error {
	if err := s.node.HandlePrepare(args); err != nil {
		s.node.logger.Warnw("prepare rejected", "seq", args.Seq, "err", err)
		*reply = Ack{OK: false}
		return nil
	}
	*reply = Ack{OK: true}
	return nil
}

// Commit records an inbound Commit vote.
func (s *Service) Commit(args VoteArgs, reply *Ack) error {
	if err := s.node.HandleCommit(args); err != nil {
		s.node.logger.Warnw("commit rejected", "seq", args.Seq, "err", err)
		*reply = Ack{OK: false}
		return nil
	}
	*reply = Ack{OK: true}
	return nil
}

// GetBlockchain is the read-only chain dump.
func (s *Service) GetBlockchain(args Empty, reply *[]Block) error {
	*reply = s.node.GetBlockchain()
	return nil
}

// GetStatus is the read-only node status snapshot.
func (s *Service) GetStatus(args Empty, reply *StatusReply) error {
	*reply = s.node.GetStatus()
	return nil
}

// SetMaliciousMode is the fault-injection testing hook.
func (s *Service) SetMaliciousMode(args MaliciousArgs, reply *Ack) error {
	if err := s.node.SetMaliciousMode(Mode(args.Mode)); err != nil {
		*reply = Ack{OK: false}
		return err
	}
	*reply = Ack{OK: true}
	return nil
}
