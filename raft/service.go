package raft

// Service adapts a Node to the net/rpc calling convention. Registered
// under the name "Raft" so methods dial as "Raft.AppendEntries", etc.
type Service struct {
	node *Node
}

// NewService wraps node for net/rpc registration.
func NewService(node *Node) *Service {
	return &Service{node: node}
}

// RequestVote handles an inbound vote solicitation from a candidate.
func (s *Service) RequestVote(args RequestVoteArgs, reply *RequestVoteReply) error {
	*reply = s.node.HandleRequestVote(args)
	return nil
}

// AppendEntries handles an inbound heartbeat or log-replication call
// from the current leader.
func (s *Service) AppendEntries(args AppendEntriesArgs, reply *AppendEntriesReply) error {
	*reply = s.node.HandleAppendEntries(args)
	return nil
}

// AppendCommandArgs is the request for the client-facing AppendCommand
// RPC: only the leader accepts it, mirroring pbft's
// ClientSubmitBlock/NOT_PRIMARY contract.
type AppendCommandArgs struct {
	Command string
}

// AppendCommandReply reports whether the local node was leader and,
// if not, who it currently believes the leader is.
type AppendCommandReply struct {
	Accepted bool
	Index    int
	Term     int
	LeaderID string
	Error    string
}

// AppendCommand is the client-facing RPC for submitting a command.
func (s *Service) AppendCommand(args AppendCommandArgs, reply *AppendCommandReply) error {
	index, term, err := s.node.AppendCommand(args.Command)
	if err != nil {
		status := s.node.GetStatus()
		*reply = AppendCommandReply{Accepted: false, Error: err.Error(), LeaderID: status.LeaderID}
		return nil
	}
	*reply = AppendCommandReply{Accepted: true, Index: index, Term: term}
	return nil
}

// GetStatus is the read-only election-state snapshot.
func (s *Service) GetStatus(args Empty, reply *StatusReply) error {
	*reply = s.node.GetStatus()
	return nil
}

// Empty is the argument type for RPCs that take no input.
type Empty struct{}
