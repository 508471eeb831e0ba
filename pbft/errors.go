package pbft

import "errors"

// Sentinel errors surfaced to RPC callers. Validation failures on
// inbound peer messages are logged and dropped, never returned to the
// (untrusted) peer. Node.ClientSubmitBlock and the Node.Handle*
// methods return them for errors.Is checks; over RPC, ClientSubmitBlock
// carries the error text in its reply and only SetMaliciousMode fails
// the call itself (with ErrInvalidMode).
var (
	ErrNotPrimary        = errors.New("pbft: not the primary")
	ErrInvalidBlock      = errors.New("pbft: invalid block")
	ErrViewMismatch      = errors.New("pbft: view mismatch")
	ErrEquivocation      = errors.New("pbft: equivocation")
	ErrQuorumUnreachable = errors.New("pbft: quorum unreachable")
	ErrTransportFailure  = errors.New("pbft: transport failure")
	ErrInvalidMode       = errors.New("pbft: invalid malicious mode")
)
