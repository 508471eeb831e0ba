// Package transport provides the peer-to-peer RPC fabric pBFT and
// RAFT nodes send over: dial-on-demand net/rpc connections to a fixed
// set of known peers, with Send/Broadcast delivering at most once,
// with arbitrary delay, and silently dropping on failure. There is no
// acknowledgment and no retransmission here — the consensus layer's
// quorum logic is the only correctness mechanism, by design.
package transport

import (
	"fmt"
	"net/rpc"
	"sync"
	"time"
)

// DefaultCallTimeout bounds how long a single peer RPC may block
// before it is treated the same as a silent drop.
const DefaultCallTimeout = 2 * time.Second

// PeerInfo names one cluster member and its dial address.
type PeerInfo struct {
	ID      string
	Address string
}

// peer lazily owns the net/rpc connection to one cluster member and
// redials on the next call after a failure, since a dropped TCP
// connection should not permanently exile a peer.
type peer struct {
	info PeerInfo

	mu     sync.Mutex
	client *rpc.Client
}

func (p *peer) dial() (*rpc.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.client != nil {
		return p.client, nil
	}
	c, err := rpc.Dial("tcp", p.info.Address)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s at %s: %w", p.info.ID, p.info.Address, err)
	}
	p.client = c
	return c, nil
}

func (p *peer) invalidate() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil {
		p.client.Close()
		p.client = nil
	}
}

func (p *peer) call(timeout time.Duration, serviceMethod string, args, reply interface{}) error {
	client, err := p.dial()
	if err != nil {
		return err
	}

	call := client.Go(serviceMethod, args, reply, make(chan *rpc.Call, 1))
	select {
	case res := <-call.Done:
		if res.Error != nil {
			p.invalidate()
			return fmt.Errorf("transport: call %s on %s: %w", serviceMethod, p.info.ID, res.Error)
		}
		return nil
	case <-time.After(timeout):
		p.invalidate()
		return fmt.Errorf("transport: call %s on %s: timed out after %s", serviceMethod, p.info.ID, timeout)
	}
}

// Directory is a node's view of the fixed replica group: itself plus
// every known peer, each reachable by Send or fanned out to by
// Broadcast.
type Directory struct {
	SelfID      string
	CallTimeout time.Duration

	mu    sync.RWMutex
	peers map[string]*peer
	order []string
}

// NewDirectory builds a directory for selfID from the full peer list
// (selfID's own entry, if present, is kept out of the dialable set —
// a node never RPCs itself).
func NewDirectory(selfID string, all []PeerInfo) *Directory {
	d := &Directory{
		SelfID:      selfID,
		CallTimeout: DefaultCallTimeout,
		peers:       make(map[string]*peer, len(all)),
	}
	for _, info := range all {
		if info.ID == selfID {
			continue
		}
		d.peers[info.ID] = &peer{info: info}
		d.order = append(d.order, info.ID)
	}
	return d
}

// PeerIDs returns the dialable peer IDs in a stable order.
func (d *Directory) PeerIDs() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, len(d.order))
	copy(out, d.order)
	return out
}

// Send delivers one RPC to a single named peer. A failure (dial error,
// remote error, or timeout) is returned to the caller, who is expected
// to log and drop it rather than propagate it further — per the
// transport contract, there is no retry here.
func (d *Directory) Send(peerID, serviceMethod string, args, reply interface{}) error {
	d.mu.RLock()
	p, ok := d.peers[peerID]
	d.mu.RUnlock()
	if !ok {
		return fmt.Errorf("transport: unknown peer %q", peerID)
	}
	return p.call(d.CallTimeout, serviceMethod, args, reply)
}

// BroadcastResult carries the outcome of one peer's delivery attempt.
type BroadcastResult struct {
	PeerID string
	Err    error
}

// Broadcast fans serviceMethod out to every known peer concurrently,
// one goroutine each, so a slow or silent peer cannot block delivery
// to the others. It returns once every attempt has finished or timed
// out; callers that don't care about individual outcomes can discard
// the result slice.
func (d *Directory) Broadcast(serviceMethod string, args interface{}) []BroadcastResult {
	ids := d.PeerIDs()
	results := make([]BroadcastResult, len(ids))

	var wg sync.WaitGroup
	wg.Add(len(ids))
	for i, id := range ids {
		go func(i int, id string) {
			defer wg.Done()
			var reply struct{}
			err := d.Send(id, serviceMethod, args, &reply)
			results[i] = BroadcastResult{PeerID: id, Err: err}
		}(i, id)
	}
	wg.Wait()
	return results
}
