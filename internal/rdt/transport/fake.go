package transport

import (
	"context"
	"errors"
	"sync"

	"github.com/aetherflow/rdt-sender/internal/rdt/protocol"
)

// FakeConn is an in-memory Conn used to drive sender-loop tests without a
// real socket. Packets queued via Deliver surface from Receive; packets
// handed to Send are appended to Sent for assertions.
type FakeConn struct {
	mu     sync.Mutex
	cond   *sync.Cond
	Sent   []*protocol.Packet
	inbox  []*protocol.Packet
	closed bool

	// OnSend, if set, is invoked synchronously for every sent packet
	// after it is recorded — tests use it to simulate drops, reordering,
	// or to auto-generate a reply.
	OnSend func(pkt *protocol.Packet)
}

// NewFakeConn returns an empty fake connection.
func NewFakeConn() *FakeConn {
	f := &FakeConn{}
	f.cond = sync.NewCond(&f.mu)
	return f
}

// Send records pkt and invokes OnSend, if set.
func (f *FakeConn) Send(pkt *protocol.Packet) error {
	f.mu.Lock()
	f.Sent = append(f.Sent, pkt)
	hook := f.OnSend
	f.mu.Unlock()

	if hook != nil {
		hook(pkt)
	}
	return nil
}

// SentPackets returns a snapshot of every packet recorded so far, safe to
// call concurrently with Send.
func (f *FakeConn) SentPackets() []*protocol.Packet {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*protocol.Packet, len(f.Sent))
	copy(out, f.Sent)
	return out
}

// Deliver queues pkt to be returned by a future Receive call, as if it had
// arrived from the peer.
func (f *FakeConn) Deliver(pkt *protocol.Packet) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inbox = append(f.inbox, pkt)
	f.cond.Signal()
}

// Receive blocks until a packet is queued via Deliver, the connection is
// closed, or ctx is done.
func (f *FakeConn) Receive(ctx context.Context) (*protocol.Packet, error) {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			f.mu.Lock()
			f.cond.Broadcast()
			f.mu.Unlock()
		case <-done:
		}
	}()
	defer close(done)

	f.mu.Lock()
	defer f.mu.Unlock()
	for len(f.inbox) == 0 && !f.closed {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		f.cond.Wait()
	}
	if len(f.inbox) == 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, errors.New("transport: connection closed")
	}
	pkt := f.inbox[0]
	f.inbox = f.inbox[1:]
	return pkt, nil
}

// Close marks the connection closed and wakes any blocked Receive.
func (f *FakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.cond.Broadcast()
	return nil
}
