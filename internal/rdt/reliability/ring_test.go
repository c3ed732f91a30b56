package reliability

import (
	"testing"

	"github.com/aetherflow/rdt-sender/internal/rdt/protocol"
)

func seg(seqNo uint32, n int) *protocol.Packet {
	return protocol.NewDataPacket(seqNo, make([]byte, n))
}

func TestRingStoreAndGet(t *testing.T) {
	r := NewRing()
	p := seg(0, 10)
	r.Store(p)

	got, ok := r.Get(0)
	if !ok {
		t.Fatalf("expected segment at seqno 0")
	}
	if got != p {
		t.Fatalf("got wrong segment back")
	}
}

func TestRingNoAliasingAcrossFullWindow(t *testing.T) {
	r := NewRing()
	// One full window's worth of max-size segments must each occupy a
	// distinct slot; this is the invariant the ring's capacity exists to
	// guarantee.
	seqnos := make([]uint32, protocol.MaxWindow)
	for i := 0; i < protocol.MaxWindow; i++ {
		seqnos[i] = uint32(i * protocol.PayloadMax)
		r.Store(seg(seqnos[i], protocol.PayloadMax))
	}
	for _, s := range seqnos {
		got, ok := r.Get(s)
		if !ok {
			t.Fatalf("seqno %d evicted by a same-window peer: aliasing occurred", s)
		}
		if got.Header.SeqNo != s {
			t.Fatalf("slot for seqno %d holds seqno %d", s, got.Header.SeqNo)
		}
	}
}

func TestRingReleaseBelow(t *testing.T) {
	r := NewRing()
	p := uint32(protocol.PayloadMax)
	r.Store(seg(0, protocol.PayloadMax))
	r.Store(seg(p, protocol.PayloadMax))
	r.Store(seg(2*p, protocol.PayloadMax))

	r.ReleaseBelow(2 * p)

	if _, ok := r.Get(0); ok {
		t.Errorf("seqno 0 should have been released")
	}
	if _, ok := r.Get(p); ok {
		t.Errorf("seqno %d should have been released", p)
	}
	if _, ok := r.Get(2 * p); !ok {
		t.Errorf("seqno %d should still be in flight", 2*p)
	}
}

func TestRingReleaseDoesNotEvictNewerOccupant(t *testing.T) {
	r := NewRing()
	cap := protocol.MaxWindow
	first := seg(0, protocol.PayloadMax)
	r.Store(first)
	r.Release(uint32(cap) * uint32(protocol.PayloadMax))

	if _, ok := r.Get(0); !ok {
		t.Fatalf("releasing a seqno that never occupied this slot evicted the real occupant")
	}
}

func TestRingOldestAndEmpty(t *testing.T) {
	r := NewRing()
	if !r.Empty() {
		t.Fatalf("fresh ring should be empty")
	}
	if _, ok := r.Oldest(); ok {
		t.Fatalf("empty ring has no oldest segment")
	}

	p := uint32(protocol.PayloadMax)
	r.Store(seg(3*p, 10))
	r.Store(seg(p, protocol.PayloadMax))
	r.Store(seg(2*p, protocol.PayloadMax))

	oldest, ok := r.Oldest()
	if !ok || oldest.Header.SeqNo != p {
		t.Fatalf("Oldest() = %+v, want seqno %d", oldest, p)
	}
	if r.Empty() {
		t.Fatalf("ring holding segments reported empty")
	}
}
