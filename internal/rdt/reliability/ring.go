// Package reliability holds the in-flight segment store and RTT sample
// table the sender consults on every ACK and timer tick.
package reliability

import (
	"fmt"

	"github.com/aetherflow/rdt-sender/internal/rdt/protocol"
)

// Ring is a fixed-capacity, seqno-indexed store for segments that have been
// sent but not yet cumulatively ACKed. Capacity equals protocol.MaxWindow,
// which bounds the number of segments ever in flight at once, so two live
// segments can never alias the same slot.
type Ring struct {
	cap   int
	slots []*protocol.Packet
}

// NewRing builds a ring sized to hold up to protocol.MaxWindow in-flight
// segments.
func NewRing() *Ring {
	return &Ring{
		cap:   protocol.MaxWindow,
		slots: make([]*protocol.Packet, protocol.MaxWindow),
	}
}

func (r *Ring) slot(seqNo uint32) int {
	return int((seqNo / uint32(protocol.PayloadMax)) % uint32(r.cap))
}

// Store records a sent segment, keyed by its byte-offset seqno.
func (r *Ring) Store(pkt *protocol.Packet) {
	r.slots[r.slot(pkt.Header.SeqNo)] = pkt
}

// Get returns the segment occupying seqno's slot, if any, and whether its
// seqno actually matches (a stale, already-retired segment may still
// physically occupy the slot).
func (r *Ring) Get(seqNo uint32) (*protocol.Packet, bool) {
	p := r.slots[r.slot(seqNo)]
	if p == nil || p.Header.SeqNo != seqNo {
		return nil, false
	}
	return p, true
}

// Release clears the slot for seqno, but only if it still holds that exact
// segment — guards against releasing a slot a newer segment has since
// reoccupied.
func (r *Ring) Release(seqNo uint32) {
	idx := r.slot(seqNo)
	if p := r.slots[idx]; p != nil && p.Header.SeqNo == seqNo {
		r.slots[idx] = nil
	}
}

// ReleaseBelow clears every segment fully covered by a cumulative ACK of
// ackNo, i.e. every segment with seqno+data_size <= ackNo.
func (r *Ring) ReleaseBelow(ackNo uint32) {
	for i, p := range r.slots {
		if p != nil && p.Header.SeqNo+uint32(p.Header.DataSize) <= ackNo {
			r.slots[i] = nil
		}
	}
}

// RetiredBelow returns every segment fully covered by a cumulative ACK of
// ackNo, ordered by ascending seqno, without releasing them.
func (r *Ring) RetiredBelow(ackNo uint32) []*protocol.Packet {
	var out []*protocol.Packet
	for _, p := range r.slots {
		if p != nil && p.Header.SeqNo+uint32(p.Header.DataSize) <= ackNo {
			out = append(out, p)
		}
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].Header.SeqNo < out[j-1].Header.SeqNo; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// All returns every currently occupied segment, unordered.
func (r *Ring) All() []*protocol.Packet {
	out := make([]*protocol.Packet, 0, r.cap)
	for _, p := range r.slots {
		if p != nil {
			out = append(out, p)
		}
	}
	return out
}

// Oldest returns the occupied segment with the smallest seqno, used to
// identify send_base's segment for RTO re-arming.
func (r *Ring) Oldest() (*protocol.Packet, bool) {
	var best *protocol.Packet
	for _, p := range r.slots {
		if p == nil {
			continue
		}
		if best == nil || p.Header.SeqNo < best.Header.SeqNo {
			best = p
		}
	}
	if best == nil {
		return nil, false
	}
	return best, true
}

// Empty reports whether no segment is currently in flight.
func (r *Ring) Empty() bool {
	for _, p := range r.slots {
		if p != nil {
			return false
		}
	}
	return true
}

func (r *Ring) String() string {
	n := 0
	for _, p := range r.slots {
		if p != nil {
			n++
		}
	}
	return fmt.Sprintf("Ring{cap=%d, occupied=%d}", r.cap, n)
}
