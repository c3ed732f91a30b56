package sender

import "time"

// retransmitTimer is the single retransmission timer the sender loop
// shares with no other goroutine: it is a message producer feeding the
// same select loop that consumes ACKs, rather than a signal handler
// mutating state from another context. Only the main loop ever calls Arm,
// Disarm, or reads from C.
type retransmitTimer struct {
	timer *time.Timer
	armed bool
}

func newRetransmitTimer() *retransmitTimer {
	t := time.NewTimer(time.Hour)
	if !t.Stop() {
		<-t.C
	}
	return &retransmitTimer{timer: t}
}

// Arm (re)schedules the timer to fire once after d, canceling any pending
// fire first. Re-arming cancels and reschedules, never stacks.
func (r *retransmitTimer) Arm(d time.Duration) {
	r.stopAndDrain()
	r.timer.Reset(d)
	r.armed = true
}

// Disarm cancels a pending fire without scheduling a new one.
func (r *retransmitTimer) Disarm() {
	if !r.armed {
		return
	}
	r.stopAndDrain()
	r.armed = false
}

func (r *retransmitTimer) stopAndDrain() {
	if !r.timer.Stop() {
		select {
		case <-r.timer.C:
		default:
		}
	}
}

// C is the channel the main loop selects on; it fires at most once per
// arming.
func (r *retransmitTimer) C() <-chan time.Time {
	return r.timer.C
}
