// Package congestion implements the TCP-Reno-style slow-start /
// congestion-avoidance state machine that governs the sender's window size.
package congestion

import (
	"fmt"
	"sync"

	"github.com/aetherflow/rdt-sender/internal/rdt/protocol"
)

// InitialSSThresh and MaxWindow mirror the protocol package's sizing
// constants; duplicated here as named constants so this package reads
// standalone.
const (
	InitialSSThresh = protocol.InitialSSThresh
	MaxWindow       = protocol.MaxWindow
)

// State is one of the two congestion-control phases.
type State int

const (
	SlowStart State = iota
	CongestionAvoidance
)

func (s State) String() string {
	switch s {
	case SlowStart:
		return "SLOW_START"
	case CongestionAvoidance:
		return "CONGESTION_AVOIDANCE"
	default:
		return "UNKNOWN"
	}
}

// Controller tracks CWND, its fractional accumulator, SSTHRESH, and the
// current state, per the new-ACK / triple-dup-ACK / timeout event table.
type Controller struct {
	mu sync.Mutex

	cwnd           int
	fractionalCwnd float64
	ssthresh       int
	state          State
	maxWindow      int
}

// NewController returns a controller starting in SLOW_START with cwnd=1.
func NewController() *Controller {
	return &Controller{
		cwnd:      1,
		ssthresh:  InitialSSThresh,
		state:     SlowStart,
		maxWindow: MaxWindow,
	}
}

// NewControllerWithLimits returns a controller using caller-supplied
// ssthresh and window-size limits in place of the package defaults, for
// operators overriding spec.md's fixed constants through config. maxWindow
// is clamped to the retransmission ring's fixed capacity: a window larger
// than the ring would let live segments alias the same slot.
func NewControllerWithLimits(initialSSThresh, maxWindow int) *Controller {
	if maxWindow <= 0 || maxWindow > MaxWindow {
		maxWindow = MaxWindow
	}
	return &Controller{
		cwnd:      1,
		ssthresh:  initialSSThresh,
		state:     SlowStart,
		maxWindow: maxWindow,
	}
}

// OnNewAck applies the growth rule for a cumulative ACK that advanced
// send_base. It is called once per segment that ACK retires.
func (c *Controller) OnNewAck() {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case SlowStart:
		c.cwnd++
		if c.cwnd > c.maxWindow {
			c.cwnd = c.maxWindow
		}
		if c.cwnd >= c.ssthresh {
			c.state = CongestionAvoidance
			c.fractionalCwnd = float64(c.cwnd)
		}
	case CongestionAvoidance:
		if c.fractionalCwnd <= 0 {
			c.fractionalCwnd = float64(c.cwnd)
		}
		c.fractionalCwnd += 1 / c.fractionalCwnd
		c.cwnd = int(c.fractionalCwnd)
		if c.cwnd > c.maxWindow {
			c.cwnd = c.maxWindow
		}
	}
}

// OnTripleDupAck applies fast-retransmit's window collapse: cwnd=1,
// ssthresh halved (floor 2), state reset to SLOW_START.
func (c *Controller) OnTripleDupAck() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.collapse()
}

// OnTimeout applies the retransmission-timeout window collapse, identical
// in effect to a triple duplicate ACK.
func (c *Controller) OnTimeout() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.collapse()
}

func (c *Controller) collapse() {
	half := c.cwnd / 2
	if half < 2 {
		half = 2
	}
	c.ssthresh = half
	c.cwnd = 1
	c.fractionalCwnd = 0
	c.state = SlowStart
}

// CWND returns the current congestion window in packets.
func (c *Controller) CWND() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cwnd
}

// SSThresh returns the current slow-start threshold.
func (c *Controller) SSThresh() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ssthresh
}

// StateValue returns the current congestion state.
func (c *Controller) StateValue() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Statistics returns a snapshot suitable for logging and CSV rows.
func (c *Controller) Statistics() map[string]interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	cwndOrFractional := float64(c.cwnd)
	if c.state == CongestionAvoidance {
		cwndOrFractional = c.fractionalCwnd
	}
	return map[string]interface{}{
		"cwnd":               c.cwnd,
		"fractional_cwnd":    c.fractionalCwnd,
		"ssthresh":           c.ssthresh,
		"state":              c.state.String(),
		"cwnd_or_fractional": cwndOrFractional,
	}
}

func (c *Controller) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return fmt.Sprintf("Controller{cwnd=%d, ssthresh=%d, state=%s}", c.cwnd, c.ssthresh, c.state)
}
