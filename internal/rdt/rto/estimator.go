// Package rto implements the Jacobson/Karels smoothed round-trip time
// estimator that drives the sender's retransmission timeout.
package rto

import (
	"sync"
	"time"
)

const (
	// InitialRTO is the timeout used before any RTT sample has been taken.
	InitialRTO = 3000 * time.Millisecond

	// MinRTO and MaxRTO clamp every computed RTO.
	MinRTO = 100 * time.Millisecond
	MaxRTO = 6000 * time.Millisecond

	// Alpha and Beta are the EWMA gains for SRTT and RTTVAR.
	Alpha = 0.125
	Beta  = 0.25

	// K scales RTTVAR's contribution to RTO, per RFC 6298.
	K = 4.0
)

// Estimator tracks smoothed RTT, RTT variance, and the derived RTO. It is
// safe for concurrent use, though the sender's single-goroutine design means
// calls are serialized in practice.
type Estimator struct {
	mu sync.Mutex

	hasSample bool
	srtt      time.Duration
	rttvar    time.Duration
	rto       time.Duration

	// consecutiveTimeouts counts timer expiries since the last RTT sample.
	// Backoff only kicks in once this exceeds 1: the first timeout in a
	// run relies on the estimator's own RTO, the second and later ones
	// distrust it further.
	consecutiveTimeouts int

	// minRTO and maxRTO override MinRTO/MaxRTO when non-zero.
	minRTO time.Duration
	maxRTO time.Duration
}

// NewEstimator returns an estimator seeded at InitialRTO, as used before any
// RTT sample exists.
func NewEstimator() *Estimator {
	return &Estimator{rto: InitialRTO}
}

// NewEstimatorWithBounds returns an estimator using caller-supplied bounds in
// place of the package defaults, for operators overriding spec.md's fixed
// constants through config.
func NewEstimatorWithBounds(initial, min, max time.Duration) *Estimator {
	return &Estimator{rto: initial, minRTO: min, maxRTO: max}
}

// Sample folds a fresh RTT measurement into the estimator and recomputes
// RTO. Callers must only pass RTTs measured on segments that were never
// retransmitted (Karn's algorithm) — this package does not itself enforce
// that exclusion.
func (e *Estimator) Sample(rtt time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.hasSample {
		e.srtt = rtt
		e.rttvar = rtt / 2
		e.hasSample = true
	} else {
		diff := e.srtt - rtt
		if diff < 0 {
			diff = -diff
		}
		e.rttvar = time.Duration((1-Beta)*float64(e.rttvar) + Beta*float64(diff))
		e.srtt = time.Duration((1-Alpha)*float64(e.srtt) + Alpha*float64(rtt))
	}

	e.rto = e.clamp(e.srtt + time.Duration(K*float64(e.rttvar)))
	e.consecutiveTimeouts = 0
}

// Timeout records a retransmission timer expiry. The first timeout in a run
// leaves RTO as the estimator computed it; the second and every subsequent
// consecutive timeout (no RTT sample in between) doubles it, independent of
// srtt/rttvar. Counting resets on the next successful Sample.
func (e *Estimator) Timeout() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.consecutiveTimeouts++
	if e.consecutiveTimeouts > 1 {
		e.rto = e.clamp(e.rto * 2)
	}
}

// RTO returns the current retransmission timeout.
func (e *Estimator) RTO() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rto
}

// Statistics returns a snapshot suitable for logging.
func (e *Estimator) Statistics() map[string]interface{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	return map[string]interface{}{
		"srtt":                 e.srtt,
		"rttvar":               e.rttvar,
		"rto":                  e.rto,
		"has_sample":           e.hasSample,
		"consecutive_timeouts": e.consecutiveTimeouts,
	}
}

func (e *Estimator) clamp(d time.Duration) time.Duration {
	min, max := MinRTO, MaxRTO
	if e.minRTO > 0 {
		min = e.minRTO
	}
	if e.maxRTO > 0 {
		max = e.maxRTO
	}
	if d < min {
		return min
	}
	if d > max {
		return max
	}
	return d
}
