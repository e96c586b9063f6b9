package engine

import (
	"math"
	"sync"
	"time"
)

// DefaultMatchTau is the time constant of the match-phase progress curve.
const DefaultMatchTau = 5 * time.Second

// phaseBands are the percent ranges each phase reports within.
var phaseBands = map[Phase][2]float64{
	PhaseScope:    {0, 5},
	PhaseMatch:    {5, 80},
	PhaseBackfill: {80, 85},
	PhaseDedup:    {85, 88},
	PhasePromote:  {88, 95},
	PhaseFilter:   {95, 99},
}

// ProgressEstimator turns the current phase and the time spent in it into
// a percentage. The match phase is one opaque statement, so its share
// approaches the top of its band as lo + (hi-lo)*(1-exp(-elapsed/tau)).
//
// Reported values never decrease and reach 100 only after Finish.
//
// Thread-safety: ProgressEstimator is safe for concurrent use.
type ProgressEstimator struct {
	mu      sync.Mutex
	now     func() time.Time
	tau     time.Duration
	phase   Phase
	entered time.Time
	last    float64
	done    bool
}

// NewProgressEstimator creates an estimator. A nil now means time.Now;
// a zero tau means DefaultMatchTau.
func NewProgressEstimator(now func() time.Time, tau time.Duration) *ProgressEstimator {
	if now == nil {
		now = time.Now
	}
	if tau <= 0 {
		tau = DefaultMatchTau
	}
	return &ProgressEstimator{now: now, tau: tau}
}

// Enter records the start of phase p.
func (e *ProgressEstimator) Enter(p Phase) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.phase = p
	e.entered = e.now()
}

// Finish marks the search complete.
func (e *ProgressEstimator) Finish() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.done = true
	e.last = 100
}

// Percent returns the current estimate in [0, 100].
func (e *ProgressEstimator) Percent() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.done {
		return 100
	}
	band, ok := phaseBands[e.phase]
	if !ok {
		return int(e.last)
	}
	v := band[0]
	if e.phase == PhaseMatch {
		elapsed := e.now().Sub(e.entered)
		v += (band[1] - band[0]) * (1 - math.Exp(-float64(elapsed)/float64(e.tau)))
	}
	if v > 99 {
		v = 99
	}
	if v > e.last {
		e.last = v
	}
	return int(e.last)
}
