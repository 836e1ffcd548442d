// Package enginetest provides deterministic time and randomness for engine tests.
package enginetest

import (
	"sort"
	"time"

	"github.com/DoyleJ11/airdeck/internal/engine"
)

type task struct {
	at      time.Duration
	seq     int
	fn      func()
	stopped bool
	fired   bool
}

func (t *task) Stop() bool {
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// ManualScheduler only runs callbacks when Advance moves its clock past them.
// It is not safe for concurrent use.
type ManualScheduler struct {
	now     time.Duration
	seq     int
	pending []*task
}

var _ engine.Scheduler = (*ManualScheduler)(nil)

func NewManualScheduler() *ManualScheduler { return &ManualScheduler{} }

func (s *ManualScheduler) AfterFunc(d time.Duration, f func()) engine.Timer {
	s.seq++
	t := &task{at: s.now + d, seq: s.seq, fn: f}
	s.pending = append(s.pending, t)
	return t
}

// Now is the time elapsed since the scheduler was created.
func (s *ManualScheduler) Now() time.Duration { return s.now }

// Pending counts callbacks that are neither fired nor stopped.
func (s *ManualScheduler) Pending() int {
	n := 0
	for _, t := range s.pending {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

// Advance moves the clock forward by d, firing due callbacks in time order.
// Callbacks scheduled while advancing fire too if they fall inside the window.
func (s *ManualScheduler) Advance(d time.Duration) {
	target := s.now + d
	for {
		next := s.next(target)
		if next == nil {
			break
		}
		s.now = next.at
		next.fired = true
		next.fn()
	}
	s.now = target
}

func (s *ManualScheduler) next(target time.Duration) *task {
	live := s.pending[:0]
	for _, t := range s.pending {
		if !t.stopped && !t.fired {
			live = append(live, t)
		}
	}
	s.pending = live
	sort.SliceStable(s.pending, func(i, j int) bool {
		if s.pending[i].at != s.pending[j].at {
			return s.pending[i].at < s.pending[j].at
		}
		return s.pending[i].seq < s.pending[j].seq
	})
	if len(s.pending) == 0 || s.pending[0].at > target {
		return nil
	}
	return s.pending[0]
}

// SeqRand returns Values in a cycle and shuffles by reversing.
type SeqRand struct {
	Values []float64
	i      int
}

var _ engine.Rand = (*SeqRand)(nil)

func (r *SeqRand) Float64() float64 {
	if len(r.Values) == 0 {
		return 0
	}
	v := r.Values[r.i%len(r.Values)]
	r.i++
	return v
}

func (r *SeqRand) Shuffle(n int, swap func(i, j int)) {
	for i := 0; i < n/2; i++ {
		swap(i, n-1-i)
	}
}
