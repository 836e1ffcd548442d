package engine

import "time"

// Timer is a handle to a pending scheduled call.
type Timer interface {
	Stop() bool
}

// Scheduler runs f once after d. Relay sessions supply one that hands f back to
// the goroutine owning the table.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type RealScheduler struct{}

func (RealScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Rand is the randomness the engine consumes. *math/rand.Rand satisfies it.
type Rand interface {
	Float64() float64
	Shuffle(n int, swap func(i, j int))
}
