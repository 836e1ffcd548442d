package relay

import (
	"time"

	"github.com/DoyleJ11/airdeck/internal/engine"
)

// loopScheduler hands expired callbacks back to the session goroutine.
type loopScheduler struct {
	base engine.Scheduler
	post func(fn func())
}

func (s loopScheduler) AfterFunc(d time.Duration, f func()) engine.Timer {
	return s.base.AfterFunc(d, func() { s.post(f) })
}
