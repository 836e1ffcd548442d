package relay

import (
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/airdeck/internal/engine"
	"github.com/DoyleJ11/airdeck/internal/protocol"
)

const (
	PointExpiry   = 2000 * time.Millisecond
	ReloadStagger = 1000 * time.Millisecond
	RejectGrace   = 500 * time.Millisecond
)

// Dispatcher applies incoming commands to the table held by one session.
// It is owned by the session goroutine and must not be shared.
type Dispatcher struct {
	eng   *engine.Engine
	sched engine.Scheduler
	log   *zap.Logger
	table *engine.Table

	// OnTable runs after a snapshot replaced the table.
	OnTable func(*engine.Table)
	// OnReload runs once the reload stagger has elapsed.
	OnReload func()

	pointGen    uint64
	pointTimer  engine.Timer
	reloadTimer engine.Timer
}

func NewDispatcher(e *engine.Engine, sched engine.Scheduler, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{eng: e, sched: sched, log: log}
}

// Table is nil until the first snapshot arrives.
func (d *Dispatcher) Table() *engine.Table { return d.table }

// SetTable replaces the table. A receiver that already holds one keeps its own
// LocalScreen so a peer never takes on the host's or another peer's screen.
func (d *Dispatcher) SetTable(t *engine.Table) {
	if d.table != nil {
		t.LocalScreen = d.table.LocalScreen
	}
	d.table = t
	if d.OnTable != nil {
		d.OnTable(t)
	}
}

// Reset drops the table and any pending timers.
func (d *Dispatcher) Reset() {
	d.table = nil
	d.pointGen++
	if d.pointTimer != nil {
		d.pointTimer.Stop()
		d.pointTimer = nil
	}
	if d.reloadTimer != nil {
		d.reloadTimer.Stop()
		d.reloadTimer = nil
	}
}

func (d *Dispatcher) ReloadPending() bool { return d.reloadTimer != nil }

func (d *Dispatcher) Dispatch(cmd protocol.Command) {
	if st, ok := cmd.(protocol.SetTable); ok {
		if st.Table == nil {
			return
		}
		d.SetTable(st.Table)
		return
	}
	if d.table == nil {
		d.log.Debug("no table yet, dropping command", zap.String("cmd", cmd.Cmd()))
		return
	}

	switch c := cmd.(type) {
	case protocol.MoveCard:
		// this message is already the broadcast
		if err := d.eng.MoveCard(d.table, c.Src, c.Dest, c.CardID, false); err != nil {
			d.log.Warn("move-card failed", zap.String("src", c.Src), zap.String("dest", c.Dest), zap.Error(err))
		}
	case protocol.ReloadScreen:
		d.ScheduleReload()
	case protocol.PointToScreen:
		d.PointTo(c.Screen)
	default:
		d.log.Debug("ignoring command", zap.String("cmd", cmd.Cmd()))
	}
}

// PointTo sets the pointer target and clears it after PointExpiry unless a
// newer target was set in the meantime.
func (d *Dispatcher) PointTo(screen int) {
	if d.table == nil {
		return
	}
	d.table.PointToScreen = screen
	if d.pointTimer != nil {
		d.pointTimer.Stop()
	}
	d.pointGen++
	gen := d.pointGen
	d.pointTimer = d.sched.AfterFunc(PointExpiry, func() {
		if gen != d.pointGen || d.table == nil {
			return
		}
		d.table.PointToScreen = 0
		d.pointTimer = nil
	})
}

// ScheduleReload runs OnReload after ReloadStagger per local screen so peers
// come back in screen order. Requests while one is pending are folded into it.
func (d *Dispatcher) ScheduleReload() {
	if d.table == nil || d.reloadTimer != nil {
		return
	}
	delay := ReloadStagger * time.Duration(d.table.LocalScreen)
	d.log.Info("reload scheduled", zap.Int("screen", d.table.LocalScreen), zap.Duration("in", delay))
	d.reloadTimer = d.sched.AfterFunc(delay, func() {
		d.reloadTimer = nil
		if d.OnReload != nil {
			d.OnReload()
		}
	})
}
