package relay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/airdeck/internal/engine"
	"github.com/DoyleJ11/airdeck/internal/loader"
	"github.com/DoyleJ11/airdeck/internal/protocol"
	"github.com/DoyleJ11/airdeck/internal/screen"
)

var (
	ErrClosed  = errors.New("relay session closed")
	ErrNoTable = errors.New("no table")
)

const loadTimeout = 30 * time.Second

type HostConfig struct {
	Room    string
	Source  string
	Fetcher loader.Fetcher
	// Engine.Scheduler, when set, must only fire callbacks on the session
	// goroutine (drive it through Host.Do). Nil means real timers.
	Engine engine.Config
	Logger *zap.Logger
}

// Host owns the authoritative table of a room. Every mutation, from peers,
// local commands or timers, is applied on the loop goroutine.
type Host struct {
	room   string
	source string
	inbox  chan Msg
	done   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	log    *zap.Logger

	eng     *engine.Engine
	sched   engine.Scheduler
	load    *loader.Loader
	disp    *Dispatcher
	screens registry
}

// NewHost loads the table from cfg.Source and starts the session.
func NewHost(parent context.Context, cfg HostConfig) (*Host, error) {
	ctx, cancel := context.WithCancel(parent)
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	h := &Host{
		room:   cfg.Room,
		source: cfg.Source,
		inbox:  make(chan Msg, 64),
		done:   make(chan struct{}),
		ctx:    ctx,
		cancel: cancel,
		log:    log.With(zap.String("room", cfg.Room)),
	}

	h.sched = cfg.Engine.Scheduler
	if h.sched == nil {
		h.sched = loopScheduler{base: engine.RealScheduler{}, post: h.post}
	}
	ecfg := cfg.Engine
	ecfg.Scheduler = h.sched
	if ecfg.Logger == nil {
		ecfg.Logger = h.log
	}
	h.eng = engine.New(ecfg)
	h.load = loader.New(cfg.Fetcher, h.eng, h.log)
	h.disp = NewDispatcher(h.eng, h.sched, h.log)
	h.disp.OnTable = h.installSend
	h.disp.OnReload = h.reload

	lctx, lcancel := context.WithTimeout(ctx, loadTimeout)
	defer lcancel()
	t, err := h.load.Load(lctx, cfg.Source)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("host room %s: %w", cfg.Room, err)
	}
	h.disp.SetTable(t)

	go h.loop()
	return h, nil
}

func (h *Host) Room() string { return h.room }

// Inbox exposes the inbox so the transport and tests can send messages.
func (h *Host) Inbox() chan<- Msg { return h.inbox }

// Done is closed once the session has stopped.
func (h *Host) Done() <-chan struct{} { return h.done }

// Post delivers m unless the session is gone or ctx ends first.
func (h *Host) Post(ctx context.Context, m Msg) error {
	select {
	case h.inbox <- m:
		return nil
	case <-h.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Do runs fn on the session goroutine and waits for it.
func (h *Host) Do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	if err := h.Post(ctx, run{fn: fn, done: done}); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-h.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Host) State(ctx context.Context) (View, error) {
	r := make(chan View, 1)
	if err := h.Post(ctx, GetState{Reply: r}); err != nil {
		return View{}, err
	}
	select {
	case v := <-r:
		return v, nil
	case <-h.done:
		return View{}, ErrClosed
	case <-ctx.Done():
		return View{}, ctx.Err()
	}
}

// post is used by timers, which fire off the loop goroutine.
func (h *Host) post(fn func()) {
	select {
	case h.inbox <- run{fn: fn}:
	case <-h.done:
	}
}

func (h *Host) loop() {
	defer close(h.done)
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case Join:
				reply(msg.Reply, h.join(msg.Conn))

			case Leave:
				if h.screens.holds(msg.Screen, msg.Conn) && h.screens.kill(msg.Screen) {
					h.log.Info("screen disconnected", zap.Int("screen", msg.Screen))
				}

			case FromPeer:
				h.fromPeer(msg.Screen, msg.Conn, msg.Data)

			case Move:
				reply(msg.Reply, h.move(msg))

			case PointTo:
				h.pointTo(msg.Screen)

			case PointAt:
				h.pointTo(screen.FromAngle(h.table(), msg.Angle))

			case ReloadScreens:
				h.broadcast(protocol.ReloadScreen{}, 0)
				h.disp.Dispatch(protocol.ReloadScreen{})

			case SetOpen:
				h.table().Open = msg.Open
				h.log.Info("table open changed", zap.Bool("open", msg.Open))

			case GetState:
				// reflect internal state without data races
				reply(msg.Reply, View{
					Room:      h.room,
					Screens:   h.screens.live(),
					Connected: true,
					Table:     h.table().Clone(),
					Viewport:  h.eng.Viewport(),
				})

			case run:
				msg.fn()
				if msg.done != nil {
					close(msg.done)
				}

			case Shutdown:
				h.shutdown()
				return
			}
		}
	}
}

func (h *Host) table() *engine.Table { return h.disp.Table() }

func (h *Host) join(c Conn) JoinResult {
	t := h.table()
	if !t.Open {
		h.log.Info("rejecting screen, table closed")
		h.sched.AfterFunc(RejectGrace, func() { _ = c.Close() })
		return JoinResult{}
	}

	screen := h.screens.add(c)
	h.eng.CreateStack(t, engine.Stack{
		Screen:       screen,
		Style:        engine.StyleSideBySide,
		Taking:       engine.TakingOne,
		DefaultStack: true,
		AutoArrange:  true,
	})
	t.ScreenAmount++
	h.log.Info("screen connected", zap.Int("screen", screen), zap.Int("screenAmount", t.ScreenAmount))

	h.sendSnapshots()
	return JoinResult{Screen: screen, Accepted: true}
}

// sendSnapshots sends the whole table to every screen, each copy carrying the
// receiver's own screen index.
func (h *Host) sendSnapshots() {
	t := h.table()
	defer func() { t.LocalScreen = 0 }()
	h.screens.each(0, func(screen int, c Conn) {
		t.LocalScreen = screen
		raw, err := protocol.Encode(0, protocol.SetTable{Table: t})
		if err != nil {
			h.log.Error("encode snapshot", zap.Error(err))
			return
		}
		h.send(screen, c, raw)
	})
}

func (h *Host) fromPeer(screen int, c Conn, data []byte) {
	if !h.screens.holds(screen, c) {
		h.log.Debug("dropping message from stale connection", zap.Int("screen", screen))
		return
	}
	f, err := protocol.Decode(data)
	if err != nil {
		h.log.Warn("dropping message", zap.Int("screen", screen), zap.Error(err))
		return
	}
	if f.Sender != nil && *f.Sender != screen {
		h.log.Debug("sender does not match connection", zap.Int("screen", screen), zap.Int("sender", *f.Sender))
	}
	h.disp.Dispatch(f.Command)
	h.broadcast(f.Command, screen)
}

func (h *Host) pointTo(screen int) {
	h.disp.PointTo(screen)
	h.broadcast(protocol.PointToScreen{Screen: screen}, 0)
}

func (h *Host) move(m Move) error {
	return h.eng.MoveCard(h.table(), m.Src, m.Dest, m.CardID, true)
}

func (h *Host) installSend(t *engine.Table) {
	t.Send = func(c engine.Command) { h.broadcast(protocol.FromEngine(c), 0) }
}

// broadcast relays cmd, stamped as coming from the host, to every live screen
// except skip.
func (h *Host) broadcast(cmd protocol.Command, skip int) {
	raw, err := protocol.Encode(0, cmd)
	if err != nil {
		h.log.Error("encode broadcast", zap.String("cmd", cmd.Cmd()), zap.Error(err))
		return
	}
	h.screens.each(skip, func(screen int, c Conn) { h.send(screen, c, raw) })
}

func (h *Host) send(screen int, c Conn, raw []byte) {
	if err := c.Send(raw); err != nil {
		h.log.Warn("send failed, dropping screen", zap.Int("screen", screen), zap.Error(err))
		h.screens.kill(screen)
	}
}

// reload fetches the table again and forgets every screen. Peers reconnect in
// screen order after their own stagger and get their old numbers back.
func (h *Host) reload() {
	ctx, cancel := context.WithTimeout(h.ctx, loadTimeout)
	defer cancel()
	t, err := h.load.Load(ctx, h.source)
	if err != nil {
		h.log.Error("reload failed, keeping current table", zap.Error(err))
		return
	}
	if err := h.screens.reset(); err != nil {
		h.log.Warn("closing screens", zap.Error(err))
	}
	h.disp.Reset()
	h.disp.SetTable(t)
	h.log.Info("table reloaded", zap.String("table", t.ID))
}

func (h *Host) shutdown() {
	if err := h.screens.reset(); err != nil {
		h.log.Warn("closing screens", zap.Error(err))
	}
	h.disp.Reset()
	h.cancel()
}
