package relay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/DoyleJ11/airdeck/internal/engine"
	"github.com/DoyleJ11/airdeck/internal/protocol"
	"github.com/DoyleJ11/airdeck/internal/screen"
)

var ErrConnectionLost = errors.New("connection to host lost")

// Upstream is a peer's single connection to the host.
type Upstream interface {
	Send(data []byte) error
	Recv(ctx context.Context) ([]byte, error)
	Close() error
}

type Dialer interface {
	Dial(ctx context.Context, room string) (Upstream, error)
}

type PeerConfig struct {
	Room   string
	Dialer Dialer
	// Same contract as HostConfig.Engine.
	Engine engine.Config
	Logger *zap.Logger
	// NewBackOff builds the retry policy for each connection attempt.
	// Defaults to exponential backoff without an elapsed-time limit.
	NewBackOff func() backoff.BackOff
}

type attached struct{ up Upstream }

type fromHost struct{ data []byte }

type connLost struct {
	up  Upstream
	err error
}

func (attached) isRelayMsg() {}
func (fromHost) isRelayMsg() {}
func (connLost) isRelayMsg() {}

// Peer mirrors the host's table on a remote screen.
type Peer struct {
	room       string
	dialer     Dialer
	newBackOff func() backoff.BackOff
	inbox      chan Msg
	done       chan struct{}
	ctx        context.Context
	cancel     context.CancelFunc
	log        *zap.Logger

	eng  *engine.Engine
	disp *Dispatcher
	up   Upstream

	redial chan struct{}
	lost   chan error
}

func NewPeer(parent context.Context, cfg PeerConfig) *Peer {
	ctx, cancel := context.WithCancel(parent)
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	p := &Peer{
		room:       cfg.Room,
		dialer:     cfg.Dialer,
		newBackOff: cfg.NewBackOff,
		inbox:      make(chan Msg, 64),
		done:       make(chan struct{}),
		ctx:        ctx,
		cancel:     cancel,
		log:        log.With(zap.String("room", cfg.Room)),
		redial:     make(chan struct{}, 1),
		lost:       make(chan error, 1),
	}
	if p.newBackOff == nil {
		p.newBackOff = func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.MaxElapsedTime = 0
			return b
		}
	}

	sched := cfg.Engine.Scheduler
	if sched == nil {
		sched = loopScheduler{base: engine.RealScheduler{}, post: p.post}
	}
	ecfg := cfg.Engine
	ecfg.Scheduler = sched
	if ecfg.Logger == nil {
		ecfg.Logger = p.log
	}
	p.eng = engine.New(ecfg)
	p.disp = NewDispatcher(p.eng, sched, p.log)
	p.disp.OnTable = p.installSend
	p.disp.OnReload = p.reload

	go p.loop()
	return p
}

func (p *Peer) Room() string { return p.room }

func (p *Peer) Inbox() chan<- Msg { return p.inbox }

func (p *Peer) Done() <-chan struct{} { return p.done }

func (p *Peer) Post(ctx context.Context, m Msg) error {
	select {
	case p.inbox <- m:
		return nil
	case <-p.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Peer) Do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	if err := p.Post(ctx, run{fn: fn, done: done}); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-p.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Peer) State(ctx context.Context) (View, error) {
	r := make(chan View, 1)
	if err := p.Post(ctx, GetState{Reply: r}); err != nil {
		return View{}, err
	}
	select {
	case v := <-r:
		return v, nil
	case <-p.done:
		return View{}, ErrClosed
	case <-ctx.Done():
		return View{}, ctx.Err()
	}
}

func (p *Peer) post(fn func()) {
	select {
	case p.inbox <- run{fn: fn}:
	case <-p.done:
	}
}

// Run keeps the peer connected until ctx ends, the session shuts down, or the
// host goes away without asking for a reload. Dial errors are retried.
func (p *Peer) Run(ctx context.Context) error {
	for {
		up, err := p.connect(ctx)
		if err != nil {
			return err
		}
		if err := p.Post(ctx, attached{up: up}); err != nil {
			_ = up.Close()
			return err
		}

		err = p.read(ctx, up)
		_ = p.Post(ctx, connLost{up: up, err: err})

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.done:
			return ErrClosed
		case <-p.redial:
		case err := <-p.lost:
			return err
		}
	}
}

func (p *Peer) connect(ctx context.Context) (Upstream, error) {
	var up Upstream
	op := func() error {
		u, err := p.dialer.Dial(ctx, p.room)
		if err != nil {
			return err
		}
		up = u
		return nil
	}
	notify := func(err error, next time.Duration) {
		p.log.Warn("connecting to host failed, retrying", zap.Error(err), zap.Duration("in", next))
	}
	if err := backoff.RetryNotify(op, backoff.WithContext(p.newBackOff(), ctx), notify); err != nil {
		return nil, fmt.Errorf("connect to room %s: %w", p.room, err)
	}
	return up, nil
}

func (p *Peer) read(ctx context.Context, up Upstream) error {
	for {
		data, err := up.Recv(ctx)
		if err != nil {
			return err
		}
		if err := p.Post(ctx, fromHost{data: data}); err != nil {
			return err
		}
	}
}

func (p *Peer) loop() {
	defer close(p.done)
	for {
		select {
		case <-p.ctx.Done():
			p.shutdown()
			return

		case m := <-p.inbox:
			switch msg := m.(type) {
			case attached:
				p.up = msg.up
				p.log.Info("connected to host")

			case fromHost:
				f, err := protocol.Decode(msg.data)
				if err != nil {
					p.log.Warn("dropping message", zap.Error(err))
					break
				}
				p.disp.Dispatch(f.Command)

			case connLost:
				p.connLost(msg)

			case Move:
				reply(msg.Reply, p.move(msg))

			case PointTo:
				p.pointTo(msg.Screen)

			case PointAt:
				if t := p.disp.Table(); t != nil {
					p.pointTo(screen.FromAngle(t, msg.Angle))
				}

			case ReloadScreens:
				p.sendUp(protocol.ReloadScreen{})
				p.disp.Dispatch(protocol.ReloadScreen{})

			case GetState:
				v := View{Room: p.room, Connected: p.up != nil, Viewport: p.eng.Viewport()}
				if t := p.disp.Table(); t != nil {
					v.Table = t.Clone()
				}
				reply(msg.Reply, v)

			case run:
				msg.fn()
				if msg.done != nil {
					close(msg.done)
				}

			case Shutdown:
				p.shutdown()
				return

			default:
				p.log.Debug("message not handled by peer", zap.String("type", fmt.Sprintf("%T", m)))
			}
		}
	}
}

func (p *Peer) pointTo(screen int) {
	p.disp.PointTo(screen)
	p.sendUp(protocol.PointToScreen{Screen: screen})
}

func (p *Peer) move(m Move) error {
	t := p.disp.Table()
	if t == nil {
		return ErrNoTable
	}
	return p.eng.MoveCard(t, m.Src, m.Dest, m.CardID, true)
}

// installSend wires the received table to the upstream connection, stamped
// with this screen's index.
func (p *Peer) installSend(t *engine.Table) {
	t.Send = func(c engine.Command) { p.sendUp(protocol.FromEngine(c)) }
}

func (p *Peer) sendUp(cmd protocol.Command) {
	t := p.disp.Table()
	if p.up == nil || t == nil {
		p.log.Debug("not connected, dropping outgoing command", zap.String("cmd", cmd.Cmd()))
		return
	}
	raw, err := protocol.Encode(t.LocalScreen, cmd)
	if err != nil {
		p.log.Error("encode", zap.String("cmd", cmd.Cmd()), zap.Error(err))
		return
	}
	if err := p.up.Send(raw); err != nil {
		p.log.Warn("send to host failed", zap.String("cmd", cmd.Cmd()), zap.Error(err))
	}
}

func (p *Peer) connLost(msg connLost) {
	if msg.up != p.up {
		// already replaced by a reload
		return
	}
	p.up = nil
	if p.disp.ReloadPending() {
		p.log.Info("host closed connection, waiting for reload")
		return
	}
	p.log.Warn("connection to host lost", zap.Error(msg.err))
	select {
	case p.lost <- fmt.Errorf("%w: %v", ErrConnectionLost, msg.err):
	default:
	}
}

// reload drops the table and reconnects; the host sends a fresh snapshot.
func (p *Peer) reload() {
	p.log.Info("reloading")
	if p.up != nil {
		_ = p.up.Close()
		p.up = nil
	}
	p.disp.Reset()
	select {
	case p.redial <- struct{}{}:
	default:
	}
}

func (p *Peer) shutdown() {
	if p.up != nil {
		_ = p.up.Close()
		p.up = nil
	}
	p.disp.Reset()
	p.cancel()
}
