package relay

import (
	"github.com/DoyleJ11/airdeck/internal/engine"
	"github.com/DoyleJ11/airdeck/internal/geom"
)

// Msg is anything a Host or Peer accepts on its inbox. Peers ignore the
// host-only messages.
type Msg interface{ isRelayMsg() }

// Join registers a peer connection with the host.
type Join struct {
	Conn  Conn
	Reply chan JoinResult
}

type JoinResult struct {
	Screen   int
	Accepted bool
}

// Leave reports that Conn, registered as Screen, has gone away. Screen
// numbers restart after a reload, so the host only acts while Conn still
// holds that screen.
type Leave struct {
	Screen int
	Conn   Conn
}

// FromPeer carries one raw wire message read from Conn, registered as Screen.
type FromPeer struct {
	Screen int
	Conn   Conn
	Data   []byte
}

// Move moves a card on the local table and publishes it. Reply is optional.
type Move struct {
	Src    string
	Dest   string
	CardID string
	Reply  chan error
}

type PointTo struct{ Screen int }

// PointAt points toward whichever screen sits closest to Angle, in degrees,
// as seen from this screen.
type PointAt struct{ Angle float64 }

// ReloadScreens makes every screen, this one included, reload.
type ReloadScreens struct{}

type SetOpen struct{ Open bool }

type GetState struct {
	Reply chan View
}

type Shutdown struct{}

type run struct {
	fn   func()
	done chan struct{}
}

// View is a copy of session state safe to read from any goroutine.
type View struct {
	Room      string
	Screens   []int
	Connected bool
	Table     *engine.Table
	// Viewport is the local screen size the session lays cards out in.
	Viewport geom.Size
}

func (Join) isRelayMsg()          {}
func (Leave) isRelayMsg()         {}
func (FromPeer) isRelayMsg()      {}
func (Move) isRelayMsg()          {}
func (PointTo) isRelayMsg()       {}
func (PointAt) isRelayMsg()       {}
func (ReloadScreens) isRelayMsg() {}
func (SetOpen) isRelayMsg()       {}
func (GetState) isRelayMsg()      {}
func (Shutdown) isRelayMsg()      {}
func (run) isRelayMsg()           {}

func reply[T any](ch chan T, v T) {
	if ch == nil {
		return
	}
	select {
	case ch <- v:
	default:
	}
}
