package hub

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/DoyleJ11/airdeck/internal/relay"
)

var ErrRoomExists = errors.New("room already exists")

// Factory starts the host session for a room.
type Factory func(ctx context.Context, code, source string) (*relay.Host, error)

type HubMsg interface{ isHubMsg() }

type RoomReply struct {
	Host *relay.Host
	Err  error
}

// CreateRoom fails with ErrRoomExists when code is taken.
type CreateRoom struct {
	Code   string
	Source string
	Reply  chan RoomReply
}

type GetRoom struct {
	Code  string
	Reply chan *relay.Host
}

// EnsureRoom returns the existing room or creates it from Source.
type EnsureRoom struct {
	Code   string
	Source string // only used if creation happens
	Reply  chan RoomReply
}

type RemoveRoom struct {
	Code string
}

type ListRooms struct {
	Reply chan []string
}

type ShutdownHub struct{}

func (CreateRoom) isHubMsg()  {}
func (GetRoom) isHubMsg()     {}
func (EnsureRoom) isHubMsg()  {}
func (RemoveRoom) isHubMsg()  {}
func (ListRooms) isHubMsg()   {}
func (ShutdownHub) isHubMsg() {}

type Hub struct {
	inbox   chan HubMsg
	rooms   map[string]*relay.Host
	factory Factory
	log     *zap.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewHub(parent context.Context, factory Factory, log *zap.Logger) *Hub {
	ctx, cancel := context.WithCancel(parent)
	if log == nil {
		log = zap.NewNop()
	}
	h := &Hub{
		inbox:   make(chan HubMsg, 64),
		rooms:   make(map[string]*relay.Host),
		factory: factory,
		log:     log,
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) Done() <-chan struct{} { return h.done }

func (h *Hub) loop() {
	defer close(h.done)
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case CreateRoom:
				if h.live(msg.Code) != nil {
					msg.Reply <- RoomReply{Err: ErrRoomExists}
					break
				}
				msg.Reply <- h.create(msg.Code, msg.Source)

			case GetRoom:
				msg.Reply <- h.live(msg.Code) // May be nil

			case EnsureRoom:
				if host := h.live(msg.Code); host != nil {
					msg.Reply <- RoomReply{Host: host}
					break
				}
				msg.Reply <- h.create(msg.Code, msg.Source)

			case RemoveRoom:
				if host := h.rooms[msg.Code]; host != nil {
					stop(host)
					delete(h.rooms, msg.Code)
					h.log.Info("room removed", zap.String("room", msg.Code))
				}

			case ListRooms:
				codes := make([]string, 0, len(h.rooms))
				for code := range h.rooms {
					if h.live(code) != nil {
						codes = append(codes, code)
					}
				}
				msg.Reply <- codes

			case ShutdownHub:
				h.shutdown()
				return
			}
		}
	}
}

// live returns the room's host unless its session has ended, in which case
// the room is forgotten.
func (h *Hub) live(code string) *relay.Host {
	host := h.rooms[code]
	if host == nil {
		return nil
	}
	select {
	case <-host.Done():
		delete(h.rooms, code)
		return nil
	default:
		return host
	}
}

func (h *Hub) create(code, source string) RoomReply {
	host, err := h.factory(h.ctx, code, source)
	if err != nil {
		h.log.Warn("create room failed", zap.String("room", code), zap.Error(err))
		return RoomReply{Err: err}
	}
	h.rooms[code] = host
	h.log.Info("room created", zap.String("room", code), zap.String("source", source))
	return RoomReply{Host: host}
}

func (h *Hub) shutdown() {
	for _, host := range h.rooms {
		stop(host)
	}
	clear(h.rooms)
	h.cancel()
}

func stop(host *relay.Host) {
	select {
	case host.Inbox() <- relay.Shutdown{}:
	case <-host.Done():
	}
}
