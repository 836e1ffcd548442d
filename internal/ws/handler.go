package ws

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/DoyleJ11/airdeck/internal/hub"
	"github.com/DoyleJ11/airdeck/internal/relay"
)

var (
	ErrOutboxFull = errors.New("outbox full")
	ErrConnClosed = errors.New("connection closed")
)

const (
	outboxSize   = 64
	writeTimeout = 3 * time.Second
	leaveTimeout = time.Second
)

// hostConn is the relay's view of an accepted websocket. Send only queues;
// writeLoop does the writing.
type hostConn struct {
	out  chan []byte
	done chan struct{}
	once sync.Once
}

func newHostConn() *hostConn {
	return &hostConn{out: make(chan []byte, outboxSize), done: make(chan struct{})}
}

func (c *hostConn) Send(b []byte) error {
	select {
	case <-c.done:
		return ErrConnClosed
	default:
	}
	select {
	case c.out <- b:
		return nil
	default:
		return ErrOutboxFull
	}
}

func (c *hostConn) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

// writeLoop drains the outbox until the relay closes the connection, then
// flushes what is left and closes the websocket.
func writeLoop(ctx context.Context, conn *websocket.Conn, c *hostConn, log *zap.Logger) {
	write := func(b []byte) bool {
		wctx, cancel := context.WithTimeout(ctx, writeTimeout)
		defer cancel()
		if err := conn.Write(wctx, websocket.MessageText, b); err != nil {
			log.Debug("write failed", zap.Error(err))
			_ = c.Close()
			return false
		}
		return true
	}

	for {
		select {
		case b := <-c.out:
			if !write(b) {
				return
			}
		case <-c.done:
			for {
				select {
				case b := <-c.out:
					if !write(b) {
						return
					}
				default:
					_ = conn.Close(websocket.StatusNormalClosure, "bye")
					return
				}
			}
		case <-ctx.Done():
			return
		}
	}
}

func lookupRoom(ctx context.Context, h *hub.Hub, code string) *relay.Host {
	reply := make(chan *relay.Host, 1)
	select {
	case h.Inbox() <- hub.GetRoom{Code: code, Reply: reply}:
	case <-ctx.Done():
		return nil
	}
	select {
	case host := <-reply:
		return host
	case <-ctx.Done():
		return nil
	}
}

// Handler upgrades a peer screen's connection and attaches it to the room's host.
func Handler(h *hub.Hub, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		room := chi.URLParam(r, "room")
		host := lookupRoom(r.Context(), h, room)
		if host == nil {
			http.Error(w, "room not found", http.StatusNotFound)
			return
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			// Screens are served from anywhere on the local network.
			InsecureSkipVerify: true,
		})
		if err != nil {
			log.Warn("websocket accept failed", zap.String("room", room), zap.Error(err))
			return
		}
		defer conn.CloseNow()

		ctx := r.Context()
		hc := newHostConn()
		defer hc.Close()

		writeDone := make(chan struct{})
		go func() {
			defer close(writeDone)
			writeLoop(ctx, conn, hc, log)
		}()

		reply := make(chan relay.JoinResult, 1)
		if err := host.Post(ctx, relay.Join{Conn: hc, Reply: reply}); err != nil {
			return
		}
		var res relay.JoinResult
		select {
		case res = <-reply:
		case <-host.Done():
			return
		case <-ctx.Done():
			return
		}
		if !res.Accepted {
			// the host closes us after its grace period
			select {
			case <-writeDone:
			case <-ctx.Done():
			}
			return
		}

		log := log.With(zap.String("room", room), zap.Int("screen", res.Screen))
		log.Info("screen attached")
		defer func() {
			lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), leaveTimeout)
			defer cancel()
			_ = host.Post(lctx, relay.Leave{Screen: res.Screen, Conn: hc})
		}()

		// Reader loop
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
					log.Info("screen left")
				default:
					log.Info("screen connection ended", zap.Error(err))
				}
				return
			}
			if err := host.Post(ctx, relay.FromPeer{Screen: res.Screen, Conn: hc, Data: data}); err != nil {
				return
			}
		}
	}
}
