package ws

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/DoyleJ11/airdeck/internal/relay"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10 // send ping slightly before timeout
	writeWait  = 5 * time.Second
)

// Dialer connects peer screens to a host's /rooms/{room}/ws endpoint.
type Dialer struct {
	// BaseURL is the host server, http(s):// or ws(s)://.
	BaseURL string
	Dialer  *websocket.Dialer
	Log     *zap.Logger
}

// RoomURL is the websocket address of room on the server at base.
func RoomURL(base, room string) (string, error) {
	u, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws", "":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported server url scheme %q", u.Scheme)
	}
	u.Path += "/rooms/" + url.PathEscape(room) + "/ws"
	return u.String(), nil
}

func (d Dialer) Dial(ctx context.Context, room string) (relay.Upstream, error) {
	target, err := RoomURL(d.BaseURL, room)
	if err != nil {
		return nil, err
	}
	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}

	conn, resp, err := dialer.DialContext(ctx, target, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %s: %w", target, resp.Status, err)
		}
		return nil, fmt.Errorf("dial %s: %w", target, err)
	}
	return newUpstream(conn, log), nil
}

type upstream struct {
	conn *websocket.Conn
	log  *zap.Logger
	wmu  sync.Mutex
	done chan struct{}
	once sync.Once
}

func newUpstream(conn *websocket.Conn, log *zap.Logger) *upstream {
	u := &upstream{conn: conn, log: log, done: make(chan struct{})}
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	go u.ping()
	return u
}

func (u *upstream) ping() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := u.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				u.log.Debug("ping failed", zap.Error(err))
				return
			}
		case <-u.done:
			return
		}
	}
}

func (u *upstream) Send(b []byte) error {
	u.wmu.Lock()
	defer u.wmu.Unlock()
	u.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return u.conn.WriteMessage(websocket.TextMessage, b)
}

func (u *upstream) Recv(ctx context.Context) ([]byte, error) {
	stop := context.AfterFunc(ctx, func() { _ = u.conn.Close() })
	defer stop()
	_, b, err := u.conn.ReadMessage()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	return b, nil
}

func (u *upstream) Close() error {
	var err error
	u.once.Do(func() {
		close(u.done)
		_ = u.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
		err = u.conn.Close()
	})
	return err
}
