package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/airdeck/internal/engine"
	"github.com/DoyleJ11/airdeck/internal/engine/enginetest"
	"github.com/DoyleJ11/airdeck/internal/geom"
	"github.com/DoyleJ11/airdeck/internal/protocol"
)

const waitFor = time.Second

func testEngineConfig(sched engine.Scheduler) engine.Config {
	var mu sync.Mutex
	n := 0
	return engine.Config{
		Rand:      &enginetest.SeqRand{Values: []float64{0.5}},
		Scheduler: sched,
		Viewport:  geom.Size{Width: 1000, Height: 800},
		NewID: func() string {
			mu.Lock()
			defer mu.Unlock()
			n++
			return fmt.Sprintf("id-%d", n)
		},
	}
}

type mapFetcher struct {
	mu    sync.Mutex
	docs  map[string]string
	calls map[string]int
}

func (m *mapFetcher) Fetch(_ context.Context, source string, v any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.calls == nil {
		m.calls = map[string]int{}
	}
	m.calls[source]++
	doc, ok := m.docs[source]
	if !ok {
		return fmt.Errorf("no document %s", source)
	}
	return json.Unmarshal([]byte(doc), v)
}

func (m *mapFetcher) count(source string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[source]
}

func tableDocs() map[string]string {
	return map[string]string{
		"table.json": `{"background": "felt.png", "stacks": [
			{"name": "deck", "frontSpriteSheetSource": "cards.json", "backSpriteSheetSource": "cards.json",
				"deck": [{"frontSprite": "ace", "backSprite": "back"}, {"frontSprite": "king", "backSprite": "back"}]},
			{"name": "discard", "flipped": true}
		]}`,
		"cards.json": `{"source": "cards.png", "sprites": [
			{"name": "ace", "width": 80, "height": 120},
			{"name": "king", "width": 80, "height": 120},
			{"name": "back", "width": 80, "height": 120}
		]}`,
	}
}

func newTestHost(t *testing.T) (*Host, *enginetest.ManualScheduler, *mapFetcher) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	sched := enginetest.NewManualScheduler()
	f := &mapFetcher{docs: tableDocs()}
	h, err := NewHost(ctx, HostConfig{
		Room:    "ROOM01",
		Source:  "table.json",
		Fetcher: f,
		Engine:  testEngineConfig(sched),
	})
	require.NoError(t, err)
	return h, sched, f
}

func advance(t *testing.T, do func(context.Context, func()) error, sched *enginetest.ManualScheduler, d time.Duration) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	require.NoError(t, do(ctx, func() { sched.Advance(d) }))
}

type viewer interface {
	State(ctx context.Context) (View, error)
}

func state(t *testing.T, s viewer) View {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	v, err := s.State(ctx)
	require.NoError(t, err)
	return v
}

func stackByName(t *testing.T, table *engine.Table, name string) *engine.Stack {
	t.Helper()
	for _, s := range table.Stacks {
		if s.Name == name {
			return s
		}
	}
	t.Fatalf("no stack named %q", name)
	return nil
}

var errBrokenPipe = errors.New("broken pipe")

type fakeConn struct {
	mu       sync.Mutex
	msgs     [][]byte
	closed   bool
	failSend bool
}

func (c *fakeConn) Send(b []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failSend || c.closed {
		return errBrokenPipe
	}
	c.msgs = append(c.msgs, b)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) setFail(fail bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failSend = fail
}

// frames decodes and clears everything received so far.
func (c *fakeConn) frames(t *testing.T) []protocol.Frame {
	t.Helper()
	c.mu.Lock()
	msgs := c.msgs
	c.msgs = nil
	c.mu.Unlock()

	out := make([]protocol.Frame, 0, len(msgs))
	for _, m := range msgs {
		f, err := protocol.Decode(m)
		require.NoError(t, err)
		out = append(out, f)
	}
	return out
}

func join(t *testing.T, h *Host, c Conn) JoinResult {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	r := make(chan JoinResult, 1)
	require.NoError(t, h.Post(ctx, Join{Conn: c, Reply: r}))
	select {
	case res := <-r:
		return res
	case <-ctx.Done():
		t.Fatalf("timed out waiting for join")
		return JoinResult{}
	}
}

func post(t *testing.T, poster interface {
	Post(context.Context, Msg) error
}, m Msg) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	require.NoError(t, poster.Post(ctx, m))
}
