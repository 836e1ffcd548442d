package relay

import "go.uber.org/multierr"

// Conn is the host's handle on one peer connection. Send must not block.
type Conn interface {
	Send(data []byte) error
	Close() error
}

type slot struct {
	conn Conn
	dead bool
}

// registry maps screen n to slots[n-1]. Closed connections are marked dead
// and skipped, never removed, so screen numbers stay stable.
type registry struct {
	slots []*slot
}

func (r *registry) add(c Conn) int {
	r.slots = append(r.slots, &slot{conn: c})
	return len(r.slots)
}

func (r *registry) get(screen int) *slot {
	if screen < 1 || screen > len(r.slots) {
		return nil
	}
	return r.slots[screen-1]
}

// holds reports whether c is the live connection registered as screen.
func (r *registry) holds(screen int, c Conn) bool {
	s := r.get(screen)
	return s != nil && !s.dead && s.conn == c
}

// kill marks screen dead and closes its connection. Returns false if it already was.
func (r *registry) kill(screen int) bool {
	s := r.get(screen)
	if s == nil || s.dead {
		return false
	}
	s.dead = true
	_ = s.conn.Close()
	return true
}

// each calls fn for every live screen except skip.
func (r *registry) each(skip int, fn func(screen int, c Conn)) {
	for i, s := range r.slots {
		if s.dead || i+1 == skip {
			continue
		}
		fn(i+1, s.conn)
	}
}

func (r *registry) live() []int {
	screens := []int{}
	r.each(0, func(screen int, _ Conn) { screens = append(screens, screen) })
	return screens
}

// reset closes every live connection and forgets all screens.
func (r *registry) reset() error {
	var err error
	for _, s := range r.slots {
		if !s.dead {
			err = multierr.Append(err, s.conn.Close())
		}
	}
	r.slots = nil
	return err
}
