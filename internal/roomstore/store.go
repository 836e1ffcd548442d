// Package roomstore remembers the last room a screen used so a fresh session
// can go back to it.
package roomstore

import (
	"context"
	"fmt"
)

// LastRoomKey is the settings key holding the last used room code.
const LastRoomKey = "last-room-id"

type Store interface {
	// LastRoom returns "" when nothing was saved yet.
	LastRoom(ctx context.Context) (string, error)
	SaveLastRoom(ctx context.Context, room string) error
	Close() error
}

type Config struct {
	Driver string // "sqlite" or "postgres"
	Path   string // sqlite file
	DSN    string // postgres
}

func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case "", "sqlite":
		s, err := OpenSQLite(ctx, cfg.Path)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "postgres":
		s, err := OpenPostgres(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
