// Package protocol turns wire messages into typed commands and back.
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/DoyleJ11/airdeck/internal/engine"
	"github.com/DoyleJ11/airdeck/pkg/types"
)

var ErrBadPayload = errors.New("bad command payload")

// Command is one of SetTable, MoveCard, ReloadScreen, PointToScreen or Unknown.
type Command interface {
	Cmd() string
	isCommand()
}

type SetTable struct {
	Table *engine.Table
}

type MoveCard struct {
	Src    string
	Dest   string
	CardID string // empty moves the top card
}

type ReloadScreen struct{}

type PointToScreen struct {
	Screen int
}

// Unknown keeps a command this build does not understand so it can still be relayed.
type Unknown struct {
	Name string
	Data json.RawMessage
}

func (SetTable) Cmd() string      { return types.CmdSetTable }
func (MoveCard) Cmd() string      { return types.CmdMoveCard }
func (ReloadScreen) Cmd() string  { return types.CmdReloadScreen }
func (PointToScreen) Cmd() string { return types.CmdPointToScreen }
func (u Unknown) Cmd() string     { return u.Name }

func (SetTable) isCommand()      {}
func (MoveCard) isCommand()      {}
func (ReloadScreen) isCommand()  {}
func (PointToScreen) isCommand() {}
func (Unknown) isCommand()       {}

func (m MoveCard) MarshalJSON() ([]byte, error) {
	var card any
	if m.CardID != "" {
		card = m.CardID
	}
	return json.Marshal([]any{m.Src, m.Dest, card})
}

func (m *MoveCard) UnmarshalJSON(data []byte) error {
	var parts []*string
	if err := json.Unmarshal(data, &parts); err != nil {
		return fmt.Errorf("move-card: %w", err)
	}
	if len(parts) < 2 || parts[0] == nil || parts[1] == nil {
		return fmt.Errorf("move-card wants [src, dest, cardId]: %w", ErrBadPayload)
	}
	*m = MoveCard{Src: *parts[0], Dest: *parts[1]}
	if len(parts) > 2 && parts[2] != nil {
		m.CardID = *parts[2]
	}
	return nil
}

// Frame is a decoded message. Sender is nil when the message carried none.
type Frame struct {
	Sender  *int
	Command Command
}

// Decode parses one wire message. Unrecognized commands decode to Unknown.
func Decode(data []byte) (Frame, error) {
	var msg types.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Frame{}, fmt.Errorf("decode message: %w", err)
	}
	if msg.Cmd == "" {
		return Frame{}, fmt.Errorf("decode message: missing cmd: %w", ErrBadPayload)
	}

	f := Frame{Sender: msg.Sender}
	switch msg.Cmd {
	case types.CmdSetTable:
		var t engine.Table
		if err := unmarshalData(msg.Data, &t); err != nil {
			return Frame{}, err
		}
		f.Command = SetTable{Table: &t}
	case types.CmdMoveCard:
		var m MoveCard
		if err := unmarshalData(msg.Data, &m); err != nil {
			return Frame{}, err
		}
		f.Command = m
	case types.CmdReloadScreen:
		f.Command = ReloadScreen{}
	case types.CmdPointToScreen:
		var screen int
		if err := unmarshalData(msg.Data, &screen); err != nil {
			return Frame{}, err
		}
		f.Command = PointToScreen{Screen: screen}
	default:
		f.Command = Unknown{Name: msg.Cmd, Data: msg.Data}
	}
	return f, nil
}

func unmarshalData(data json.RawMessage, v any) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return fmt.Errorf("missing data: %w", ErrBadPayload)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode data: %w", err)
	}
	return nil
}

// Encode builds the wire form of cmd sent by screen sender.
func Encode(sender int, cmd Command) ([]byte, error) {
	msg := types.Message{Sender: &sender, Cmd: cmd.Cmd()}

	var data any
	switch c := cmd.(type) {
	case SetTable:
		data = c.Table
	case MoveCard:
		data = c
	case ReloadScreen:
	case PointToScreen:
		data = c.Screen
	case Unknown:
		msg.Data = c.Data
	}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", cmd.Cmd(), err)
		}
		msg.Data = raw
	}
	return json.Marshal(msg)
}

// FromEngine maps a command published through Table.Send onto its wire variant.
func FromEngine(c engine.Command) Command {
	switch c.Type {
	case engine.CmdMoveCard:
		return MoveCard{Src: c.Src, Dest: c.Dest, CardID: c.CardID}
	case engine.CmdReloadScreen:
		return ReloadScreen{}
	case engine.CmdPointToScreen:
		return PointToScreen{Screen: c.Screen}
	default:
		return Unknown{Name: string(c.Type)}
	}
}
