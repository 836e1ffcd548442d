package types

import "encoding/json"

// Message is the wire unit exchanged between screens. Sender is the screen
// index of whoever put the message on this connection; the host stamps 0 on
// everything it relays.
type Message struct {
	Sender *int            `json:"sender,omitempty"`
	Cmd    string          `json:"cmd"`
	Data   json.RawMessage `json:"data,omitempty"`
}

const (
	CmdSetTable      = "set-table"
	CmdMoveCard      = "move-card"
	CmdReloadScreen  = "reload-screen"
	CmdPointToScreen = "point-to-screen"
)

// Host -> Peer
// set-table:
//   data: Table (see snapshot.go). localScreen is the screen the receiver was
//   registered as; a receiver that already holds a table keeps its own.
//
// Both directions
// move-card:
//   data: [srcStackId: string, destStackId: string, cardId: string | null]
//   null cardId moves the top card.
//
// reload-screen: no data
//   receivers reload after 1000ms * localScreen.
//
// point-to-screen:
//   data: number   screen being pointed at, cleared after 2000ms.
//
// Any other cmd is relayed untouched and ignored by receivers.
