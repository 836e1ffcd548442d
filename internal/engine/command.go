package engine

type CommandType string

const (
	CmdMoveCard      CommandType = "move-card"
	CmdReloadScreen  CommandType = "reload-screen"
	CmdPointToScreen CommandType = "point-to-screen"
)

// Command is what a screen publishes through Table.Send.
//
//	CmdMoveCard      -> Src, Dest, CardID (CardID empty means "top card")
//	CmdReloadScreen  -> no fields
//	CmdPointToScreen -> Screen
type Command struct {
	Type   CommandType
	Src    string
	Dest   string
	CardID string
	Screen int
}

func MoveCardCommand(src, dest, cardID string) Command {
	return Command{Type: CmdMoveCard, Src: src, Dest: dest, CardID: cardID}
}
