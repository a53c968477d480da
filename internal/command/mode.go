package command

// Mode tells the router what the next console line means.
type Mode int

const (
	ModeMenu Mode = iota
	ModeAwaitingStartName
	ModeAwaitingReadName
	ModeAwaitingDeleteName
	ModeSessionActive
)

func (m Mode) String() string {
	switch m {
	case ModeMenu:
		return "MENU"
	case ModeAwaitingStartName:
		return "AWAITING_START_NAME"
	case ModeAwaitingReadName:
		return "AWAITING_READ_NAME"
	case ModeAwaitingDeleteName:
		return "AWAITING_DELETE_NAME"
	case ModeSessionActive:
		return "SESSION_ACTIVE"
	default:
		return "UNKNOWN"
	}
}
