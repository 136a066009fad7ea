package hotkey

import "fmt"

// ActionKind identifies what a hotkey does
type ActionKind int

const (
	SaveToRegister ActionKind = iota
	PasteFromRegister
	TypeFromRegister
	SendClipboardText
	Screenshot
)

func (k ActionKind) String() string {
	switch k {
	case SaveToRegister:
		return "save"
	case PasteFromRegister:
		return "paste"
	case TypeFromRegister:
		return "type"
	case SendClipboardText:
		return "send-text"
	case Screenshot:
		return "screenshot"
	default:
		return fmt.Sprintf("action(%d)", int(k))
	}
}

// UsesRegister reports whether the action addresses a register
func (k ActionKind) UsesRegister() bool {
	return k == SaveToRegister || k == PasteFromRegister || k == TypeFromRegister
}

// Action is the descriptor a binding dispatches
type Action struct {
	Kind     ActionKind `json:"kind"`
	Register int        `json:"register"`
}

func (a Action) String() string {
	if a.Kind.UsesRegister() {
		return fmt.Sprintf("%s(%d)", a.Kind, a.Register+1)
	}
	return a.Kind.String()
}

// Spec pairs a combo string with an action, as read from configuration
type Spec struct {
	Combo  string
	Action Action
}

// MarshalText encodes the kind by name
func (k ActionKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}
