package conversation

import "slices"

type Role string

const (
	RoleNone      Role = ""
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Item types with dedicated rendering.
const (
	TypeMessage            = "message"
	TypeFunctionCall       = "function_call"
	TypeFunctionCallOutput = "function_call_output"
)

type Tool struct {
	Name      string
	CallID    string
	Arguments string
}

// File is a playable rendering of an item's complete audio.
type File struct {
	URL string
}

type Formatted struct {
	Transcript string
	Text       string
	Output     string
	Tool       *Tool
	Audio      []int16
	File       *File
}

type Item struct {
	ID        string
	Role      Role
	Type      string
	Status    Status
	Formatted Formatted
}

// Delta carries the incremental part of an update.
type Delta struct {
	Audio      []int16
	Transcript string
	Text       string
	Arguments  string
}

// Clone returns a deep copy so projections never alias provider state.
func (it Item) Clone() Item {
	c := it
	c.Formatted.Audio = slices.Clone(it.Formatted.Audio)
	if it.Formatted.Tool != nil {
		t := *it.Formatted.Tool
		c.Formatted.Tool = &t
	}
	if it.Formatted.File != nil {
		f := *it.Formatted.File
		c.Formatted.File = &f
	}
	return c
}

// Speaker is the label shown next to an item.
func (it Item) Speaker() string {
	switch it.Role {
	case RoleUser:
		return "you"
	case RoleAssistant:
		return "agent"
	default:
		return "system"
	}
}

// DisplayText returns the line rendered for the item in a transcript.
func (it Item) DisplayText() string {
	f := it.Formatted
	switch {
	case it.Type == TypeFunctionCallOutput:
		return f.Output
	case f.Tool != nil:
		return f.Tool.Name + "(" + f.Tool.Arguments + ")"
	case it.Role == RoleUser || it.Role == RoleAssistant:
		if f.Transcript != "" {
			return f.Transcript
		}
		if f.Text != "" {
			return f.Text
		}
		return "(transcribing...)"
	}
	return f.Text
}
