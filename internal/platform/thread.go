package platform

// Controller identifies who currently owns a conversation thread.
type Controller string

const (
	ControllerBot   Controller = "bot"
	ControllerAgent Controller = "agent"
)

// String returns the controller as a plain string.
func (c Controller) String() string {
	return string(c)
}

// Thread is the platform's representation of an ongoing conversation.
// Thread state is owned and mutated by the platform; this adapter only reads
// it and issues control-transfer commands.
type Thread struct {
	ID         string     `json:"id"`
	Controller Controller `json:"controller"`
}
