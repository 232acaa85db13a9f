package message

import "fmt"

// Command is a Control verb.
type Command int

const (
	Start Command = iota + 1
	Stop
	TriggerDebug
	// BrokenConnection is raised by the transport when the peer goes away.
	BrokenConnection
)

var commandNames = map[Command]string{
	Start:            "START",
	Stop:             "STOP",
	TriggerDebug:     "TRIG_DBG",
	BrokenConnection: "BROKEN_CONN",
}

func (c Command) String() string {
	if s, ok := commandNames[c]; ok {
		return s
	}
	return fmt.Sprintf("Command(%d)", int(c))
}

// ParseCommand maps a wire name to a Command. Unknown names yield an error
// alongside the zero Command.
func ParseCommand(s string) (Command, error) {
	for c, name := range commandNames {
		if name == s {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown command %q", s)
}

func (c Command) MarshalText() ([]byte, error) {
	if _, ok := commandNames[c]; !ok {
		return nil, fmt.Errorf("unknown command %d", int(c))
	}
	return []byte(c.String()), nil
}

// UnmarshalText accepts unknown names and keeps them as an invalid Command
// so the receiving actor can answer BadCommand.
func (c *Command) UnmarshalText(b []byte) error {
	cmd, err := ParseCommand(string(b))
	if err != nil {
		*c = Command(-1)
		return nil
	}
	*c = cmd
	return nil
}

// Retval is the result code carried by every Ack.
type Retval int

const (
	RetvalAck Retval = iota
	RetvalBadCommand
	RetvalBadConfig
	RetvalInvalidMsg
	RetvalNoConfig
	RetvalDebugIsValid
	RetvalDebugError
)

var retvalNames = [...]string{
	RetvalAck:          "ACK",
	RetvalBadCommand:   "BAD_COMMAND",
	RetvalBadConfig:    "BAD_CONFIG",
	RetvalInvalidMsg:   "INVALID_MSG",
	RetvalNoConfig:     "NO_CONFIG",
	RetvalDebugIsValid: "DEBUG_IS_VALID",
	RetvalDebugError:   "DEBUG_ERROR",
}

func (r Retval) String() string {
	if r >= 0 && int(r) < len(retvalNames) {
		return retvalNames[r]
	}
	return fmt.Sprintf("Retval(%d)", int(r))
}

func (r Retval) MarshalText() ([]byte, error) {
	if r < 0 || int(r) >= len(retvalNames) {
		return nil, fmt.Errorf("unknown retval %d", int(r))
	}
	return []byte(retvalNames[r]), nil
}

func (r *Retval) UnmarshalText(b []byte) error {
	for i, name := range retvalNames {
		if name == string(b) {
			*r = Retval(i)
			return nil
		}
	}
	return fmt.Errorf("unknown retval %q", b)
}

// DebugSamples is the payload of a successful debug capture.
type DebugSamples struct {
	NumSamples int     `json:"num_samples"`
	I          []int16 `json:"i_samples"`
	Q          []int16 `json:"q_samples"`
	// ToneKHz is the dominant tone of the capture, 0 when not estimated.
	ToneKHz float64 `json:"tone_khz,omitempty"`
}

// Ack answers one request. Debug is set only with RetvalDebugIsValid.
type Ack struct {
	Retval Retval        `json:"retval"`
	Debug  *DebugSamples `json:"-"`
}
