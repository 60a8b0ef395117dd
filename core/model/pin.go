package model

// Direction is the configuration register bit of an expander pin.
// The numeric values match the register encoding.
type Direction uint8

const (
	DirectionOut Direction = 0
	DirectionIn  Direction = 1
)

// String returns a human-readable representation of the direction.
func (d Direction) String() string {
	switch d {
	case DirectionOut:
		return "output"
	case DirectionIn:
		return "input"
	default:
		return "unknown"
	}
}

// Level is the logic level of a pin.
type Level uint8

const (
	Low  Level = 0
	High Level = 1
)

// Mode is the requested state of a pin as published to Home Assistant.
type Mode string

const (
	ModeOn      Mode = "on"
	ModeOff     Mode = "off"
	ModeDefault Mode = "default"
)

// PinState describes one expander pin. Value and Direction are nil until the
// pin has been driven by a command.
type PinState struct {
	Name      string     `json:"-"`
	Pin       int        `json:"pin"`
	Value     *Level     `json:"value"`
	Direction *Direction `json:"direction"`
	State     Mode       `json:"state"`
}

// NewPinState returns the boot state of a pin: released, nothing written yet.
func NewPinState(name string, pin int) PinState {
	return PinState{Name: name, Pin: pin, State: ModeDefault}
}

// Clone returns a deep copy so callers can't mutate shared pointers.
func (p PinState) Clone() PinState {
	out := p
	if p.Value != nil {
		v := *p.Value
		out.Value = &v
	}
	if p.Direction != nil {
		d := *p.Direction
		out.Direction = &d
	}
	return out
}

// PinStates is the pinstates document, keyed by logical pin name.
type PinStates map[string]PinState
