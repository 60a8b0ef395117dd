package model

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Action is the decoded form of a pin command value.
type Action int

const (
	ActionInvalid Action = iota
	ActionOff
	ActionOn
	ActionRelease
)

// String returns a human-readable representation of the action.
func (a Action) String() string {
	switch a {
	case ActionOff:
		return "off"
	case ActionOn:
		return "on"
	case ActionRelease:
		return "release"
	default:
		return "invalid"
	}
}

// Mode returns the pin mode an action results in.
func (a Action) Mode() (Mode, bool) {
	switch a {
	case ActionOff:
		return ModeOff, true
	case ActionOn:
		return ModeOn, true
	case ActionRelease:
		return ModeDefault, true
	default:
		return "", false
	}
}

var actionWords = map[string]Action{
	"0":       ActionOff,
	"off":     ActionOff,
	"false":   ActionOff,
	"1":       ActionOn,
	"on":      ActionOn,
	"true":    ActionOn,
	"-1":      ActionRelease,
	"release": ActionRelease,
	"default": ActionRelease,
}

// ParseAction maps a decoded JSON value to an Action. Strings are compared
// case-insensitively, booleans and numbers by their literal form, so 1 and
// "1" are equivalent while 1.0 is not.
func ParseAction(v any) Action {
	s, ok := ValueString(v)
	if !ok {
		return ActionInvalid
	}
	if a, ok := actionWords[strings.ToLower(s)]; ok {
		return a
	}
	return ActionInvalid
}

// ValueString renders a decoded JSON scalar as text. Objects, arrays and null
// have no text form.
func ValueString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case bool:
		return strconv.FormatBool(t), true
	case json.Number:
		return t.String(), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case int:
		return strconv.Itoa(t), true
	default:
		return "", false
	}
}
