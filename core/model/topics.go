package model

import "strings"

// Topics derives the per-host MQTT topics from the configured base path.
type Topics struct {
	Base string
}

// NewTopics joins the base topic and host name, e.g. "bratwurstpower/" and
// "pi4" give "bratwurstpower/pi4/".
func NewTopics(baseTopic, hostname string) Topics {
	base := baseTopic
	if base != "" && !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return Topics{Base: base + hostname + "/"}
}

func (t Topics) Status() string     { return t.Base + "status" }
func (t Topics) PowerStats() string { return t.Base + "powerstats" }
func (t Topics) PinStates() string  { return t.Base + "pinstates" }
func (t Topics) Command() string    { return t.Base + "command" }
