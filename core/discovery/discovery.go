// Package discovery builds the Home Assistant MQTT discovery descriptors for
// the expander pins and power monitors.
package discovery

import (
	"encoding/json"
	"fmt"

	"github.com/qetesh/bratwurstpower/core/model"
)

// Hardware and software identity reported to Home Assistant.
const (
	Manufacturer    = "Qetesh"
	Model           = "Bratwurst Power"
	HardwareVersion = "2.1.0"
	OriginURL       = "https://qete.sh/gh/BratwurstPower.py"
)

// SoftwareVersion is injected at build time via -ldflags.
var SoftwareVersion = "0.1.0"

// Device is the HA device block. Only IDs is set on abbreviated blocks.
type Device struct {
	IDs          []string `json:"ids"`
	Name         string   `json:"name,omitempty"`
	Manufacturer string   `json:"mf,omitempty"`
	Model        string   `json:"mdl,omitempty"`
	ModelID      string   `json:"mdl_id,omitempty"`
	Hardware     string   `json:"hw,omitempty"`
	Software     string   `json:"sw,omitempty"`
}

// Origin identifies the software publishing the descriptors.
type Origin struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// SelectConfig is the descriptor of a pin select entity.
type SelectConfig struct {
	Name              string   `json:"name"`
	StateTopic        string   `json:"stat_t"`
	CommandTopic      string   `json:"cmd_t"`
	ValueTemplate     string   `json:"val_tpl"`
	CommandTemplate   string   `json:"cmd_tpl"`
	UniqueID          string   `json:"uniq_id"`
	Options           []string `json:"ops"`
	Icon              string   `json:"ic"`
	AvailabilityTopic string   `json:"avty_t"`
	Device            Device   `json:"dev"`
	Origin            Origin   `json:"o"`
}

// SensorConfig is the descriptor of one measured quantity of a monitor.
type SensorConfig struct {
	Name              string `json:"name"`
	StateTopic        string `json:"stat_t"`
	ValueTemplate     string `json:"val_tpl"`
	UniqueID          string `json:"uniq_id"`
	DeviceClass       string `json:"dev_cla"`
	Unit              string `json:"unit_of_meas"`
	Icon              string `json:"icon,omitempty"`
	AvailabilityTopic string `json:"avty_t"`
	Device            Device `json:"dev"`
	Origin            Origin `json:"o"`
}

// Message is one retained discovery publication.
type Message struct {
	Topic   string
	Payload []byte
}

type quantity struct {
	field string
	label string
	class string
	unit  string
	icon  string
}

var quantities = []quantity{
	{field: "voltage", label: "Voltage", class: "voltage", unit: "V"},
	{field: "current", label: "Current", class: "current", unit: "mA"},
	{field: "power", label: "Power", class: "power", unit: "W"},
	{field: "shunt_voltage", label: "Shunt Voltage", class: "voltage", unit: "mV", icon: "mdi:resistor"},
}

// Builder builds descriptors for one host.
type Builder struct {
	Hostname string
	Prefix   string
	Topics   model.Topics
}

// NewBuilder creates a Builder. prefix is the HA discovery prefix including
// its trailing slash, e.g. "homeassistant/".
func NewBuilder(hostname, prefix string, topics model.Topics) Builder {
	return Builder{Hostname: hostname, Prefix: prefix, Topics: topics}
}

func (b Builder) nodeID() string { return "bratwurst_power_" + b.Hostname }

func (b Builder) device(full bool) Device {
	d := Device{IDs: []string{b.nodeID()}}
	if !full {
		return d
	}
	d.Name = "Bratwurst Power " + b.Hostname
	d.Manufacturer = Manufacturer
	d.Model = Model
	d.ModelID = Model + b.Hostname
	d.Hardware = HardwareVersion
	d.Software = SoftwareVersion
	return d
}

func (b Builder) origin() Origin {
	return Origin{Name: "Bratwurst Power " + b.Hostname, URL: OriginURL}
}

// Build returns one select descriptor per pin followed by four sensor
// descriptors per monitor. The first descriptor carries the full device
// block, the others reference the device by identifier only.
func (b Builder) Build(pins, sensors []string) ([]Message, error) {
	msgs := make([]Message, 0, len(pins)+4*len(sensors))
	full := true
	for _, pin := range pins {
		cfg := SelectConfig{
			Name:              pin,
			StateTopic:        b.Topics.PinStates(),
			CommandTopic:      b.Topics.Command(),
			ValueTemplate:     "{{ value_json." + pin + ".state }}",
			CommandTemplate:   `{"` + pin + `": "{{ value }}" }`,
			UniqueID:          "bwpow_" + b.Hostname + "_" + pin,
			Options:           []string{string(model.ModeOn), string(model.ModeOff), string(model.ModeDefault)},
			Icon:              "mdi:electric-switch",
			AvailabilityTopic: b.Topics.Status(),
			Device:            b.device(full),
			Origin:            b.origin(),
		}
		full = false
		topic := fmt.Sprintf("%sselect/%s/%s/config", b.Prefix, b.nodeID(), pin)
		msg, err := newMessage(topic, cfg)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	for _, name := range sensors {
		for _, q := range quantities {
			cfg := SensorConfig{
				Name:              name + " " + q.label,
				StateTopic:        b.Topics.PowerStats(),
				ValueTemplate:     "{{ value_json." + name + "." + q.field + " | float}}",
				UniqueID:          "bwpow_" + b.Hostname + "_" + name + "_" + q.field,
				DeviceClass:       q.class,
				Unit:              q.unit,
				Icon:              q.icon,
				AvailabilityTopic: b.Topics.Status(),
				Device:            b.device(full),
				Origin:            b.origin(),
			}
			full = false
			topic := fmt.Sprintf("%ssensor/%s/%s_%s/config", b.Prefix, b.nodeID(), name, q.field)
			msg, err := newMessage(topic, cfg)
			if err != nil {
				return nil, err
			}
			msgs = append(msgs, msg)
		}
	}
	return msgs, nil
}

func newMessage(topic string, cfg any) (Message, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return Message{}, fmt.Errorf("marshal discovery payload for %s: %w", topic, err)
	}
	return Message{Topic: topic, Payload: data}, nil
}
