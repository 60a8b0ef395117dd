package pins

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/qetesh/bratwurstpower/core/events"
	"github.com/qetesh/bratwurstpower/core/logger"
	"github.com/qetesh/bratwurstpower/core/model"
	"github.com/qetesh/bratwurstpower/internal/eventbus"
)

// ErrNotObject is returned for payloads that are not a JSON object.
var ErrNotObject = errors.New("command is not a JSON object")

// Expander is the register driver the dispatcher actuates.
type Expander interface {
	SetValue(pin int, level model.Level) (model.Level, error)
	SetDirection(pin int, dir model.Direction) (model.Direction, error)
}

// Report summarises one command message.
type Report struct {
	Applied []string
	Unknown []string
	Invalid []string
	// Err is set when the payload could not be decoded or a bus write failed.
	// Entries after a failed write are not applied.
	Err error
}

// Dispatcher applies JSON pin commands to the expander and the pin table.
type Dispatcher struct {
	table *Table
	exp   Expander
	log   logger.Logger
	bus   eventbus.EventBus
}

// NewDispatcher creates a Dispatcher. bus may be nil.
func NewDispatcher(table *Table, exp Expander, log logger.Logger, bus eventbus.EventBus) *Dispatcher {
	return &Dispatcher{table: table, exp: exp, log: log, bus: bus}
}

type entry struct {
	name  string
	value any
}

// Apply decodes payload as {"<pin>": "<state>", ...} and applies each entry
// in document order. Unknown names and invalid values are skipped; the
// remaining entries still apply.
func (d *Dispatcher) Apply(payload []byte) Report {
	var rep Report
	entries, err := decode(payload)
	if err != nil {
		d.log.Errorf("command does not contain valid JSON: %v: %q", err, payload)
		rep.Err = err
		return rep
	}
	for _, e := range entries {
		text, _ := model.ValueString(e.value)
		action := model.ParseAction(e.value)
		found, err := d.table.update(e.name, func(ps *model.PinState) error {
			if action == model.ActionInvalid {
				return nil
			}
			return d.actuate(ps, action)
		})
		switch {
		case !found:
			d.log.Errorf("invalid name received: %s", e.name)
			rep.Unknown = append(rep.Unknown, e.name)
			d.emit(e.name, text, events.OutcomeUnknown, nil)
		case err != nil:
			d.log.Errorf("command %s=%s failed: %v", e.name, text, err)
			d.emit(e.name, text, events.OutcomeFailed, err)
			rep.Err = err
			return rep
		case action == model.ActionInvalid:
			d.log.Errorf("invalid command received for %s: %v", e.name, e.value)
			rep.Invalid = append(rep.Invalid, e.name)
			d.emit(e.name, text, events.OutcomeInvalid, nil)
		default:
			rep.Applied = append(rep.Applied, e.name)
			d.emit(e.name, text, events.OutcomeApplied, nil)
		}
	}
	return rep
}

// actuate performs the register writes for one pin and updates its state.
// The output latch is set before the pin is switched to output so the line
// never glitches to a stale level. ps is only modified once every write
// succeeded.
func (d *Dispatcher) actuate(ps *model.PinState, action model.Action) error {
	mode, _ := action.Mode()
	switch action {
	case model.ActionOn, model.ActionOff:
		level := model.Low
		if action == model.ActionOn {
			level = model.High
		}
		d.log.Infof("forcing %s to %s", ps.Name, mode)
		v, err := d.exp.SetValue(ps.Pin, level)
		if err != nil {
			return err
		}
		dir, err := d.exp.SetDirection(ps.Pin, model.DirectionOut)
		if err != nil {
			return err
		}
		ps.Value, ps.Direction = &v, &dir
	case model.ActionRelease:
		d.log.Infof("releasing %s to default state", ps.Name)
		dir, err := d.exp.SetDirection(ps.Pin, model.DirectionIn)
		if err != nil {
			return err
		}
		ps.Direction = &dir
	}
	ps.State = mode
	return nil
}

func (d *Dispatcher) emit(pin, value, outcome string, err error) {
	if d.bus == nil {
		return
	}
	d.bus.Publish(events.CommandEvent{Pin: pin, Value: value, Outcome: outcome, Err: err})
}

// decode reads the top-level object keeping key order. Each key yields one
// entry. Numbers stay in their literal form so 1 and 1.0 can be told apart.
func decode(payload []byte) ([]entry, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, ErrNotObject
	}
	var out []entry
	seen := make(map[string]int)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected token %v", tok)
		}
		var v any
		if err := dec.Decode(&v); err != nil {
			return nil, err
		}
		// a repeated key keeps its first position and takes the last value
		if i, dup := seen[key]; dup {
			out[i].value = v
			continue
		}
		seen[key] = len(out)
		out = append(out, entry{name: key, value: v})
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("trailing data after command object")
	}
	return out, nil
}
