// Package pins holds the expander pin table and applies remote pin commands
// to it.
package pins

import (
	"fmt"
	"sync"

	"github.com/qetesh/bratwurstpower/core/model"
)

// Def names one expander pin.
type Def struct {
	Name string `json:"name"`
	Pin  int    `json:"pin"`
}

// Table is the PinState table shared between the command handler and the
// polling loop.
type Table struct {
	mu    sync.Mutex
	order []string
	pins  map[string]*model.PinState
}

// NewTable creates a table with every pin in its boot state.
func NewTable(defs []Def) (*Table, error) {
	t := &Table{pins: make(map[string]*model.PinState, len(defs))}
	for _, d := range defs {
		if _, dup := t.pins[d.Name]; dup {
			return nil, fmt.Errorf("duplicate pin name %q", d.Name)
		}
		ps := model.NewPinState(d.Name, d.Pin)
		t.pins[d.Name] = &ps
		t.order = append(t.order, d.Name)
	}
	return t, nil
}

// Names returns the pin names in configuration order.
func (t *Table) Names() []string {
	return append([]string(nil), t.order...)
}

// Get returns a copy of one pin state.
func (t *Table) Get(name string) (model.PinState, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	ps, ok := t.pins[name]
	if !ok {
		return model.PinState{}, false
	}
	return ps.Clone(), true
}

// Snapshot returns a copy of the whole table.
func (t *Table) Snapshot() model.PinStates {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(model.PinStates, len(t.pins))
	for name, ps := range t.pins {
		out[name] = ps.Clone()
	}
	return out
}

// update runs fn on the named pin while holding the table lock.
func (t *Table) update(name string, fn func(ps *model.PinState) error) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	ps, ok := t.pins[name]
	if !ok {
		return false, nil
	}
	return true, fn(ps)
}

// FromRegisters derives the pinstates document from expander register values
// read off the chip: input pins are released ("default"), output pins report
// the latched level. Value is the line level from the input register.
func FromRegisters(defs []Def, input, output, direction byte) model.PinStates {
	out := make(model.PinStates, len(defs))
	for _, d := range defs {
		ps := model.NewPinState(d.Name, d.Pin)
		dir := model.Direction((direction >> uint(d.Pin)) & 1)
		level := model.Level((input >> uint(d.Pin)) & 1)
		ps.Direction = &dir
		ps.Value = &level
		if dir == model.DirectionOut {
			ps.State = model.ModeOff
			if (output>>uint(d.Pin))&1 == 1 {
				ps.State = model.ModeOn
			}
		}
		out[d.Name] = ps
	}
	return out
}
