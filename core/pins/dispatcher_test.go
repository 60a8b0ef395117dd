package pins

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qetesh/bratwurstpower/core/events"
	"github.com/qetesh/bratwurstpower/core/model"
	"github.com/qetesh/bratwurstpower/infra/hw/pca9557"
	"github.com/qetesh/bratwurstpower/infra/logger"
	"github.com/qetesh/bratwurstpower/internal/eventbus"
	"github.com/qetesh/bratwurstpower/internal/hwtest"
)

var boardPins = []Def{
	{Name: "LED", Pin: 0},
	{Name: "IO1", Pin: 1},
	{Name: "IO2", Pin: 2},
	{Name: "IO3", Pin: 3},
	{Name: "IO4", Pin: 4},
	{Name: "USB2", Pin: 5},
	{Name: "USB1", Pin: 6},
	{Name: "EXT", Pin: 7},
}

type call struct {
	op    string
	pin   int
	value int
}

type fakeExpander struct {
	mu    sync.Mutex
	calls []call
	fail  error
}

func (f *fakeExpander) SetValue(pin int, level model.Level) (model.Level, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return 0, f.fail
	}
	f.calls = append(f.calls, call{"value", pin, int(level)})
	return level, nil
}

func (f *fakeExpander) SetDirection(pin int, dir model.Direction) (model.Direction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return 0, f.fail
	}
	f.calls = append(f.calls, call{"direction", pin, int(dir)})
	return dir, nil
}

func newDispatcher(t *testing.T, exp Expander) (*Dispatcher, *Table, *eventbus.Bus) {
	t.Helper()
	table, err := NewTable(boardPins)
	require.NoError(t, err)
	bus := eventbus.New()
	t.Cleanup(bus.Close)
	return NewDispatcher(table, exp, logger.NopLogger{}, bus), table, bus
}

func drain(ch <-chan eventbus.Event) []events.CommandEvent {
	var out []events.CommandEvent
	for {
		select {
		case ev := <-ch:
			if ce, ok := ev.(events.CommandEvent); ok {
				out = append(out, ce)
			}
		default:
			return out
		}
	}
}

func TestApplyOn(t *testing.T) {
	exp := &fakeExpander{}
	d, table, _ := newDispatcher(t, exp)
	before := table.Snapshot()

	rep := d.Apply([]byte(`{"IO1": "on"}`))
	require.NoError(t, rep.Err)
	assert.Equal(t, []string{"IO1"}, rep.Applied)

	io1, ok := table.Get("IO1")
	require.True(t, ok)
	require.NotNil(t, io1.Direction)
	require.NotNil(t, io1.Value)
	assert.Equal(t, model.DirectionOut, *io1.Direction)
	assert.Equal(t, model.High, *io1.Value)
	assert.Equal(t, model.ModeOn, io1.State)

	after := table.Snapshot()
	for name, ps := range before {
		if name == "IO1" {
			continue
		}
		assert.Equal(t, ps, after[name], name)
	}
	assert.Equal(t, []call{{"value", 1, 1}, {"direction", 1, 0}}, exp.calls)
}

func TestApplyOffAndRelease(t *testing.T) {
	exp := &fakeExpander{}
	d, table, _ := newDispatcher(t, exp)

	rep := d.Apply([]byte(`{"USB1": 0}`))
	require.NoError(t, rep.Err)
	usb1, _ := table.Get("USB1")
	assert.Equal(t, model.ModeOff, usb1.State)
	assert.Equal(t, model.Low, *usb1.Value)

	rep = d.Apply([]byte(`{"USB1": "Release"}`))
	require.NoError(t, rep.Err)
	usb1, _ = table.Get("USB1")
	assert.Equal(t, model.ModeDefault, usb1.State)
	assert.Equal(t, model.DirectionIn, *usb1.Direction)
	assert.Equal(t, model.Low, *usb1.Value, "release leaves the last level in place")

	assert.Equal(t, []call{{"value", 6, 0}, {"direction", 6, 0}, {"direction", 6, 1}}, exp.calls)
}

func TestApplyInvalidValue(t *testing.T) {
	exp := &fakeExpander{}
	d, table, bus := newDispatcher(t, exp)
	sub := bus.Subscribe()
	before, _ := table.Get("IO1")

	rep := d.Apply([]byte(`{"IO1": "bogus"}`))
	require.NoError(t, rep.Err)
	assert.Equal(t, []string{"IO1"}, rep.Invalid)
	assert.Empty(t, rep.Applied)

	after, _ := table.Get("IO1")
	assert.Equal(t, before, after)
	assert.Empty(t, exp.calls)

	evs := drain(sub)
	require.Len(t, evs, 1)
	assert.Equal(t, events.OutcomeInvalid, evs[0].Outcome)
	assert.Equal(t, "bogus", evs[0].Value)
}

func TestApplyUnknownName(t *testing.T) {
	exp := &fakeExpander{}
	d, table, bus := newDispatcher(t, exp)
	sub := bus.Subscribe()
	before := table.Snapshot()

	rep := d.Apply([]byte(`{"NOTAPIN": "on"}`))
	require.NoError(t, rep.Err)
	assert.Equal(t, []string{"NOTAPIN"}, rep.Unknown)
	assert.Equal(t, before, table.Snapshot())
	assert.Empty(t, exp.calls)

	evs := drain(sub)
	require.Len(t, evs, 1)
	assert.Equal(t, events.OutcomeUnknown, evs[0].Outcome)
}

func TestApplyPartial(t *testing.T) {
	exp := &fakeExpander{}
	d, table, _ := newDispatcher(t, exp)

	rep := d.Apply([]byte(`{"IO2": "ON", "NOPE": "on", "IO3": "maybe", "IO4": true, "LED": "-1"}`))
	require.NoError(t, rep.Err)
	assert.Equal(t, []string{"IO2", "IO4", "LED"}, rep.Applied)
	assert.Equal(t, []string{"NOPE"}, rep.Unknown)
	assert.Equal(t, []string{"IO3"}, rep.Invalid)

	io3, _ := table.Get("IO3")
	assert.Equal(t, model.ModeDefault, io3.State)
	assert.Nil(t, io3.Direction)
	io4, _ := table.Get("IO4")
	assert.Equal(t, model.ModeOn, io4.State)
}

func TestApplyOrder(t *testing.T) {
	exp := &fakeExpander{}
	d, _, _ := newDispatcher(t, exp)

	d.Apply([]byte(`{"EXT": "off", "LED": "on"}`))
	require.Len(t, exp.calls, 4)
	assert.Equal(t, 7, exp.calls[0].pin)
	assert.Equal(t, 0, exp.calls[2].pin)
}

func TestApplyDuplicateKeyLastValueWins(t *testing.T) {
	exp := &fakeExpander{}
	d, table, _ := newDispatcher(t, exp)

	rep := d.Apply([]byte(`{"IO2": "on", "LED": "off", "IO2": "release"}`))
	require.NoError(t, rep.Err)
	assert.Equal(t, []string{"IO2", "LED"}, rep.Applied)
	assert.Equal(t, []call{{"direction", 2, 1}, {"value", 0, 0}, {"direction", 0, 0}}, exp.calls)

	io2, _ := table.Get("IO2")
	assert.Equal(t, model.ModeDefault, io2.State)
}

func TestApplyMalformed(t *testing.T) {
	for _, payload := range []string{`not json`, `{"IO1": "on"`, `["IO1"]`, `"on"`, `{"IO1":"on"} trailing`, ``} {
		exp := &fakeExpander{}
		d, table, _ := newDispatcher(t, exp)
		before := table.Snapshot()

		rep := d.Apply([]byte(payload))
		assert.Error(t, rep.Err, payload)
		assert.Empty(t, exp.calls, payload)
		assert.Equal(t, before, table.Snapshot(), payload)
	}
	exp := &fakeExpander{}
	d, _, _ := newDispatcher(t, exp)
	assert.ErrorIs(t, d.Apply([]byte(`[1,2]`)).Err, ErrNotObject)
}

func TestApplyBusFailureStopsMessage(t *testing.T) {
	errBus := errors.New("bus error")
	exp := &fakeExpander{fail: errBus}
	d, table, bus := newDispatcher(t, exp)
	sub := bus.Subscribe()

	rep := d.Apply([]byte(`{"IO1": "on", "IO2": "on"}`))
	assert.ErrorIs(t, rep.Err, errBus)
	assert.Empty(t, rep.Applied)

	io1, _ := table.Get("IO1")
	assert.Equal(t, model.ModeDefault, io1.State)
	evs := drain(sub)
	require.Len(t, evs, 1)
	assert.Equal(t, events.OutcomeFailed, evs[0].Outcome)
}

func TestApplyDrivesRegisters(t *testing.T) {
	hw := hwtest.NewBus()
	dev, err := pca9557.New(hw, pca9557.DefaultAddress, logger.NopLogger{})
	require.NoError(t, err)
	d, _, _ := newDispatcher(t, dev)

	require.NoError(t, d.Apply([]byte(`{"IO1": "on", "EXT": "off"}`)).Err)
	regs := dev.Registers()
	assert.Equal(t, byte(0b0111_1101), regs.Direction)
	assert.Equal(t, byte(0b0000_0010), regs.Output)

	require.NoError(t, d.Apply([]byte(`{"IO1": "default"}`)).Err)
	assert.Equal(t, byte(0b0111_1111), dev.Registers().Direction)
	assert.Equal(t, byte(0b0111_1111), hw.Get(pca9557.DefaultAddress, pca9557.RegConfig))
}

func TestApplyConcurrentWithSnapshot(t *testing.T) {
	hw := hwtest.NewBus()
	dev, err := pca9557.New(hw, pca9557.DefaultAddress, logger.NopLogger{})
	require.NoError(t, err)
	d, table, _ := newDispatcher(t, dev)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := boardPins[i].Name
			for j := 0; j < 50; j++ {
				state := []string{"on", "off", "default"}[j%3]
				d.Apply([]byte(fmt.Sprintf(`{%q: %q}`, name, state)))
			}
		}(i)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for j := 0; j < 200; j++ {
			for _, ps := range table.Snapshot() {
				if ps.State != model.ModeDefault && (ps.Direction == nil || *ps.Direction != model.DirectionOut) {
					t.Errorf("pin %s in %s without output direction", ps.Name, ps.State)
					return
				}
			}
		}
	}()
	wg.Wait()

	// 50 iterations end on j=49 -> "off"
	regs := dev.Registers()
	assert.Equal(t, byte(0x00), regs.Direction)
	assert.Equal(t, byte(0x00), regs.Output)
}

func TestNewTableDuplicate(t *testing.T) {
	_, err := NewTable([]Def{{Name: "A", Pin: 0}, {Name: "A", Pin: 1}})
	assert.Error(t, err)
}
