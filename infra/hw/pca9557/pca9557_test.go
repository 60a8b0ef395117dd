package pca9557

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qetesh/bratwurstpower/core/model"
	"github.com/qetesh/bratwurstpower/infra/logger"
	"github.com/qetesh/bratwurstpower/internal/hwtest"
)

const addr = DefaultAddress

func newDev(t *testing.T) (*Dev, *hwtest.Bus) {
	t.Helper()
	bus := hwtest.NewBus()
	// chip power-on values
	bus.Set(addr, RegPolarity, 0xF0)
	bus.Set(addr, RegConfig, 0xFF)
	d, err := New(bus, addr, logger.NopLogger{})
	require.NoError(t, err)
	bus.Reset()
	return d, bus
}

func TestInit(t *testing.T) {
	bus := hwtest.NewBus()
	bus.Set(addr, RegPolarity, 0xF0)
	bus.Set(addr, RegConfig, 0x00)
	d, err := New(bus, addr, logger.NopLogger{})
	require.NoError(t, err)

	writes := bus.Writes(addr)
	require.Len(t, writes, 2)
	assert.Equal(t, []byte{RegPolarity, 0x00}, writes[0].W)
	assert.Equal(t, []byte{RegConfig, 0xFF}, writes[1].W)

	regs := d.Registers()
	assert.Equal(t, byte(0xFF), regs.Direction)
	assert.Equal(t, byte(0x00), regs.Polarity)
	assert.Equal(t, byte(0x00), regs.Output)
}

func TestSetValueWritesFullShadow(t *testing.T) {
	d, bus := newDev(t)

	_, err := d.SetValue(1, model.High)
	require.NoError(t, err)
	_, err = d.SetValue(6, model.High)
	require.NoError(t, err)
	lvl, err := d.SetValue(1, model.Low)
	require.NoError(t, err)
	assert.Equal(t, model.Low, lvl)

	writes := bus.Writes(addr)
	require.Len(t, writes, 3)
	assert.Equal(t, []byte{RegOutput, 0b0000_0010}, writes[0].W)
	assert.Equal(t, []byte{RegOutput, 0b0100_0010}, writes[1].W)
	assert.Equal(t, []byte{RegOutput, 0b0100_0000}, writes[2].W)
	assert.Equal(t, byte(0b0100_0000), d.Registers().Output)
}

func TestSetDirection(t *testing.T) {
	d, bus := newDev(t)

	dir, err := d.SetDirection(3, model.DirectionOut)
	require.NoError(t, err)
	assert.Equal(t, model.DirectionOut, dir)
	assert.Equal(t, byte(0b1111_0111), bus.Get(addr, RegConfig))

	_, err = d.SetDirection(3, model.DirectionIn)
	require.NoError(t, err)
	assert.Equal(t, byte(0xFF), d.Registers().Direction)
}

func TestSetPolarity(t *testing.T) {
	d, bus := newDev(t)

	inv, err := d.SetPolarity(7, true)
	require.NoError(t, err)
	assert.True(t, inv)
	assert.Equal(t, byte(0x80), bus.Get(addr, RegPolarity))
	// other shadows untouched
	assert.Equal(t, byte(0xFF), d.Registers().Direction)
	assert.Equal(t, byte(0x00), d.Registers().Output)
}

func TestValueReadsInputRegister(t *testing.T) {
	d, bus := newDev(t)
	bus.Set(addr, RegInput, 0b0010_0100)

	// the output latch must not influence the readback
	_, err := d.SetValue(2, model.Low)
	require.NoError(t, err)

	for pin, want := range map[int]model.Level{0: model.Low, 2: model.High, 5: model.High, 7: model.Low} {
		got, err := d.Value(pin)
		require.NoError(t, err)
		assert.Equal(t, want, got, "pin %d", pin)
	}
	raw, err := d.ReadRaw()
	require.NoError(t, err)
	assert.Equal(t, byte(0b0010_0100), raw)
}

func TestPinRange(t *testing.T) {
	d, bus := newDev(t)
	for _, pin := range []int{-1, 8} {
		_, err := d.SetValue(pin, model.High)
		assert.ErrorIs(t, err, ErrPinRange)
		_, err = d.SetDirection(pin, model.DirectionOut)
		assert.ErrorIs(t, err, ErrPinRange)
		_, err = d.SetPolarity(pin, true)
		assert.ErrorIs(t, err, ErrPinRange)
		_, err = d.Value(pin)
		assert.ErrorIs(t, err, ErrPinRange)
	}
	assert.Empty(t, bus.Writes(addr))
}

func TestFailedWriteKeepsShadow(t *testing.T) {
	d, bus := newDev(t)
	_, err := d.SetValue(0, model.High)
	require.NoError(t, err)

	errBus := errors.New("bus error")
	bus.FailNext(errBus)
	_, err = d.SetValue(4, model.High)
	assert.ErrorIs(t, err, errBus)
	assert.Equal(t, byte(0x01), d.Registers().Output)

	// the next write carries the committed shadow, not the lost update
	_, err = d.SetValue(1, model.High)
	require.NoError(t, err)
	assert.Equal(t, byte(0x03), bus.Get(addr, RegOutput))
}

func TestOpenSeedsShadowWithoutWriting(t *testing.T) {
	bus := hwtest.NewBus()
	bus.Set(addr, RegOutput, 0x02)
	bus.Set(addr, RegPolarity, 0x00)
	bus.Set(addr, RegConfig, 0xFD)

	d, err := Open(bus, addr, logger.NopLogger{})
	require.NoError(t, err)
	assert.Empty(t, bus.Writes(addr))
	assert.Equal(t, RegisterState{Direction: 0xFD, Output: 0x02, Polarity: 0x00}, d.Registers())

	// a later change keeps the other pins as the chip had them
	_, err = d.SetDirection(0, model.DirectionOut)
	require.NoError(t, err)
	assert.Equal(t, byte(0xFC), bus.Get(addr, RegConfig))
}

func TestOpenReportsReadError(t *testing.T) {
	bus := hwtest.NewBus()
	bus.FailNext(nil, assert.AnError)
	_, err := Open(bus, addr, logger.NopLogger{})
	assert.ErrorIs(t, err, assert.AnError)
}
