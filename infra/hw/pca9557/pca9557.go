// Package pca9557 drives the NXP PCA9557 8-bit I2C GPIO expander.
//
// The chip has four byte-wide registers. Every write transmits a whole byte,
// so the driver keeps a shadow copy of each writable register and changes one
// bit at a time in the shadow before transferring it. The shadow is only
// committed after the transfer succeeded.
package pca9557

import (
	"errors"
	"fmt"
	"sync"

	"periph.io/x/conn/v3/i2c"

	"github.com/qetesh/bratwurstpower/core/logger"
	"github.com/qetesh/bratwurstpower/core/model"
)

// Register addresses.
const (
	RegInput    byte = 0
	RegOutput   byte = 1
	RegPolarity byte = 2
	RegConfig   byte = 3
)

// Power-on register values from the datasheet.
const (
	resetConfig   byte = 0xFF
	resetOutput   byte = 0x00
	resetPolarity byte = 0xF0
)

// DefaultAddress is the address used on the Bratwurst Power board.
const DefaultAddress uint16 = 0x1F

// Pins is the number of I/O lines.
const Pins = 8

// ErrPinRange is returned for pin indexes outside 0..7.
var ErrPinRange = errors.New("pca9557: pin out of range")

// RegisterState is a copy of the shadow registers.
type RegisterState struct {
	Direction byte
	Output    byte
	Polarity  byte
}

// Dev is a PCA9557 at one bus address.
type Dev struct {
	dev *i2c.Dev
	log logger.Logger

	mu    sync.Mutex
	state RegisterState
}

// New creates the driver and runs Init so the chip is in a known state
// regardless of what it powered up with.
func New(bus i2c.Bus, addr uint16, log logger.Logger) (*Dev, error) {
	d := &Dev{
		dev: &i2c.Dev{Bus: bus, Addr: addr},
		log: log,
		state: RegisterState{
			Direction: resetConfig,
			Output:    resetOutput,
			Polarity:  resetPolarity,
		},
	}
	log.Debugf("initializing PCA9557 at 0x%02X", addr)
	if err := d.Init(); err != nil {
		return nil, err
	}
	return d, nil
}

// Open attaches to a chip that is already in use without writing to it. The
// shadow registers are seeded from the chip, so the driver can report the
// current configuration.
func Open(bus i2c.Bus, addr uint16, log logger.Logger) (*Dev, error) {
	d := &Dev{dev: &i2c.Dev{Bus: bus, Addr: addr}, log: log}
	for _, r := range []struct {
		reg    byte
		shadow *byte
	}{
		{RegOutput, &d.state.Output},
		{RegPolarity, &d.state.Polarity},
		{RegConfig, &d.state.Direction},
	} {
		v, err := d.readReg(r.reg)
		if err != nil {
			return nil, err
		}
		*r.shadow = v
	}
	return d, nil
}

// Init sets all pins to non-inverted inputs.
func (d *Dev) Init() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.writeReg(RegPolarity, 0x00, &d.state.Polarity); err != nil {
		return err
	}
	return d.writeReg(RegConfig, 0xFF, &d.state.Direction)
}

// SetValue drives the output latch of pin to level. The level only reaches
// the pin once its direction is output.
func (d *Dev) SetValue(pin int, level model.Level) (model.Level, error) {
	if err := checkPin(pin); err != nil {
		return 0, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.log.Debugf("setting pin %d %s", pin, levelName(level))
	next := WriteBit(d.state.Output, pin, level == model.High)
	if err := d.writeReg(RegOutput, next, &d.state.Output); err != nil {
		return 0, err
	}
	return level, nil
}

// Value reads pin from the input port register. This reflects the physical
// line, not the output latch.
func (d *Dev) Value(pin int) (model.Level, error) {
	if err := checkPin(pin); err != nil {
		return 0, err
	}
	d.log.Debugf("reading pin %d", pin)
	raw, err := d.ReadRaw()
	if err != nil {
		return 0, err
	}
	return model.Level((raw >> uint(pin)) & 1), nil
}

// SetDirection configures pin as input or output.
func (d *Dev) SetDirection(pin int, dir model.Direction) (model.Direction, error) {
	if err := checkPin(pin); err != nil {
		return 0, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.log.Debugf("setting pin %d to %s", pin, dir)
	next := WriteBit(d.state.Direction, pin, dir == model.DirectionIn)
	if err := d.writeReg(RegConfig, next, &d.state.Direction); err != nil {
		return 0, err
	}
	return dir, nil
}

// SetPolarity enables or disables input inversion for pin.
func (d *Dev) SetPolarity(pin int, inverted bool) (bool, error) {
	if err := checkPin(pin); err != nil {
		return false, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if inverted {
		d.log.Debugf("setting pin %d to inverted", pin)
	} else {
		d.log.Debugf("setting pin %d to non-inverted", pin)
	}
	next := WriteBit(d.state.Polarity, pin, inverted)
	if err := d.writeReg(RegPolarity, next, &d.state.Polarity); err != nil {
		return false, err
	}
	return inverted, nil
}

// ReadRaw reads the input port register.
func (d *Dev) ReadRaw() (byte, error) {
	v, err := d.readReg(RegInput)
	if err != nil {
		return 0, err
	}
	d.log.Debugf("read input port register 0b%08b", v)
	return v, nil
}

func (d *Dev) readReg(reg byte) (byte, error) {
	var buf [1]byte
	if err := d.dev.Tx([]byte{reg}, buf[:]); err != nil {
		return 0, fmt.Errorf("pca9557 0x%02X: read register %d: %w", d.dev.Addr, reg, err)
	}
	return buf[0], nil
}

// Registers returns the shadow register values.
func (d *Dev) Registers() RegisterState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// writeReg transfers the full byte and commits it to the shadow on success.
// Callers hold d.mu.
func (d *Dev) writeReg(reg, value byte, shadow *byte) error {
	d.log.Debugf("writing register %d = 0b%08b", reg, value)
	if err := d.dev.Tx([]byte{reg, value}, nil); err != nil {
		return fmt.Errorf("pca9557 0x%02X: write register %d: %w", d.dev.Addr, reg, err)
	}
	*shadow = value
	return nil
}

func checkPin(pin int) error {
	if pin < 0 || pin >= Pins {
		return fmt.Errorf("%w: %d", ErrPinRange, pin)
	}
	return nil
}

func levelName(l model.Level) string {
	if l == model.High {
		return "high"
	}
	return "low"
}
