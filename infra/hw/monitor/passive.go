package monitor

import (
	"encoding/binary"
	"fmt"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"

	"github.com/qetesh/bratwurstpower/core/power"
)

// INA219 register addresses and scales read by Passive.
const (
	regShuntVoltage byte = 0x01
	regBusVoltage   byte = 0x02

	shuntLSB = 10 * physic.MicroVolt
	busLSB   = 4 * physic.MilliVolt
)

// Passive reads an INA219 that another process owns. It never touches the
// configuration or calibration registers: current and power are derived from
// the shunt and bus voltages and the configured shunt resistance.
type Passive struct {
	cfg Config
	dev *i2c.Dev
}

// NewPassive returns a reader for the chip described by cfg.
func NewPassive(bus i2c.Bus, cfg Config) (*Passive, error) {
	if cfg.ShuntOhms <= 0 {
		return nil, fmt.Errorf("ina219 %s: shunt_ohms must be positive", cfg.Name)
	}
	return &Passive{cfg: cfg, dev: &i2c.Dev{Bus: bus, Addr: cfg.Address}}, nil
}

// Sense reads the shunt and bus voltage registers.
func (p *Passive) Sense() (power.Measurement, error) {
	rawShunt, err := p.read(regShuntVoltage)
	if err != nil {
		return power.Measurement{}, err
	}
	rawBus, err := p.read(regBusVoltage)
	if err != nil {
		return power.Measurement{}, err
	}
	shunt := physic.ElectricPotential(int16(rawShunt)) * shuntLSB
	volts := float64(physic.ElectricPotential(rawBus>>3)*busLSB) / float64(physic.Volt)
	shuntMV := float64(shunt) / float64(physic.MilliVolt)
	milliamps := shuntMV / p.cfg.ShuntOhms
	return power.Measurement{
		Voltage:      volts,
		Current:      milliamps,
		Power:        volts * milliamps,
		ShuntVoltage: shuntMV,
	}, nil
}

func (p *Passive) read(reg byte) (uint16, error) {
	var buf [2]byte
	if err := p.dev.Tx([]byte{reg}, buf[:]); err != nil {
		return 0, fmt.Errorf("ina219 %s: read register %d: %w", p.cfg.Name, reg, err)
	}
	return binary.BigEndian.Uint16(buf[:]), nil
}
