// Package monitor adapts periph.io's INA219 driver to the power.Monitor
// interface.
package monitor

import (
	"fmt"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/ina219"

	"github.com/qetesh/bratwurstpower/core/logger"
	"github.com/qetesh/bratwurstpower/core/power"
)

// Config describes one INA219 on the bus.
type Config struct {
	Name      string  `json:"name"`
	Address   uint16  `json:"address"`
	ShuntOhms float64 `json:"shunt_ohms"`
	MaxAmps   float64 `json:"max_amps"`
	MaxVolts  float64 `json:"max_volts"`
}

// Range returns the bus voltage range the rail needs.
func (c Config) Range() string {
	if c.MaxVolts <= 16.0 {
		return "16V"
	}
	return "32V"
}

// sensor is the subset of *ina219.Dev used here.
type sensor interface {
	Sense() (ina219.PowerMonitor, error)
}

// INA219 is one monitor chip.
type INA219 struct {
	name string
	dev  sensor
}

// New configures the chip calibration for the given shunt and expected
// maximum current.
func New(bus i2c.Bus, cfg Config, log logger.Logger) (*INA219, error) {
	opts := ina219.Opts{
		Address:       int(cfg.Address),
		SenseResistor: physic.ElectricResistance(cfg.ShuntOhms * float64(physic.Ohm)),
		MaxCurrent:    physic.ElectricCurrent(cfg.MaxAmps * float64(physic.Ampere)),
	}
	dev, err := ina219.New(bus, &opts)
	if err != nil {
		return nil, fmt.Errorf("ina219 %s at 0x%02X: %w", cfg.Name, cfg.Address, err)
	}
	log.Debugf("ina219 %s at 0x%02X: shunt %s, max %s, range %s",
		cfg.Name, cfg.Address, opts.SenseResistor, opts.MaxCurrent, cfg.Range())
	return &INA219{name: cfg.Name, dev: dev}, nil
}

// Sense reads the chip and converts to V, mA, mW and mV.
func (d *INA219) Sense() (power.Measurement, error) {
	pm, err := d.dev.Sense()
	if err != nil {
		return power.Measurement{}, fmt.Errorf("ina219 %s: %w", d.name, err)
	}
	return power.Measurement{
		Voltage:      float64(pm.Voltage) / float64(physic.Volt),
		Current:      float64(pm.Current) / float64(physic.MilliAmpere),
		Power:        float64(pm.Power) / float64(physic.MilliWatt),
		ShuntVoltage: float64(pm.Shunt) / float64(physic.MilliVolt),
	}, nil
}
