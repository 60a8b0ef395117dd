// Package power turns raw power-monitor measurements into published readings.
package power

import (
	"gonum.org/v1/gonum/floats/scalar"

	"github.com/qetesh/bratwurstpower/core/model"
)

// PresenceThreshold is the bus voltage at or below which a rail is treated as
// unpowered and reported as all zeros.
const PresenceThreshold = 1.0

// Measurement is one raw sample of a monitor chip.
type Measurement struct {
	Voltage      float64 // bus voltage in V
	Current      float64 // mA
	Power        float64 // mW
	ShuntVoltage float64 // mV
}

// Monitor is a power-monitor device.
type Monitor interface {
	Sense() (Measurement, error)
}

// NewReading rounds a measurement to the published resolution, halves to
// even. Rails at or below PresenceThreshold yield a zero reading rather than
// ADC noise.
func NewReading(m Measurement) model.SensorReading {
	voltage := scalar.RoundEven(m.Voltage, 2)
	if voltage <= PresenceThreshold {
		return model.SensorReading{}
	}
	return model.SensorReading{
		Voltage:      voltage,
		Current:      scalar.RoundEven(m.Current, 1),
		Power:        scalar.RoundEven(m.Power, 0) / 1000,
		ShuntVoltage: scalar.RoundEven(m.ShuntVoltage, 3),
	}
}
