package model

// SensorReading is the published value set of one power monitor.
// Voltage is in V, Current in mA, Power in W and ShuntVoltage in mV.
type SensorReading struct {
	Voltage      float64 `json:"voltage"`
	Current      float64 `json:"current"`
	Power        float64 `json:"power"`
	ShuntVoltage float64 `json:"shunt_voltage"`
}

// PowerStats is the powerstats document, keyed by sensor name.
type PowerStats map[string]SensorReading
