package events

// SensorFaultEvent is published when a power monitor read fails and the
// sensor is reported as a zero reading for the tick.
type SensorFaultEvent struct {
	Sensor string
	Err    error
}
