package metrics

import (
	"time"

	"github.com/qetesh/bratwurstpower/core/model"
)

// Sink records every snapshot taken by the poller.
type Sink interface {
	RecordSnapshot(snap model.Snapshot) error
}

// CommandRecord is the outcome of one pin entry of a command document.
type CommandRecord struct {
	Pin     string
	Value   string
	Outcome string
	Time    time.Time
}

// CommandRecorder is implemented by sinks that count commands.
type CommandRecorder interface {
	RecordCommand(rec CommandRecord) error
}

// SensorFault is a failed read of one power monitor.
type SensorFault struct {
	Sensor string
	Error  string
	Time   time.Time
}

// SensorFaultRecorder is implemented by sinks that count sensor faults.
type SensorFaultRecorder interface {
	RecordSensorFault(f SensorFault) error
}

// NopSink implements every recorder with no-op methods.
type NopSink struct{}

func (NopSink) RecordSnapshot(model.Snapshot) error { return nil }
func (NopSink) RecordCommand(CommandRecord) error   { return nil }
func (NopSink) RecordSensorFault(SensorFault) error { return nil }
