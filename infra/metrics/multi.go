package metrics

import (
	"errors"

	coremetrics "github.com/qetesh/bratwurstpower/core/metrics"
	"github.com/qetesh/bratwurstpower/core/model"
)

// MultiSink fans records out to several sinks. Every sink is called even if
// an earlier one fails; the errors are joined.
type MultiSink struct {
	Sinks []coremetrics.Sink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...coremetrics.Sink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordSnapshot forwards the snapshot to all sinks.
func (m *MultiSink) RecordSnapshot(snap model.Snapshot) error {
	var errs []error
	for _, s := range m.Sinks {
		if err := s.RecordSnapshot(snap); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RecordCommand forwards to the sinks that count commands.
func (m *MultiSink) RecordCommand(rec coremetrics.CommandRecord) error {
	var errs []error
	for _, s := range m.Sinks {
		if r, ok := s.(coremetrics.CommandRecorder); ok {
			if err := r.RecordCommand(rec); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// RecordSensorFault forwards to the sinks that count sensor faults.
func (m *MultiSink) RecordSensorFault(f coremetrics.SensorFault) error {
	var errs []error
	for _, s := range m.Sinks {
		if r, ok := s.(coremetrics.SensorFaultRecorder); ok {
			if err := r.RecordSensorFault(f); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// Close releases the sinks that hold connections.
func (m *MultiSink) Close() {
	for _, s := range m.Sinks {
		if c, ok := s.(interface{ Close() }); ok {
			c.Close()
		}
	}
}
