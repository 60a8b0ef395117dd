package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/qetesh/bratwurstpower/core/metrics"
	"github.com/qetesh/bratwurstpower/core/model"
)

var pinModes = []model.Mode{model.ModeOn, model.ModeOff, model.ModeDefault}

// PromSink exposes the latest readings and running counters as Prometheus metrics.
type PromSink struct {
	voltage  *prometheus.GaugeVec
	current  *prometheus.GaugeVec
	power    *prometheus.GaugeVec
	shunt    *prometheus.GaugeVec
	pinState *prometheus.GaugeVec
	samples  prometheus.Counter
	commands *prometheus.CounterVec
	faults   *prometheus.CounterVec
}

// NewPromSink registers the metrics on the default Prometheus registerer.
// The HTTP endpoint is started separately with StartPromServer.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	rail := func(name, help string) *prometheus.GaugeVec {
		return prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: name, Help: help}, []string{"rail"})
	}
	s := &PromSink{}
	var err error
	if s.voltage, err = register(reg, rail("bratwurst_rail_voltage_volts", "Bus voltage of a power rail")); err != nil {
		return nil, err
	}
	if s.current, err = register(reg, rail("bratwurst_rail_current_milliamperes", "Current drawn from a power rail")); err != nil {
		return nil, err
	}
	if s.power, err = register(reg, rail("bratwurst_rail_power_watts", "Power drawn from a power rail")); err != nil {
		return nil, err
	}
	if s.shunt, err = register(reg, rail("bratwurst_rail_shunt_millivolts", "Voltage across the shunt resistor of a power rail")); err != nil {
		return nil, err
	}
	if s.pinState, err = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "bratwurst_pin_state",
		Help: "1 for the current state of an expander pin, 0 otherwise",
	}, []string{"pin", "state"})); err != nil {
		return nil, err
	}
	if s.samples, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bratwurst_samples_total",
		Help: "Number of snapshots taken",
	})); err != nil {
		return nil, err
	}
	if s.commands, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bratwurst_commands_total",
		Help: "Pin commands received, by outcome",
	}, []string{"pin", "outcome"})); err != nil {
		return nil, err
	}
	if s.faults, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bratwurst_sensor_faults_total",
		Help: "Failed power monitor reads",
	}, []string{"sensor"})); err != nil {
		return nil, err
	}
	return s, nil
}

// RecordSnapshot updates the rail gauges and the pin state gauge.
func (s *PromSink) RecordSnapshot(snap model.Snapshot) error {
	s.samples.Inc()
	for name, r := range snap.Power {
		s.voltage.WithLabelValues(name).Set(r.Voltage)
		s.current.WithLabelValues(name).Set(r.Current)
		s.power.WithLabelValues(name).Set(r.Power)
		s.shunt.WithLabelValues(name).Set(r.ShuntVoltage)
	}
	for name, p := range snap.Pins {
		for _, m := range pinModes {
			v := 0.0
			if p.State == m {
				v = 1
			}
			s.pinState.WithLabelValues(name, string(m)).Set(v)
		}
	}
	return nil
}

// RecordCommand counts one command outcome.
func (s *PromSink) RecordCommand(rec coremetrics.CommandRecord) error {
	s.commands.WithLabelValues(rec.Pin, rec.Outcome).Inc()
	return nil
}

// RecordSensorFault counts one failed read.
func (s *PromSink) RecordSensorFault(f coremetrics.SensorFault) error {
	s.faults.WithLabelValues(f.Sensor).Inc()
	return nil
}
