package power

import (
	"github.com/qetesh/bratwurstpower/core/events"
	"github.com/qetesh/bratwurstpower/core/logger"
	"github.com/qetesh/bratwurstpower/core/model"
	"github.com/qetesh/bratwurstpower/internal/eventbus"
)

// Named pairs a monitor with its published name.
type Named struct {
	Name    string
	Monitor Monitor
}

// Reader samples every configured monitor.
type Reader struct {
	monitors []Named
	log      logger.Logger
	bus      eventbus.EventBus
}

// NewReader creates a Reader. bus may be nil.
func NewReader(monitors []Named, log logger.Logger, bus eventbus.EventBus) *Reader {
	return &Reader{monitors: monitors, log: log, bus: bus}
}

// Names returns the sensor names in configuration order.
func (r *Reader) Names() []string {
	names := make([]string, len(r.monitors))
	for i, m := range r.monitors {
		names[i] = m.Name
	}
	return names
}

// Read samples all monitors. A failing monitor is reported as a zero reading
// so one broken rail does not take down the whole tick.
func (r *Reader) Read() model.PowerStats {
	out := make(model.PowerStats, len(r.monitors))
	for _, m := range r.monitors {
		meas, err := m.Monitor.Sense()
		if err != nil {
			r.log.Errorf("read sensor %s: %v", m.Name, err)
			if r.bus != nil {
				r.bus.Publish(events.SensorFaultEvent{Sensor: m.Name, Err: err})
			}
			out[m.Name] = model.SensorReading{}
			continue
		}
		out[m.Name] = NewReading(meas)
	}
	return out
}
