package metrics

import (
	"context"
	"time"

	"github.com/qetesh/bratwurstpower/core/events"
	"github.com/qetesh/bratwurstpower/core/logger"
	coremetrics "github.com/qetesh/bratwurstpower/core/metrics"
	"github.com/qetesh/bratwurstpower/internal/eventbus"
)

// StartEventCollector subscribes to the event bus and records command and
// sensor fault events on sink. It stops when the context is canceled or the
// bus is closed; the returned channel is closed once it has.
func StartEventCollector(ctx context.Context, bus eventbus.EventBus, sink coremetrics.Sink, log logger.Logger) <-chan struct{} {
	done := make(chan struct{})
	if bus == nil || sink == nil {
		close(done)
		return done
	}
	sub := bus.Subscribe()
	go func() {
		defer close(done)
		defer bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				if err := record(sink, ev); err != nil {
					log.Warnf("record event: %v", err)
				}
			}
		}
	}()
	return done
}

func record(sink coremetrics.Sink, ev eventbus.Event) error {
	switch e := ev.(type) {
	case events.CommandEvent:
		if r, ok := sink.(coremetrics.CommandRecorder); ok {
			return r.RecordCommand(coremetrics.CommandRecord{
				Pin:     e.Pin,
				Value:   e.Value,
				Outcome: e.Outcome,
				Time:    time.Now(),
			})
		}
	case events.SensorFaultEvent:
		if r, ok := sink.(coremetrics.SensorFaultRecorder); ok {
			msg := ""
			if e.Err != nil {
				msg = e.Err.Error()
			}
			return r.RecordSensorFault(coremetrics.SensorFault{Sensor: e.Sensor, Error: msg, Time: time.Now()})
		}
	}
	return nil
}
