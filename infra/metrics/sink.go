package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/qetesh/bratwurstpower/core/metrics"
)

// NewSink builds the sinks enabled in cfg. It returns a NopSink when none is
// enabled and the single sink when only one is.
func NewSink(cfg coremetrics.Config, host string, reg prometheus.Registerer) (coremetrics.Sink, error) {
	var sinks []coremetrics.Sink
	if cfg.PrometheusEnabled {
		s, err := NewPromSinkWithRegistry(reg)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, s)
	}
	if cfg.InfluxEnabled {
		sinks = append(sinks, NewInfluxSinkWithFallback(cfg, host))
	}
	switch len(sinks) {
	case 0:
		return coremetrics.NopSink{}, nil
	case 1:
		return sinks[0], nil
	default:
		return NewMultiSink(sinks...), nil
	}
}
