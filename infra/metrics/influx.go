package metrics

import (
	"context"
	"net/http"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/qetesh/bratwurstpower/core/logger"
	coremetrics "github.com/qetesh/bratwurstpower/core/metrics"
	"github.com/qetesh/bratwurstpower/core/model"
	infralogger "github.com/qetesh/bratwurstpower/infra/logger"
)

const influxTimeout = 5 * time.Second

// InfluxSink writes readings and events to InfluxDB using the official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	host     string
	log      logger.Logger
}

// NewInfluxSink creates a sink for the given InfluxDB endpoint. Every point
// is tagged with host.
func NewInfluxSink(url, token, org, bucket, host string) *InfluxSink {
	base := strings.TrimSuffix(url, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: influxTimeout}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		host:     host,
		log:      infralogger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback pings the InfluxDB instance and returns a NopSink
// if the health check fails.
func NewInfluxSinkWithFallback(cfg coremetrics.Config, host string) coremetrics.Sink {
	sink := NewInfluxSink(cfg.InfluxURL, cfg.InfluxToken, cfg.InfluxOrg, cfg.InfluxBucket, host)
	ctx, cancel := context.WithTimeout(context.Background(), influxTimeout)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

// RecordSnapshot writes one power_rail point per sensor and one pin_state
// point per pin.
func (s *InfluxSink) RecordSnapshot(snap model.Snapshot) error {
	ts := snap.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	points := make([]*write.Point, 0, len(snap.Power)+len(snap.Pins))
	for name, r := range snap.Power {
		points = append(points, write.NewPointWithMeasurement("power_rail").
			AddTag("host", s.host).
			AddTag("rail", name).
			AddField("voltage", r.Voltage).
			AddField("current", r.Current).
			AddField("power", r.Power).
			AddField("shunt_voltage", r.ShuntVoltage).
			SetTime(ts))
	}
	for name, p := range snap.Pins {
		pt := write.NewPointWithMeasurement("pin_state").
			AddTag("host", s.host).
			AddTag("pin", name).
			AddField("index", p.Pin).
			AddField("state", string(p.State))
		if p.Value != nil {
			pt = pt.AddField("value", int(*p.Value))
		}
		if p.Direction != nil {
			pt = pt.AddField("direction", p.Direction.String())
		}
		points = append(points, pt.SetTime(ts))
	}
	if len(points) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), influxTimeout)
	defer cancel()
	return s.writeAPI.WritePoint(ctx, points...)
}

// RecordCommand writes a pin_command point.
func (s *InfluxSink) RecordCommand(rec coremetrics.CommandRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), influxTimeout)
	defer cancel()
	p := write.NewPointWithMeasurement("pin_command").
		AddTag("host", s.host).
		AddTag("outcome", rec.Outcome).
		AddTag("pin", rec.Pin).
		AddField("value", rec.Value).
		SetTime(rec.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordSensorFault writes a sensor_fault point.
func (s *InfluxSink) RecordSensorFault(f coremetrics.SensorFault) error {
	ctx, cancel := context.WithTimeout(context.Background(), influxTimeout)
	defer cancel()
	p := write.NewPointWithMeasurement("sensor_fault").
		AddTag("host", s.host).
		AddTag("sensor", f.Sensor).
		AddField("error", f.Error).
		SetTime(f.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// Close flushes and closes the client.
func (s *InfluxSink) Close() { s.client.Close() }
