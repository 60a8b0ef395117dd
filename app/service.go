// Package app wires the hardware drivers, the sampling loop, the broker
// session and the metrics sinks into one service.
package app

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"periph.io/x/conn/v3/i2c"

	"github.com/qetesh/bratwurstpower/config"
	"github.com/qetesh/bratwurstpower/core/discovery"
	coremetrics "github.com/qetesh/bratwurstpower/core/metrics"
	"github.com/qetesh/bratwurstpower/core/model"
	"github.com/qetesh/bratwurstpower/core/pins"
	"github.com/qetesh/bratwurstpower/core/poller"
	"github.com/qetesh/bratwurstpower/core/power"
	"github.com/qetesh/bratwurstpower/infra/hw"
	"github.com/qetesh/bratwurstpower/infra/hw/monitor"
	"github.com/qetesh/bratwurstpower/infra/hw/pca9557"
	"github.com/qetesh/bratwurstpower/infra/logger"
	"github.com/qetesh/bratwurstpower/infra/metrics"
	"github.com/qetesh/bratwurstpower/infra/mqtt"
	"github.com/qetesh/bratwurstpower/infra/snapshot"
	"github.com/qetesh/bratwurstpower/internal/eventbus"
)

// Service owns every component of the daemon.
type Service struct {
	cfg *config.Config
	log logger.Logger

	closer     io.Closer
	events     *eventbus.Bus
	expander   *pca9557.Dev
	table      *pins.Table
	dispatcher *pins.Dispatcher
	reader     *power.Reader
	sampler    *poller.Sampler
	client     *mqtt.Client
	sink       coremetrics.Sink
	registry   *prometheus.Registry
}

type options struct {
	noMQTT     bool
	noMetrics  bool
	registry   *prometheus.Registry
	extraSinks []poller.Sink
	events     *eventbus.Bus
}

// Option customises New and NewWithBus.
type Option func(*options)

// WithoutMQTT skips the broker session regardless of configuration.
func WithoutMQTT() Option { return func(o *options) { o.noMQTT = true } }

// WithoutMetrics skips the metrics sinks regardless of configuration.
func WithoutMetrics() Option { return func(o *options) { o.noMetrics = true } }

// WithRegistry registers the Prometheus metrics on reg instead of the
// default registry.
func WithRegistry(reg *prometheus.Registry) Option { return func(o *options) { o.registry = reg } }

// WithEvents makes the service publish command and sensor-fault events on
// bus. The service owns bus from then on and closes it in Close or when
// construction fails.
func WithEvents(bus *eventbus.Bus) Option { return func(o *options) { o.events = bus } }

// WithSink adds a snapshot sink after the built-in ones.
func WithSink(s poller.Sink) Option {
	return func(o *options) { o.extraSinks = append(o.extraSinks, s) }
}

// New opens the configured I2C bus and builds the service on it. The bus is
// closed by Close.
func New(cfg *config.Config, opts ...Option) (*Service, error) {
	bus, err := hw.OpenBus(cfg.I2C.Bus)
	if err != nil {
		return nil, err
	}
	svc, err := NewWithBus(cfg, bus, opts...)
	if err != nil {
		_ = bus.Close()
		return nil, err
	}
	svc.closer = bus
	return svc, nil
}

// NewWithBus builds the service on an already open bus.
func NewWithBus(cfg *config.Config, bus i2c.Bus, opts ...Option) (*Service, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	log := logger.New("service")
	events := o.events
	if events == nil {
		events = eventbus.New()
	}
	s := &Service{cfg: cfg, log: log, events: events}

	rbus := hw.NewRetryBus(bus, cfg.RetryConfig(), logger.New("i2c"))
	exp, err := pca9557.New(rbus, cfg.I2C.ExpanderAddress, logger.New("pca9557"))
	if err != nil {
		s.events.Close()
		return nil, fmt.Errorf("expander: %w", err)
	}
	s.expander = exp

	named := make([]power.Named, 0, len(cfg.Sensors))
	for _, sc := range cfg.Sensors {
		m, err := monitor.New(rbus, sc, logger.New("ina219"))
		if err != nil {
			s.events.Close()
			return nil, fmt.Errorf("sensor: %w", err)
		}
		named = append(named, power.Named{Name: sc.Name, Monitor: m})
	}
	s.reader = power.NewReader(named, logger.New("power"), s.events)

	if s.table, err = pins.NewTable(cfg.Pins); err != nil {
		s.events.Close()
		return nil, err
	}
	s.dispatcher = pins.NewDispatcher(s.table, exp, logger.New("pins"), s.events)

	sinks := []poller.Sink{snapshot.NewFileSink(cfg.General.RuntimeDirectory)}

	s.sink = coremetrics.NopSink{}
	if !o.noMetrics {
		var reg prometheus.Registerer
		if o.registry != nil {
			reg = o.registry
			s.registry = o.registry
		}
		if s.sink, err = metrics.NewSink(cfg.Metrics, cfg.General.Hostname, reg); err != nil {
			s.events.Close()
			return nil, fmt.Errorf("metrics: %w", err)
		}
		sinks = append(sinks, poller.SinkFunc(func(_ context.Context, snap model.Snapshot) error {
			return s.sink.RecordSnapshot(snap)
		}))
	}

	if cfg.MQTT.Enabled && !o.noMQTT {
		msgs, err := DiscoveryMessages(cfg)
		if err != nil {
			_ = s.Close()
			return nil, err
		}
		s.client, err = mqtt.NewClient(cfg.ClientConfig(), Topics(cfg), logger.New("mqtt"),
			mqtt.WithCommands(s.dispatcher), mqtt.WithDiscovery(msgs))
		if err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("mqtt client: %w", err)
		}
		sinks = append(sinks, s.client)
	}
	sinks = append(sinks, o.extraSinks...)

	s.sampler, err = poller.New(poller.Config{
		Interval:     cfg.MeasurementInterval(),
		PollInterval: cfg.PollInterval(),
	}, s.reader, s.table, logger.New("poller"), sinks...)
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// Inspect reads one snapshot from hardware that a running daemon may own.
// Nothing is written to the bus: the expander is opened without Init, the
// monitors keep their calibration, and pin states come from the expander
// registers rather than a command table.
func Inspect(cfg *config.Config, bus i2c.Bus) (model.Snapshot, error) {
	rbus := hw.NewRetryBus(bus, cfg.RetryConfig(), logger.New("i2c"))
	exp, err := pca9557.Open(rbus, cfg.I2C.ExpanderAddress, logger.New("pca9557"))
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("expander: %w", err)
	}
	input, err := exp.ReadRaw()
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("expander: %w", err)
	}
	regs := exp.Registers()

	named := make([]power.Named, 0, len(cfg.Sensors))
	for _, sc := range cfg.Sensors {
		m, err := monitor.NewPassive(rbus, sc)
		if err != nil {
			return model.Snapshot{}, fmt.Errorf("sensor: %w", err)
		}
		named = append(named, power.Named{Name: sc.Name, Monitor: m})
	}
	reader := power.NewReader(named, logger.New("power"), nil)

	return model.Snapshot{
		Time:  time.Now(),
		Power: reader.Read(),
		Pins:  pins.FromRegisters(cfg.Pins, input, regs.Output, regs.Direction),
	}, nil
}

// Topics returns the per-host topics of cfg.
func Topics(cfg *config.Config) model.Topics {
	return model.NewTopics(cfg.MQTT.BaseTopic, cfg.General.Hostname)
}

// DiscoveryMessages builds the discovery burst for the configured pins and
// sensors without touching the hardware.
func DiscoveryMessages(cfg *config.Config) ([]discovery.Message, error) {
	pinNames := make([]string, len(cfg.Pins))
	for i, p := range cfg.Pins {
		pinNames[i] = p.Name
	}
	sensorNames := make([]string, len(cfg.Sensors))
	for i, sc := range cfg.Sensors {
		sensorNames[i] = sc.Name
	}
	b := discovery.NewBuilder(cfg.General.Hostname, cfg.MQTT.HassDiscoveryPrefix, Topics(cfg))
	return b.Build(pinNames, sensorNames)
}

// Dispatcher returns the command dispatcher.
func (s *Service) Dispatcher() *pins.Dispatcher { return s.dispatcher }

// Sample takes one snapshot immediately.
func (s *Service) Sample() model.Snapshot { return s.sampler.Sample(time.Now()) }

// Run samples until ctx is canceled.
func (s *Service) Run(ctx context.Context) error {
	collected := metrics.StartEventCollector(ctx, s.events, s.sink, logger.New("collector"))
	if s.cfg.Metrics.PrometheusEnabled {
		addr := ":" + strconv.Itoa(s.cfg.Metrics.PrometheusPort)
		var g prometheus.Gatherer
		if s.registry != nil {
			g = s.registry
		}
		go func() {
			if err := metrics.StartPromServer(ctx, addr, g, logger.New("prometheus")); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}
	err := s.sampler.Run(ctx)
	<-collected
	return err
}

// Close marks the device offline, stops the event bus and releases the bus.
func (s *Service) Close() error {
	if s.client != nil {
		s.client.Close()
	}
	s.events.Close()
	if c, ok := s.sink.(interface{ Close() }); ok {
		c.Close()
	}
	if s.closer == nil {
		return nil
	}
	err := s.closer.Close()
	s.closer = nil
	return err
}
