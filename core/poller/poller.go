// Package poller drives the measurement cycle: it samples the power monitors
// and the pin table at a fixed interval and hands each snapshot to the sinks.
package poller

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/qetesh/bratwurstpower/core/logger"
	"github.com/qetesh/bratwurstpower/core/model"
)

// DefaultPollInterval is how often Run wakes up to check the schedule.
const DefaultPollInterval = 100 * time.Millisecond

// State is the sampling state of the loop.
type State int

const (
	Idle State = iota
	Sampling
)

func (s State) String() string {
	if s == Sampling {
		return "sampling"
	}
	return "idle"
}

// PowerReader reads one value set per configured monitor.
type PowerReader interface {
	Read() model.PowerStats
}

// PinSource returns a copy of the current pin table.
type PinSource interface {
	Snapshot() model.PinStates
}

// Sink consumes snapshots. Errors are logged by the sampler.
type Sink interface {
	HandleSnapshot(ctx context.Context, snap model.Snapshot) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, snap model.Snapshot) error

// HandleSnapshot calls f.
func (f SinkFunc) HandleSnapshot(ctx context.Context, snap model.Snapshot) error {
	return f(ctx, snap)
}

// Config controls the sampling schedule.
type Config struct {
	// Interval is the minimum time between two samples.
	Interval time.Duration
	// PollInterval is the wake-up granularity of Run.
	PollInterval time.Duration
}

// Sampler owns the measurement schedule.
type Sampler struct {
	cfg   Config
	power PowerReader
	pins  PinSource
	sinks []Sink
	log   logger.Logger

	mu      sync.Mutex
	state   State
	last    time.Time
	sampled bool
}

// New creates a Sampler. Sinks are called in order on every sample.
func New(cfg Config, power PowerReader, pins PinSource, log logger.Logger, sinks ...Sink) (*Sampler, error) {
	if cfg.Interval <= 0 {
		return nil, errors.New("poller: interval must be positive")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	return &Sampler{cfg: cfg, power: power, pins: pins, sinks: sinks, log: log}, nil
}

// State reports whether a sample is in progress.
func (s *Sampler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Tick samples when at least one interval has passed since the last sample.
// The first call always samples. It reports whether a sample was taken.
func (s *Sampler) Tick(ctx context.Context, now time.Time) bool {
	s.mu.Lock()
	if s.sampled && now.Before(s.last.Add(s.cfg.Interval)) {
		s.mu.Unlock()
		return false
	}
	s.last = now
	s.sampled = true
	s.state = Sampling
	s.mu.Unlock()

	snap := model.Snapshot{Time: now, Power: s.power.Read(), Pins: s.pins.Snapshot()}

	s.mu.Lock()
	s.state = Idle
	s.mu.Unlock()

	for _, sink := range s.sinks {
		if err := sink.HandleSnapshot(ctx, snap); err != nil {
			s.log.Errorf("snapshot sink: %v", err)
		}
	}
	return true
}

// Sample takes one snapshot immediately without touching the schedule.
func (s *Sampler) Sample(now time.Time) model.Snapshot {
	return model.Snapshot{Time: now, Power: s.power.Read(), Pins: s.pins.Snapshot()}
}

// Run ticks until ctx is cancelled. Cancellation is noticed at the next wake.
func (s *Sampler) Run(ctx context.Context) error {
	s.log.Infof("sampling every %s", s.cfg.Interval)
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()
	s.Tick(ctx, time.Now())
	for {
		select {
		case <-ctx.Done():
			s.log.Infof("sampler stopped")
			return nil
		case now := <-ticker.C:
			s.Tick(ctx, now)
		}
	}
}
