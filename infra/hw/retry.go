package hw

import (
	"time"

	"github.com/cenkalti/backoff/v4"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"

	"github.com/qetesh/bratwurstpower/core/logger"
)

// RetryConfig bounds the retries of a single bus transfer.
type RetryConfig struct {
	Retries int
	Backoff time.Duration
}

// RetryBus retries failed transfers with exponential backoff. Register
// transfers are idempotent (full-byte writes, plain reads) so repeating one
// can't corrupt device state.
type RetryBus struct {
	bus     i2c.Bus
	retries uint64
	initial time.Duration
	log     logger.Logger
}

// NewRetryBus wraps bus. A zero retry count disables retrying.
func NewRetryBus(bus i2c.Bus, cfg RetryConfig, log logger.Logger) *RetryBus {
	retries := 0
	if cfg.Retries > 0 {
		retries = cfg.Retries
	}
	initial := cfg.Backoff
	if initial <= 0 {
		initial = 10 * time.Millisecond
	}
	return &RetryBus{bus: bus, retries: uint64(retries), initial: initial, log: log}
}

func (b *RetryBus) String() string { return b.bus.String() }

// SetSpeed forwards to the wrapped bus.
func (b *RetryBus) SetSpeed(f physic.Frequency) error { return b.bus.SetSpeed(f) }

// Tx performs the transfer, retrying transient failures.
func (b *RetryBus) Tx(addr uint16, w, r []byte) error {
	attempt := 0
	op := func() error {
		attempt++
		return b.bus.Tx(addr, w, r)
	}
	notify := func(err error, wait time.Duration) {
		b.log.Warnf("i2c transfer to 0x%02X failed (attempt %d): %v, retrying in %s", addr, attempt, err, wait)
	}
	return backoff.RetryNotify(op, backoff.WithMaxRetries(b.policy(), b.retries), notify)
}

func (b *RetryBus) policy() backoff.BackOff {
	p := backoff.NewExponentialBackOff()
	p.InitialInterval = b.initial
	p.MaxInterval = 20 * b.initial
	p.MaxElapsedTime = 0
	return p
}
