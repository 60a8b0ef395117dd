// Package mqtt defines the broker-facing contract of the daemon.
package mqtt

import (
	"context"

	"github.com/qetesh/bratwurstpower/core/model"
)

// Publisher publishes snapshots and availability to the broker.
type Publisher interface {
	// HandleSnapshot publishes the powerstats and pinstates documents. It is a
	// no-op while the connection is down.
	HandleSnapshot(ctx context.Context, snap model.Snapshot) error

	// Connected reports whether the broker session is currently up.
	Connected() bool

	// Close marks the device offline and disconnects.
	Close()
}

// Commander publishes pin commands, as the CLI does.
type Commander interface {
	SendCommand(pin, value string) error
}
