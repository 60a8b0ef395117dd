package model

import "time"

// Snapshot is the result of one sampling tick. Power and Pins are read back
// to back but are published as two independent documents.
type Snapshot struct {
	Time  time.Time
	Power PowerStats
	Pins  PinStates
}
