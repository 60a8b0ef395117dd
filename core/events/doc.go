// Package events defines the events emitted on the event bus.
//
// Available event types:
//   - CommandEvent: outcome of one entry of a pin command
//   - SensorFaultEvent: a power monitor could not be read
package events
