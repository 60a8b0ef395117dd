// Package metrics defines the sinks that record samples, command outcomes and
// sensor faults. Implementations live in infra/metrics.
package metrics
