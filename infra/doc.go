// Package infra holds the adapters that touch the outside world: the I2C
// drivers, the MQTT session, the snapshot file and the metrics exporters.
// Core packages never import them; app wires them in.
package infra
