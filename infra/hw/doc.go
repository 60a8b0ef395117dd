// Package hw opens the host I2C bus through periph.io and wraps it with a
// bounded retry policy. Device drivers live in the pca9557 and monitor
// subpackages and only depend on the i2c.Bus interface, so they can be tested
// with an in-memory bus.
package hw
