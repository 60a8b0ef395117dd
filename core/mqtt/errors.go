package mqtt

import "errors"

// ErrPublishTimeout is returned when the broker does not confirm a publish in time.
var ErrPublishTimeout = errors.New("timeout waiting for publish")

// ErrNotConnected is returned by operations that need a live session.
var ErrNotConnected = errors.New("mqtt not connected")
