package transport

import (
	"context"
	"errors"
)

var (
	ErrNotConnected = errors.New("transport not connected")
	ErrNoDevice     = errors.New("no readout device found")
)

// EmitFunc receives every sample a backend produces. Backends call it from a
// single goroutine, so samples arrive in emission order.
type EmitFunc func(Sample)

// Backend is a source of samples: the serial link, a network bridge or the
// synthetic generator.
type Backend interface {
	// Name returns a short human-readable name for logs.
	Name() string
	// Open performs the backend-specific handshake. emit is used for every
	// sample produced until Close returns.
	Open(ctx context.Context, emit EmitFunc) error
	// Send delivers a command to the device.
	Send(cmd Command) error
	// Close releases the backend. After Close returns emit is no longer called.
	Close() error
}

// BackendFactory builds a fresh backend for a connection attempt.
type BackendFactory func() Backend
