package transport

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"go.bug.st/serial"
)

const (
	DEFAULT_BAUD_RATE   = 115200
	SERIAL_READ_TIMEOUT = 500 * time.Millisecond
)

// PortOpener opens the named serial device.
type PortOpener func(path string, baudRate int) (io.ReadWriteCloser, error)

// PortLister enumerates candidate serial devices.
type PortLister func() ([]string, error)

// SerialBackend speaks the readout protocol over a UART.
type SerialBackend struct {
	lineLink

	path     string
	baudRate int
	openPort PortOpener
	listPort PortLister
}

type SerialOption func(*SerialBackend)

// WithPortOpener replaces the function used to open the device.
func WithPortOpener(opener PortOpener) SerialOption {
	return func(backend *SerialBackend) { backend.openPort = opener }
}

// WithPortLister replaces the function used to enumerate devices.
func WithPortLister(lister PortLister) SerialOption {
	return func(backend *SerialBackend) { backend.listPort = lister }
}

// NewSerialBackend builds a backend for path. An empty path selects the
// first enumerated serial device at connect time.
func NewSerialBackend(path string, baudRate int, logger *slog.Logger, opts ...SerialOption) *SerialBackend {
	if baudRate <= 0 {
		baudRate = DEFAULT_BAUD_RATE
	}

	backend := &SerialBackend{
		lineLink: lineLink{name: "serial", logger: logger},
		path:     path,
		baudRate: baudRate,
		openPort: openSerialPort,
		listPort: ListSerialPorts,
	}

	for _, opt := range opts {
		opt(backend)
	}

	return backend
}

func (backend *SerialBackend) Name() string {
	return "serial"
}

func (backend *SerialBackend) Open(_ context.Context, emit EmitFunc) error {
	path := backend.path
	if path == "" {
		ports, err := backend.listPort()
		if err != nil {
			backend.log(slog.LevelWarn, "Failed to enumerate serial ports", "error", err)
			return fmt.Errorf("%w: %v", ErrNoDevice, err)
		}
		if len(ports) == 0 {
			backend.log(slog.LevelWarn, "No serial devices found")
			return ErrNoDevice
		}
		path = ports[0]
		backend.log(slog.LevelDebug, "Auto-selected serial device", "path", path, "candidates", len(ports))
	}

	port, err := backend.openPort(path, backend.baudRate)
	if err != nil {
		backend.log(slog.LevelError, "Failed to open serial port", "path", path, "error", err)
		return fmt.Errorf("open serial port %s: %w", path, err)
	}

	backend.attach(port, emit)
	backend.log(slog.LevelInfo, "Serial device connected", "path", path, "baud_rate", backend.baudRate)

	return nil
}

func (backend *SerialBackend) Send(cmd Command) error {
	return backend.send(cmd)
}

func (backend *SerialBackend) Close() error {
	return backend.close()
}

// ListSerialPorts returns the serial devices present on this machine, sorted
// by name.
func ListSerialPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}

	sort.Strings(ports)
	return ports, nil
}

func openSerialPort(path string, baudRate int) (io.ReadWriteCloser, error) {
	port, err := serial.Open(path, &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, err
	}

	if err := port.SetReadTimeout(SERIAL_READ_TIMEOUT); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("failed to set read timeout: %w", err)
	}

	return port, nil
}
