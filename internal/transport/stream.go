package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

const readChunkSize = 256

// lineLink is the shared plumbing of the serial and network backends: a
// byte stream carrying JSON command lines one way and sample lines the other.
type lineLink struct {
	name   string
	logger *slog.Logger

	mu      sync.Mutex
	conn    io.ReadWriteCloser
	closing bool
	done    chan struct{}
}

func (link *lineLink) log(level slog.Level, msg string, args ...any) {
	if link.logger != nil {
		link.logger.Log(context.Background(), level, msg, append([]any{"backend", link.name}, args...)...)
	}
}

// attach takes ownership of conn and starts the reader goroutine.
func (link *lineLink) attach(conn io.ReadWriteCloser, emit EmitFunc) {
	done := make(chan struct{})

	link.mu.Lock()
	link.conn = conn
	link.closing = false
	link.done = done
	link.mu.Unlock()

	go link.readLoop(conn, emit, done)
}

func (link *lineLink) readLoop(conn io.Reader, emit EmitFunc, done chan struct{}) {
	defer close(done)

	framer := NewFramer(link.logger)
	buf := make([]byte, readChunkSize)

	for {
		n, err := conn.Read(buf)
		if n > 0 {
			for _, sample := range framer.Feed(buf[:n]) {
				emit(sample)
			}
		}

		if err != nil {
			if !link.isClosing() && !errors.Is(err, io.EOF) {
				link.log(slog.LevelWarn, "Read from device failed", "error", err)
			} else {
				link.log(slog.LevelDebug, "Device stream ended", "error", err)
			}
			if pending := framer.Pending(); pending != "" {
				link.log(slog.LevelDebug, "Discarding partial line", "line", pending)
			}
			return
		}
	}
}

func (link *lineLink) isClosing() bool {
	link.mu.Lock()
	defer link.mu.Unlock()
	return link.closing
}

func (link *lineLink) send(cmd Command) error {
	data, err := cmd.Encode()
	if err != nil {
		return err
	}

	link.mu.Lock()
	conn := link.conn
	link.mu.Unlock()

	if conn == nil {
		return ErrNotConnected
	}

	link.log(slog.LevelDebug, "Sending command", "command", string(data[:len(data)-1]))
	if _, err := conn.Write(data); err != nil {
		return fmt.Errorf("write command: %w", err)
	}

	return nil
}

// close releases the connection and waits for the reader to finish. It is
// safe to call more than once.
func (link *lineLink) close() error {
	link.mu.Lock()
	conn, done := link.conn, link.done
	link.conn = nil
	link.done = nil
	link.closing = true
	link.mu.Unlock()

	if conn == nil {
		return nil
	}

	err := conn.Close()
	if done != nil {
		<-done
	}

	if err != nil {
		return fmt.Errorf("close %s: %w", link.name, err)
	}
	return nil
}
