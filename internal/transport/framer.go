package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
)

// Framer splits an arbitrarily chunked character stream into lines and decodes
// each complete line into a Sample. The trailing fragment of every chunk is kept
// until a later chunk completes it.
type Framer struct {
	buffer []byte
	logger *slog.Logger
}

func NewFramer(logger *slog.Logger) *Framer {
	return &Framer{logger: logger}
}

func (framer *Framer) log(level slog.Level, msg string, args ...any) {
	if framer.logger != nil {
		framer.logger.Log(context.Background(), level, msg, args...)
	}
}

// Feed consumes one chunk and returns the samples completed by it, in stream
// order. Malformed or incomplete lines are dropped.
func (framer *Framer) Feed(chunk []byte) []Sample {
	framer.buffer = append(framer.buffer, chunk...)

	var samples []Sample
	for {
		idx := bytes.IndexByte(framer.buffer, '\n')
		if idx < 0 {
			break
		}

		line := framer.buffer[:idx]
		framer.buffer = framer.buffer[idx+1:]

		if sample, ok := framer.decodeLine(line); ok {
			samples = append(samples, sample)
		}
	}

	if len(framer.buffer) == 0 {
		framer.buffer = nil
	} else {
		framer.buffer = append([]byte(nil), framer.buffer...)
	}

	return samples
}

func (framer *Framer) decodeLine(line []byte) (Sample, bool) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return Sample{}, false
	}

	var wire wireSample
	if err := json.Unmarshal(line, &wire); err != nil {
		framer.log(slog.LevelWarn, "Failed to decode sample line", "line", string(line), "error", err)
		return Sample{}, false
	}

	if !wire.complete() {
		framer.log(slog.LevelDebug, "Dropping incomplete sample line", "line", string(line))
		return Sample{}, false
	}

	return wire.sample(), true
}

// Pending returns the buffered partial line.
func (framer *Framer) Pending() string {
	return string(framer.buffer)
}

// Reset discards any buffered partial line.
func (framer *Framer) Reset() {
	framer.buffer = nil
}
