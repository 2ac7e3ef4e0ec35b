// Package transport talks to the vibrating-wire readout device. It owns the
// connection lifecycle, turns the device's newline-delimited JSON into typed
// samples and fans them out to subscribers, regardless of whether the link is
// a serial port, a network bridge or the built-in generator.
package transport

import (
	"encoding/json"
	"fmt"
)

// CommandKind is the value of the "Cmd" field understood by the device.
type CommandKind string

const (
	CommandStart CommandKind = "Send"
	CommandStop  CommandKind = "Stop"
)

// Command is written to the device as a single JSON line.
type Command struct {
	Cmd CommandKind `json:"Cmd"`
}

// StartCommand asks the device to begin streaming samples.
func StartCommand() Command { return Command{Cmd: CommandStart} }

// StopCommand asks the device to stop streaming samples.
func StopCommand() Command { return Command{Cmd: CommandStop} }

// Encode returns the newline-terminated wire form of the command.
func (c Command) Encode() ([]byte, error) {
	switch c.Cmd {
	case CommandStart, CommandStop:
	default:
		return nil, fmt.Errorf("unknown command %q", c.Cmd)
	}

	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal command: %w", err)
	}

	return append(data, '\n'), nil
}

// Sample is one live reading from the device.
type Sample struct {
	Freq float64 `json:"Freq"`
	Temp float64 `json:"Temp"`
	Bat  float64 `json:"Bat"`
}

// wireSample mirrors Sample with optional fields so that lines missing a
// required value can be told apart from zero readings.
type wireSample struct {
	Freq *float64 `json:"Freq"`
	Temp *float64 `json:"Temp"`
	Bat  *float64 `json:"Bat"`
}

func (w wireSample) complete() bool {
	return w.Freq != nil && w.Temp != nil && w.Bat != nil
}

func (w wireSample) sample() Sample {
	return Sample{Freq: *w.Freq, Temp: *w.Temp, Bat: *w.Bat}
}
