package transport

import (
	"encoding/json"
	"testing"
)

func TestFramerKeepsPartialLine(t *testing.T) {
	framer := NewFramer(nil)

	samples := framer.Feed([]byte(`{"Freq":1,"Temp":2,"Bat":3}` + "\n" + `{"Freq":`))
	if len(samples) != 1 {
		t.Fatalf("samples = %d, want 1", len(samples))
	}
	if samples[0] != (Sample{Freq: 1, Temp: 2, Bat: 3}) {
		t.Errorf("sample = %+v", samples[0])
	}
	if got := framer.Pending(); got != `{"Freq":` {
		t.Errorf("pending = %q, want %q", got, `{"Freq":`)
	}

	samples = framer.Feed([]byte(`1250.5,"Temp":26.1,"Bat":90}` + "\n"))
	if len(samples) != 1 {
		t.Fatalf("samples after completion = %d, want 1", len(samples))
	}
	if samples[0] != (Sample{Freq: 1250.5, Temp: 26.1, Bat: 90}) {
		t.Errorf("completed sample = %+v", samples[0])
	}
	if got := framer.Pending(); got != "" {
		t.Errorf("pending = %q, want empty", got)
	}
}

func TestFramerDropsIncompleteObject(t *testing.T) {
	framer := NewFramer(nil)

	samples := framer.Feed([]byte(`{"Freq":1,"Temp":2}` + "\n"))
	if len(samples) != 0 {
		t.Errorf("samples = %d, want 0", len(samples))
	}
}

func TestFramerDropsMalformedLines(t *testing.T) {
	framer := NewFramer(nil)

	input := "garbage\n" +
		`{"Freq":"fast","Temp":2,"Bat":3}` + "\n" +
		`[1,2,3]` + "\n" +
		`{"Freq":null,"Temp":2,"Bat":3}` + "\n" +
		"\n   \n" +
		`{"Freq":7,"Temp":8,"Bat":9}` + "\n"

	samples := framer.Feed([]byte(input))
	if len(samples) != 1 {
		t.Fatalf("samples = %d, want 1", len(samples))
	}
	if samples[0].Freq != 7 {
		t.Errorf("freq = %v, want 7", samples[0].Freq)
	}
}

func TestFramerIgnoresExtraFieldsAndCRLF(t *testing.T) {
	framer := NewFramer(nil)

	samples := framer.Feed([]byte(`  {"Freq":1300,"Temp":25.5,"Bat":88,"Fw":"1.2"}` + "\r\n"))
	if len(samples) != 1 {
		t.Fatalf("samples = %d, want 1", len(samples))
	}
	if samples[0] != (Sample{Freq: 1300, Temp: 25.5, Bat: 88}) {
		t.Errorf("sample = %+v", samples[0])
	}
}

func TestFramerAcceptsZeroValues(t *testing.T) {
	framer := NewFramer(nil)

	samples := framer.Feed([]byte(`{"Freq":0,"Temp":0,"Bat":0}` + "\n"))
	if len(samples) != 1 {
		t.Fatalf("samples = %d, want 1", len(samples))
	}
}

func TestFramerByteAtATime(t *testing.T) {
	framer := NewFramer(nil)
	stream := `{"Freq":1,"Temp":2,"Bat":3}` + "\n" + `{"Freq":4,"Temp":5,"Bat":6}` + "\n"

	var samples []Sample
	for i := 0; i < len(stream); i++ {
		samples = append(samples, framer.Feed([]byte{stream[i]})...)
	}

	if len(samples) != 2 {
		t.Fatalf("samples = %d, want 2", len(samples))
	}
	if samples[0].Freq != 1 || samples[1].Freq != 4 {
		t.Errorf("order = %v, %v", samples[0].Freq, samples[1].Freq)
	}
}

func TestFramerReset(t *testing.T) {
	framer := NewFramer(nil)
	framer.Feed([]byte(`{"Freq":1`))
	framer.Reset()

	if got := framer.Pending(); got != "" {
		t.Errorf("pending = %q, want empty", got)
	}

	samples := framer.Feed([]byte(`,"Temp":2,"Bat":3}` + "\n"))
	if len(samples) != 0 {
		t.Errorf("samples = %d, want 0", len(samples))
	}
}

func TestCommandEncode(t *testing.T) {
	data, err := StartCommand().Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if string(data) != `{"Cmd":"Send"}`+"\n" {
		t.Errorf("start = %q", data)
	}

	data, err = StopCommand().Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if string(data) != `{"Cmd":"Stop"}`+"\n" {
		t.Errorf("stop = %q", data)
	}

	if _, err := (Command{Cmd: "Reboot"}).Encode(); err == nil {
		t.Error("expected error for unknown command")
	}
}

func TestSampleJSONFieldNames(t *testing.T) {
	data, err := json.Marshal(Sample{Freq: 1, Temp: 2, Bat: 3})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"Freq":1,"Temp":2,"Bat":3}` {
		t.Errorf("json = %s", data)
	}
}
