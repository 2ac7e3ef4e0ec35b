package transport

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"
)

func TestSerialBackendRoundTrip(t *testing.T) {
	device, host := net.Pipe()
	defer device.Close()

	var openedPath string
	var openedBaud int
	backend := NewSerialBackend("/dev/ttyUSB0", 0, nil,
		WithPortOpener(func(path string, baudRate int) (io.ReadWriteCloser, error) {
			openedPath, openedBaud = path, baudRate
			return host, nil
		}),
	)

	var got collector
	if err := backend.Open(context.Background(), got.add); err != nil {
		t.Fatalf("open: %v", err)
	}
	if openedPath != "/dev/ttyUSB0" || openedBaud != DEFAULT_BAUD_RATE {
		t.Errorf("opened %q at %d", openedPath, openedBaud)
	}

	lines := make(chan string, 1)
	go func() {
		line, _ := bufio.NewReader(device).ReadString('\n')
		lines <- line
	}()

	if err := backend.Send(StartCommand()); err != nil {
		t.Fatalf("send: %v", err)
	}
	select {
	case line := <-lines:
		if line != `{"Cmd":"Send"}`+"\n" {
			t.Errorf("command line = %q", line)
		}
	case <-time.After(time.Second):
		t.Fatal("command not received")
	}

	if _, err := device.Write([]byte(`{"Freq":1300,"Temp":25,"Bat":90}` + "\n" + `{"Freq":1301,`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := device.Write([]byte(`"Temp":25.5,"Bat":89}` + "\n")); err != nil {
		t.Fatalf("write: %v", err)
	}

	waitFor(t, time.Second, func() bool { return got.count() == 2 })
	if got.samples[1] != (Sample{Freq: 1301, Temp: 25.5, Bat: 89}) {
		t.Errorf("second sample = %+v", got.samples[1])
	}

	if err := backend.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := backend.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if err := backend.Send(StopCommand()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("send after close = %v, want ErrNotConnected", err)
	}
}

func TestSerialBackendAutoDetect(t *testing.T) {
	_, host := net.Pipe()

	var openedPath string
	backend := NewSerialBackend("", 9600, nil,
		WithPortLister(func() ([]string, error) { return []string{"/dev/ttyACM0", "/dev/ttyACM1"}, nil }),
		WithPortOpener(func(path string, _ int) (io.ReadWriteCloser, error) {
			openedPath = path
			return host, nil
		}),
	)

	if err := backend.Open(context.Background(), func(Sample) {}); err != nil {
		t.Fatalf("open: %v", err)
	}
	defer backend.Close()

	if openedPath != "/dev/ttyACM0" {
		t.Errorf("opened %q, want /dev/ttyACM0", openedPath)
	}
}

func TestSerialBackendNoDevice(t *testing.T) {
	backend := NewSerialBackend("", 0, nil,
		WithPortLister(func() ([]string, error) { return nil, nil }),
	)
	if err := backend.Open(context.Background(), func(Sample) {}); !errors.Is(err, ErrNoDevice) {
		t.Errorf("empty list err = %v, want ErrNoDevice", err)
	}

	backend = NewSerialBackend("", 0, nil,
		WithPortLister(func() ([]string, error) { return nil, errors.New("permission denied") }),
	)
	if err := backend.Open(context.Background(), func(Sample) {}); !errors.Is(err, ErrNoDevice) {
		t.Errorf("lister failure err = %v, want ErrNoDevice", err)
	}
}

func TestSerialBackendOpenFailure(t *testing.T) {
	openErr := errors.New("device busy")
	backend := NewSerialBackend("/dev/ttyUSB9", 0, nil,
		WithPortOpener(func(string, int) (io.ReadWriteCloser, error) { return nil, openErr }),
	)

	err := backend.Open(context.Background(), func(Sample) {})
	if !errors.Is(err, openErr) {
		t.Errorf("err = %v, want wrapped %v", err, openErr)
	}
	if errors.Is(err, ErrNoDevice) {
		t.Error("open failure reported as missing device")
	}
}

func TestNetworkBackendRoundTrip(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer listener.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := listener.Accept()
		if err == nil {
			accepted <- conn
		}
	}()

	backend := NewNetworkBackend(listener.Addr().String(), nil)
	var got collector
	if err := backend.Open(context.Background(), got.add); err != nil {
		t.Fatalf("open: %v", err)
	}
	defer backend.Close()

	var bridge net.Conn
	select {
	case bridge = <-accepted:
	case <-time.After(time.Second):
		t.Fatal("bridge not accepted")
	}
	defer bridge.Close()

	if err := backend.Send(StopCommand()); err != nil {
		t.Fatalf("send: %v", err)
	}
	bridge.SetReadDeadline(time.Now().Add(time.Second))
	line, err := bufio.NewReader(bridge).ReadString('\n')
	if err != nil {
		t.Fatalf("read command: %v", err)
	}
	if line != `{"Cmd":"Stop"}`+"\n" {
		t.Errorf("command line = %q", line)
	}

	if _, err := bridge.Write([]byte(`{"Freq":1250,"Temp":24,"Bat":97}` + "\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	waitFor(t, time.Second, func() bool { return got.count() == 1 })
}

func TestNetworkBackendDialFailure(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	address := listener.Addr().String()
	listener.Close()

	backend := NewNetworkBackend(address, nil)
	if err := backend.Open(context.Background(), func(Sample) {}); err == nil {
		backend.Close()
		t.Fatal("expected dial error")
	}
}
