// Package dbus publishes the live session on the desktop session bus.
package dbus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	godbus "github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"

	"github.com/gaurav-cyamsys/beaver-readout/internal/models"
	"github.com/gaurav-cyamsys/beaver-readout/internal/session"
)

const (
	dbusName      = "io.cyamsys.BeaverReadout"
	dbusPath      = "/io/cyamsys/BeaverReadout"
	dbusInterface = "io.cyamsys.BeaverReadout"
)

var introspection = &introspect.Node{
	Name: dbusPath,
	Interfaces: []introspect.Interface{
		introspect.IntrospectData,
		{
			Name: dbusInterface,
			Methods: []introspect.Method{
				{
					Name: "GetCurrentReading",
					Args: []introspect.Arg{
						{Name: "reading", Direction: "out", Type: "a{sv}"},
					},
				},
				{
					Name: "StartFetching",
				},
				{
					Name: "StopFetching",
				},
				{
					Name: "UploadReadings",
					Args: []introspect.Arg{
						{Name: "uploaded", Direction: "out", Type: "i"},
					},
				},
			},
			Signals: []introspect.Signal{
				{
					Name: "ReadingReceived",
					Args: []introspect.Arg{
						{Name: "reading", Type: "a{sv}"},
					},
				},
			},
		},
	},
}

// Service exports the session as io.cyamsys.BeaverReadout.
type Service struct {
	session     *session.Session
	conn        *godbus.Conn
	logger      *slog.Logger
	unsubscribe func()
}

// Connect joins the session bus and exports the service on it.
func Connect(s *session.Session, logger *slog.Logger) (*Service, error) {
	conn, err := godbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to session bus: %w", err)
	}

	service, err := NewService(conn, s, logger)
	if err != nil {
		conn.Close()
		return nil, err
	}

	return service, nil
}

// NewService exports the service on conn and claims the bus name.
func NewService(conn *godbus.Conn, s *session.Session, logger *slog.Logger) (*Service, error) {
	service := &Service{
		session: s,
		conn:    conn,
		logger:  logger,
	}

	if err := conn.Export(service, godbus.ObjectPath(dbusPath), dbusInterface); err != nil {
		return nil, fmt.Errorf("failed to export service: %w", err)
	}

	err := conn.Export(introspect.NewIntrospectable(introspection), godbus.ObjectPath(dbusPath), "org.freedesktop.DBus.Introspectable")
	if err != nil {
		return nil, fmt.Errorf("failed to export introspection: %w", err)
	}

	reply, err := conn.RequestName(dbusName, godbus.NameFlagDoNotQueue)
	if err != nil {
		return nil, fmt.Errorf("failed to request bus name: %w", err)
	}

	if reply != godbus.RequestNameReplyPrimaryOwner {
		return nil, fmt.Errorf("name already taken")
	}

	service.unsubscribe = s.Subscribe(service.onEvent)
	service.log(slog.LevelInfo, "D-Bus service exported", "name", dbusName)

	return service, nil
}

func (s *Service) log(level slog.Level, msg string, args ...any) {
	if s.logger != nil {
		s.logger.Log(context.Background(), level, msg, args...)
	}
}

func (s *Service) onEvent(event session.Event) {
	if event.Reading == nil {
		return
	}
	if err := s.conn.Emit(godbus.ObjectPath(dbusPath), dbusInterface+".ReadingReceived", readingData(*event.Reading)); err != nil {
		s.log(slog.LevelWarn, "Failed to emit reading", "error", err)
	}
}

func readingData(reading models.Reading) map[string]godbus.Variant {
	return map[string]godbus.Variant{
		"sensor_id":   godbus.MakeVariant(reading.SensorID),
		"frequency":   godbus.MakeVariant(reading.Frequency),
		"temperature": godbus.MakeVariant(reading.Temperature),
		"final_load":  godbus.MakeVariant(reading.FinalLoad),
		"digits":      godbus.MakeVariant(reading.Digits),
		"battery":     godbus.MakeVariant(reading.Battery),
		"timestamp":   godbus.MakeVariant(reading.Timestamp),
	}
}

func busError(err error) *godbus.Error {
	name := dbusInterface + ".Error.Failed"
	switch {
	case errors.Is(err, session.ErrNoSensorSelected):
		name = dbusInterface + ".Error.NoSensorSelected"
	case errors.Is(err, session.ErrOffline):
		name = dbusInterface + ".Error.Offline"
	}
	return godbus.NewError(name, []interface{}{err.Error()})
}

// GetCurrentReading returns the latest derived reading, or an empty map
func (s *Service) GetCurrentReading() (map[string]godbus.Variant, *godbus.Error) {
	state := s.session.State()
	if state.CurrentReading == nil {
		return map[string]godbus.Variant{}, nil
	}
	return readingData(*state.CurrentReading), nil
}

func (s *Service) StartFetching() *godbus.Error {
	if err := s.session.StartFetching(); err != nil {
		return busError(err)
	}
	return nil
}

func (s *Service) StopFetching() *godbus.Error {
	if err := s.session.StopFetching(); err != nil {
		return busError(err)
	}
	return nil
}

func (s *Service) UploadReadings() (int32, *godbus.Error) {
	uploaded, err := s.session.UploadReadings(context.Background())
	if err != nil {
		return 0, busError(err)
	}
	return int32(uploaded), nil
}

// Close stops emitting signals and closes the bus connection
func (s *Service) Close() error {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}
