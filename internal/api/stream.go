package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gaurav-cyamsys/beaver-readout/internal/calc"
	"github.com/gaurav-cyamsys/beaver-readout/internal/session"
	"github.com/gorilla/websocket"
)

const (
	STREAM_BUFFER        = 32
	STREAM_WRITE_TIMEOUT = 5 * time.Second
)

// StreamMessage is pushed to WebSocket clients for every sample.
type StreamMessage struct {
	session.Event
	Temperature string `json:"temperature"`
	Frequency   string `json:"frequency"`
}

func newStreamMessage(event session.Event, unit string) StreamMessage {
	return StreamMessage{
		Event:       event,
		Temperature: calc.FormatTemperature(event.Sample.Temp, unit),
		Frequency:   calc.FormatNumber(event.Sample.Freq, calc.FrequencyDecimals),
	}
}

func (server *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := server.upgrader.Upgrade(w, r, nil)
	if err != nil {
		server.log(slog.LevelWarn, "WebSocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	unit := server.session.Preferences(r.Context()).TemperatureUnit
	messages := make(chan StreamMessage, STREAM_BUFFER)

	unsubscribe := server.session.Subscribe(func(event session.Event) {
		select {
		case messages <- newStreamMessage(event, unit):
		default:
			server.log(slog.LevelDebug, "Stream client too slow, dropping sample", "remote", r.RemoteAddr)
		}
	})
	defer unsubscribe()

	server.log(slog.LevelInfo, "Stream client connected", "remote", r.RemoteAddr)

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case message := <-messages:
			conn.SetWriteDeadline(time.Now().Add(STREAM_WRITE_TIMEOUT))
			if err := conn.WriteJSON(message); err != nil {
				server.log(slog.LevelDebug, "Stream write failed", "remote", r.RemoteAddr, "error", err)
				return
			}
		case <-closed:
			server.log(slog.LevelInfo, "Stream client disconnected", "remote", r.RemoteAddr)
			return
		case <-r.Context().Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(time.Second))
			return
		}
	}
}
