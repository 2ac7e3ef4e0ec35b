// Package api exposes the live session over local HTTP and WebSocket.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gaurav-cyamsys/beaver-readout/internal/session"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

const (
	SHUTDOWN_TIMEOUT    = 5 * time.Second
	READ_HEADER_TIMEOUT = 10 * time.Second
	REQUEST_ID_HEADER   = "X-Request-ID"
)

type Server struct {
	session  *session.Session
	logger   *slog.Logger
	router   *mux.Router
	upgrader websocket.Upgrader
	now      func() time.Time
}

func NewServer(session *session.Session, logger *slog.Logger) *Server {
	server := &Server{
		session: session,
		logger:  logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		now: time.Now,
	}
	server.router = server.routes()
	return server
}

func (server *Server) log(level slog.Level, msg string, args ...any) {
	if server.logger != nil {
		server.logger.Log(context.Background(), level, msg, args...)
	}
}

func (server *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(server.requestID)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", server.handleHealth).Methods("GET")
	api.HandleFunc("/state", server.handleState).Methods("GET")
	api.HandleFunc("/sensors", server.handleListSensors).Methods("GET")
	api.HandleFunc("/sensors", server.handleCreateSensor).Methods("POST")
	api.HandleFunc("/sensors/current", server.handleSelectSensor).Methods("PUT")
	api.HandleFunc("/fetch/start", server.handleStartFetching).Methods("POST")
	api.HandleFunc("/fetch/stop", server.handleStopFetching).Methods("POST")
	api.HandleFunc("/upload", server.handleUpload).Methods("POST")
	api.HandleFunc("/readings/pending", server.handlePendingReadings).Methods("GET")
	api.HandleFunc("/readings/history", server.handleHistory).Methods("GET")
	api.HandleFunc("/mode", server.handleSetMode).Methods("PUT")
	api.HandleFunc("/preferences", server.handleGetPreferences).Methods("GET")
	api.HandleFunc("/preferences", server.handleSavePreferences).Methods("PUT")
	api.HandleFunc("/stream", server.handleStream).Methods("GET")

	return r
}

func (server *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(REQUEST_ID_HEADER)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(REQUEST_ID_HEADER, id)

		server.log(slog.LevelDebug, "API request", "method", r.Method, "path", r.URL.Path, "request_id", id)
		next.ServeHTTP(w, r)
	})
}

func (server *Server) Handler() http.Handler {
	return server.router
}

// Serve answers requests on listener until ctx is done, then shuts down
// gracefully.
func (server *Server) Serve(ctx context.Context, listener net.Listener) error {
	httpServer := &http.Server{
		Handler:           server.router,
		ReadHeaderTimeout: READ_HEADER_TIMEOUT,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errs := make(chan error, 1)
	go func() {
		server.log(slog.LevelInfo, "API listening", "address", listener.Addr().String())
		errs <- httpServer.Serve(listener)
	}()

	select {
	case err := <-errs:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), SHUTDOWN_TIMEOUT)
	defer cancel()

	server.log(slog.LevelInfo, "API shutting down")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errs; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ListenAndServe listens on address and calls Serve.
func (server *Server) ListenAndServe(ctx context.Context, address string) error {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return err
	}
	return server.Serve(ctx, listener)
}
