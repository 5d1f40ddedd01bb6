package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/spms-io/spms/pkg/eventbus"
)

// Liveness timings. pingPeriod must be shorter than pongWait so a
// healthy client always refreshes its read deadline in time.
var (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (60 * time.Second * 9) / 10
)

// streamFrame is the wire form of one bus event on the state stream.
type streamFrame struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// StreamServer pushes catalog, portfolio, price, and rate change events
// to websocket clients. It runs on its own net/http listener because
// the websocket upgrade needs connection hijacking, which Fiber's
// fasthttp transport does not expose.
type StreamServer struct {
	logger   *zap.Logger
	bus      *eventbus.Bus
	srv      *http.Server
	upgrader websocket.Upgrader
}

// NewStreamServer builds the stream server listening on addr.
func NewStreamServer(logger *zap.Logger, bus *eventbus.Bus, addr string) *StreamServer {
	s := &StreamServer{
		logger: logger,
		bus:    bus,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// same-origin policy is the caller's concern; the service
			// carries no credentials
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws/state", s.handleState)
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Start serves until Shutdown. It blocks; run it on its own goroutine.
func (s *StreamServer) Start() error {
	s.logger.Info("stream.listening", zap.String("addr", s.srv.Addr))
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and closes the listener.
func (s *StreamServer) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *StreamServer) handleState(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("stream.upgrade_failed", zap.Error(err))
		return
	}
	defer func() { _ = conn.Close() }()

	events, cancel := s.bus.Subscribe()
	defer cancel()

	s.logger.Debug("stream.client_connected", zap.String("remote", conn.RemoteAddr().String()))

	// read pump: the client sends nothing we care about, but reading is
	// what surfaces close frames and pongs. A client that stops answering
	// pings trips the read deadline and gets dropped.
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-done:
			return
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case ev, ok := <-events:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(streamFrame{Type: ev.Type, Payload: ev.Payload}); err != nil {
				s.logger.Debug("stream.write_failed", zap.Error(err))
				return
			}
		}
	}
}
