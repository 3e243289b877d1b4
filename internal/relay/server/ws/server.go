// Package ws implements the websocket ingress: one endpoint for publishers
// streaming position fixes, one for subscribers watching vehicles.
package ws

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/Alanbenny123/bustrackingnew/internal/relay/core/model"
	"github.com/Alanbenny123/bustrackingnew/internal/relay/core/service"
	"github.com/Alanbenny123/bustrackingnew/pkg/log"
	"github.com/Alanbenny123/bustrackingnew/pkg/options"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Server is the websocket ingress server.
type Server struct {
	server  *http.Server
	options *options.WsOptions
	svc     *service.Service
	logger  log.Logger
}

// NewServer creates the websocket server and installs its routes.
func NewServer(opts *options.WsOptions, svc *service.Service, logger log.Logger) *Server {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	s := &Server{
		options: opts,
		svc:     svc,
		logger:  logger.WithName("ws"),
	}

	router := mux.NewRouter()
	router.HandleFunc("/ws/publish", s.handlePublish)
	router.HandleFunc("/ws/subscribe", s.handleSubscribe)

	s.server = &http.Server{
		Addr:    opts.Addr,
		Handler: router,
	}
	return s
}

// Handler exposes the route table for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start runs the server until the context is done, then shuts down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("starting websocket server", "addr", s.server.Addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	}
}

// handlePublish accepts a publisher socket for one vehicle id. Every inbound
// fix is answered with an ack; an invalid fix is rejected but the socket
// stays open. A vehicle that already has a live publisher refuses the socket
// with a policy-violation close frame.
func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	vehicleID := r.URL.Query().Get("vehicleId")
	if vehicleID == "" {
		http.Error(w, "missing vehicleId query parameter", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("publish upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	connID, err := s.svc.OpenPublisher(r.Context(), vehicleID)
	if err != nil {
		code := websocket.CloseInternalServerErr
		if errors.Is(err, model.ErrPublisherConflict) {
			code = websocket.ClosePolicyViolation
		}
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, err.Error()))
		return
	}
	defer s.svc.CloseConnection(context.Background(), connID)

	conn.SetReadLimit(s.options.ReadLimit)
	conn.SetReadDeadline(time.Now().Add(pongWait))

	for {
		var msg fixMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.logger.Warn("publisher read failed", "vehicleID", vehicleID, "err", err)
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))

		ack := ackMessage{Accepted: true}
		if err := s.svc.RecordFix(connID, msg.Latitude, msg.Longitude, msg.CapturedAt); err != nil {
			ack = ackMessage{Error: err.Error()}
		}
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(ack); err != nil {
			return
		}
	}
}

// handleSubscribe accepts a subscriber socket. The client drives its watch
// set with subscribe/unsubscribe control messages; events flow back through
// the write pump.
func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("subscribe upgrade failed", "err", err)
		return
	}

	sc := newSubscriberConn(conn, s.options.SendBuffer)
	connID, err := s.svc.OpenSubscriber(r.Context(), sc)
	if err != nil {
		conn.Close()
		return
	}
	defer func() {
		s.svc.CloseConnection(context.Background(), connID)
		sc.Close()
	}()

	go sc.writePump()

	conn.SetReadLimit(s.options.ReadLimit)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg controlMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.logger.Warn("subscriber read failed", "connID", connID, "err", err)
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))

		switch msg.Action {
		case actionSubscribe:
			if msg.VehicleID == "" {
				continue
			}
			if err := s.svc.Subscribe(connID, msg.VehicleID); err != nil {
				s.logger.Warn("subscribe failed", "connID", connID, "vehicleID", msg.VehicleID, "err", err)
				return
			}
		case actionUnsubscribe:
			s.svc.Unsubscribe(connID, msg.VehicleID)
		default:
			s.logger.Debug("ignoring unknown control action", "action", msg.Action)
		}
	}
}
