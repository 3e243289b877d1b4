// Package mqtt implements the broker ingest path: vehicles publish fixes to
// {root}/telemetry/{vehicleID} and the relay feeds them into the core as if
// a publisher connection carried them.
package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Alanbenny123/bustrackingnew/internal/relay/core/service"
	"github.com/Alanbenny123/bustrackingnew/pkg/log"
	pkgmqtt "github.com/Alanbenny123/bustrackingnew/pkg/mqtt"
	"github.com/Alanbenny123/bustrackingnew/pkg/mqtt/topic"
)

// telemetryMessage is the payload vehicles publish on the telemetry topic.
type telemetryMessage struct {
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	CapturedAt time.Time `json:"capturedAt"`
}

// Server subscribes to the telemetry wildcard and routes fixes into the core.
type Server struct {
	client pkgmqtt.Client
	topics *topic.Builder
	svc    *service.Service
	logger log.Logger
}

// NewServer creates the MQTT ingest server.
func NewServer(client pkgmqtt.Client, builder *topic.Builder, svc *service.Service, logger log.Logger) *Server {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Server{
		client: client,
		topics: builder,
		svc:    svc,
		logger: logger.WithName("mqtt"),
	}
}

// Start connects to the broker, subscribes to telemetry and blocks until the
// context is done.
func (s *Server) Start(ctx context.Context) error {
	if err := s.client.Start(ctx); err != nil {
		return err
	}
	defer func() {
		s.logger.Info("disconnecting mqtt client")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.client.Disconnect(shutdownCtx)
	}()

	s.logger.Info("waiting for mqtt connection")
	if err := s.client.AwaitConnection(ctx); err != nil {
		return err
	}
	s.logger.Info("mqtt connected")

	filter := s.topics.TelemetryWildcard()
	if err := s.client.Subscribe(ctx, filter, 1, s.handleTelemetry); err != nil {
		return fmt.Errorf("failed to subscribe to topic %s: %w", filter, err)
	}

	<-ctx.Done()
	return nil
}

// handleTelemetry decodes one fix and hands it to the core. Malformed or
// rejected payloads are logged and dropped; broker ingest has no ack channel
// back to the vehicle.
func (s *Server) handleTelemetry(ctx context.Context, t string, payload []byte) {
	vehicleID := s.topics.VehicleID(t)
	if vehicleID == "" {
		s.logger.Warn("ignoring telemetry on malformed topic", "topic", t)
		return
	}

	var msg telemetryMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		s.logger.Warn("dropping undecodable telemetry", "vehicleID", vehicleID, "err", err)
		return
	}

	if err := s.svc.IngestFix(ctx, vehicleID, msg.Latitude, msg.Longitude, msg.CapturedAt); err != nil {
		s.logger.Warn("telemetry rejected", "vehicleID", vehicleID, "err", err)
	}
}
