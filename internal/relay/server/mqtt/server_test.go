package mqtt

import (
	"context"
	"testing"
	"time"

	"github.com/Alanbenny123/bustrackingnew/internal/relay/core/model"
	"github.com/Alanbenny123/bustrackingnew/internal/relay/core/service"
	"github.com/Alanbenny123/bustrackingnew/pkg/mqtt/topic"
)

func newIngest(t *testing.T) (*Server, *service.Service) {
	t.Helper()
	svc := service.New(service.Config{
		StalenessWindow:  15 * time.Second,
		CoalesceInterval: time.Second,
	})
	return NewServer(nil, topic.NewBuilder("fleet/v1"), svc, nil), svc
}

func TestHandleTelemetryAppliesFix(t *testing.T) {
	srv, svc := newIngest(t)

	payload := []byte(`{"latitude":10.0261,"longitude":76.3125,"capturedAt":"2026-08-29T10:00:00Z"}`)
	srv.handleTelemetry(context.Background(), "fleet/v1/telemetry/bus-101", payload)

	st, err := svc.Snapshot("bus-101")
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if st.Status != model.StatusOnline {
		t.Errorf("status = %v, want online", st.Status)
	}
	if st.LastFix == nil || st.LastFix.Latitude != 10.0261 {
		t.Errorf("lastFix = %+v, want latitude 10.0261", st.LastFix)
	}
}

func TestHandleTelemetryIgnoresForeignTopics(t *testing.T) {
	srv, svc := newIngest(t)

	payload := []byte(`{"latitude":10.0,"longitude":76.0,"capturedAt":"2026-08-29T10:00:00Z"}`)
	srv.handleTelemetry(context.Background(), "other/telemetry/bus-101", payload)
	srv.handleTelemetry(context.Background(), "fleet/v1/telemetry/bus-101/extra", payload)

	if got := svc.ListVehicles(); len(got) != 0 {
		t.Errorf("vehicles registered from foreign topics: %v", got)
	}
}

func TestHandleTelemetryDropsBadPayload(t *testing.T) {
	srv, svc := newIngest(t)

	srv.handleTelemetry(context.Background(), "fleet/v1/telemetry/bus-101", []byte("not json"))
	if got := svc.ListVehicles(); len(got) != 0 {
		t.Errorf("vehicle registered from undecodable payload: %v", got)
	}

	// Out-of-range coordinates are rejected by validation before any state
	// changes.
	srv.handleTelemetry(context.Background(), "fleet/v1/telemetry/bus-102",
		[]byte(`{"latitude":95.0,"longitude":76.0,"capturedAt":"2026-08-29T10:00:00Z"}`))
	if got := svc.ListVehicles(); len(got) != 0 {
		t.Errorf("vehicle registered from invalid fix: %v", got)
	}
}
