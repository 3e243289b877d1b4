package ws

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Alanbenny123/bustrackingnew/internal/relay/core/service"
	"github.com/Alanbenny123/bustrackingnew/pkg/options"
)

func newTestServer(t *testing.T) (*httptest.Server, *service.Service) {
	t.Helper()

	svc := service.New(service.Config{
		StalenessWindow:  15 * time.Second,
		CoalesceInterval: 20 * time.Millisecond,
	})
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = svc.Run(ctx) }()

	srv := NewServer(options.NewWsOptions(), svc, nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		cancel()
	})
	return ts, svc
}

func dial(t *testing.T, ts *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", path, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readEvent reads subscriber frames until one of the wanted types arrives.
func readEvent(t *testing.T, conn *websocket.Conn, wantType string) eventMessage {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	conn.SetReadDeadline(deadline)
	for time.Now().Before(deadline) {
		var msg eventMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("waiting for %q event: %v", wantType, err)
		}
		if msg.Type == wantType {
			return msg
		}
	}
	t.Fatalf("no %q event before deadline", wantType)
	return eventMessage{}
}

func TestPublishSubscribeRoundTrip(t *testing.T) {
	ts, _ := newTestServer(t)

	sub := dial(t, ts, "/ws/subscribe")
	if err := sub.WriteJSON(controlMessage{Action: actionSubscribe, VehicleID: "bus-101"}); err != nil {
		t.Fatalf("subscribe control: %v", err)
	}

	// The vehicle is unknown, so the join snapshot reports it offline.
	if ev := readEvent(t, sub, "offline"); ev.VehicleID != "bus-101" {
		t.Fatalf("offline event for %q, want bus-101", ev.VehicleID)
	}

	pub := dial(t, ts, "/ws/publish?vehicleId=bus-101")
	at := time.Now().UTC()
	if err := pub.WriteJSON(fixMessage{Latitude: 10.0261, Longitude: 76.3125, CapturedAt: at}); err != nil {
		t.Fatalf("write fix: %v", err)
	}

	pub.SetReadDeadline(time.Now().Add(3 * time.Second))
	var ack ackMessage
	if err := pub.ReadJSON(&ack); err != nil {
		t.Fatalf("read ack: %v", err)
	}
	if !ack.Accepted {
		t.Fatalf("fix rejected: %s", ack.Error)
	}

	if ev := readEvent(t, sub, "online"); ev.VehicleID != "bus-101" {
		t.Fatalf("online event for %q, want bus-101", ev.VehicleID)
	}
	ev := readEvent(t, sub, "location")
	if ev.Latitude == nil || *ev.Latitude != 10.0261 || ev.Longitude == nil || *ev.Longitude != 76.3125 {
		t.Fatalf("location event = %+v, want (10.0261, 76.3125)", ev)
	}
}

func TestPublisherConflictClosesSecondSocket(t *testing.T) {
	ts, _ := newTestServer(t)

	first := dial(t, ts, "/ws/publish?vehicleId=bus-101")
	// A round trip guarantees the first binding is in place before the
	// second dial races it.
	first.SetReadDeadline(time.Now().Add(3 * time.Second))
	if err := first.WriteJSON(fixMessage{Latitude: 10.0, Longitude: 76.0, CapturedAt: time.Now()}); err != nil {
		t.Fatalf("write fix: %v", err)
	}
	var ack ackMessage
	if err := first.ReadJSON(&ack); err != nil {
		t.Fatalf("read ack: %v", err)
	}

	second := dial(t, ts, "/ws/publish?vehicleId=bus-101")
	second.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, _, err := second.ReadMessage()
	if !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
		t.Fatalf("second publisher read err = %v, want policy violation close", err)
	}
}

func TestInvalidFixIsAckedNotFatal(t *testing.T) {
	ts, _ := newTestServer(t)

	pub := dial(t, ts, "/ws/publish?vehicleId=bus-101")
	pub.SetReadDeadline(time.Now().Add(3 * time.Second))

	if err := pub.WriteJSON(fixMessage{Latitude: 91.0, Longitude: 76.0, CapturedAt: time.Now()}); err != nil {
		t.Fatalf("write fix: %v", err)
	}
	var ack ackMessage
	if err := pub.ReadJSON(&ack); err != nil {
		t.Fatalf("read ack: %v", err)
	}
	if ack.Accepted || ack.Error == "" {
		t.Fatalf("ack = %+v, want rejection with error", ack)
	}

	// The socket survives the rejection.
	if err := pub.WriteJSON(fixMessage{Latitude: 10.0, Longitude: 76.0, CapturedAt: time.Now()}); err != nil {
		t.Fatalf("write second fix: %v", err)
	}
	if err := pub.ReadJSON(&ack); err != nil {
		t.Fatalf("read second ack: %v", err)
	}
	if !ack.Accepted {
		t.Fatalf("valid fix rejected after invalid one: %s", ack.Error)
	}
}

func TestPublishRequiresVehicleID(t *testing.T) {
	ts, _ := newTestServer(t)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/publish"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("dial without vehicleId succeeded, want handshake failure")
	}
	if resp == nil || resp.StatusCode != 400 {
		t.Fatalf("handshake response = %+v, want 400", resp)
	}
}
