package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Alanbenny123/bustrackingnew/internal/relay/core/model"
	"github.com/Alanbenny123/bustrackingnew/internal/relay/core/service"
	"github.com/Alanbenny123/bustrackingnew/pkg/options"
)

func newAdminServer(t *testing.T) (*httptest.Server, *service.Service) {
	t.Helper()
	svc := service.New(service.Config{
		StalenessWindow:  15 * time.Second,
		CoalesceInterval: time.Second,
	})
	srv := NewServer(options.NewHttpOptions(), svc, nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, svc
}

func get(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, body
}

func TestHealthEndpoints(t *testing.T) {
	ts, _ := newAdminServer(t)

	for _, path := range []string{"/healthz", "/readyz"} {
		resp, body := get(t, ts.URL+path)
		if resp.StatusCode != http.StatusOK || string(body) != "ok" {
			t.Errorf("GET %s = %d %q, want 200 ok", path, resp.StatusCode, body)
		}
	}
}

func TestListVehicles(t *testing.T) {
	ts, svc := newAdminServer(t)

	resp, body := get(t, ts.URL+"/api/v1/vehicles")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var empty vehiclesResponse
	if err := json.Unmarshal(body, &empty); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(empty.Vehicles) != 0 {
		t.Fatalf("vehicles = %+v, want empty", empty.Vehicles)
	}

	if err := svc.IngestFix(context.Background(), "bus-101", 10.0261, 76.3125, time.Now()); err != nil {
		t.Fatalf("IngestFix: %v", err)
	}

	_, body = get(t, ts.URL+"/api/v1/vehicles")
	var out vehiclesResponse
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out.Vehicles) != 1 || out.Vehicles[0].VehicleID != "bus-101" {
		t.Fatalf("vehicles = %+v, want one entry for bus-101", out.Vehicles)
	}
	if out.Vehicles[0].Status != model.StatusOnline || out.Vehicles[0].LastFix == nil {
		t.Errorf("vehicle state = %+v, want online with fix", out.Vehicles[0])
	}
}

func TestGetVehicle(t *testing.T) {
	ts, svc := newAdminServer(t)

	resp, _ := get(t, ts.URL+"/api/v1/vehicles/ghost")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown vehicle status = %d, want 404", resp.StatusCode)
	}

	if err := svc.IngestFix(context.Background(), "bus-101", 10.0, 76.0, time.Now()); err != nil {
		t.Fatalf("IngestFix: %v", err)
	}
	resp, body := get(t, ts.URL+"/api/v1/vehicles/bus-101")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var st model.VehicleState
	if err := json.Unmarshal(body, &st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.VehicleID != "bus-101" || st.LastFix == nil {
		t.Errorf("state = %+v, want bus-101 with fix", st)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts, _ := newAdminServer(t)

	resp, body := get(t, ts.URL+"/metrics")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if !strings.Contains(string(body), "relay_") {
		t.Error("metrics output does not expose relay collectors")
	}
}
