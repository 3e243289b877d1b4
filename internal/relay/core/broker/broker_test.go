package broker

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Alanbenny123/bustrackingnew/internal/relay/core/model"
)

// fakeRegistry is a minimal RegistryView for broker tests.
type fakeRegistry struct {
	mu     sync.Mutex
	states map[string]model.VehicleState
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{states: make(map[string]model.VehicleState)}
}

func (r *fakeRegistry) set(st model.VehicleState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states[st.VehicleID] = st
}

func (r *fakeRegistry) Ensure(vehicleID string, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.states[vehicleID]; !ok {
		r.states[vehicleID] = model.VehicleState{VehicleID: vehicleID, Status: model.StatusOffline}
	}
}

func (r *fakeRegistry) Snapshot(vehicleID string) (model.VehicleState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.states[vehicleID]
	if !ok {
		return model.VehicleState{}, model.ErrVehicleNotFound
	}
	return st, nil
}

// fakeSink records sent events and can be made to fail.
type fakeSink struct {
	mu     sync.Mutex
	events []model.Event
	fail   bool
	closed bool
}

func (s *fakeSink) Send(ev model.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("transport gone")
	}
	s.events = append(s.events, ev)
	return nil
}

func (s *fakeSink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

func (s *fakeSink) sent() []model.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Event(nil), s.events...)
}

func (s *fakeSink) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func coord(t *testing.T, lat float64, at time.Time) model.Coordinate {
	t.Helper()
	c, err := model.NewCoordinate(lat, 76.0, at)
	if err != nil {
		t.Fatalf("NewCoordinate: %v", err)
	}
	return c
}

func TestSubscribeSendsSnapshotImmediately(t *testing.T) {
	reg := newFakeRegistry()
	b := New(reg, nil)
	now := time.Now()

	fix := coord(t, 10.0, now)
	reg.set(model.VehicleState{
		VehicleID: "bus-101",
		LastFix:   &fix,
		Status:    model.StatusOnline,
	})

	sink := &fakeSink{}
	b.Register("conn-1", sink)
	if err := b.Subscribe("conn-1", "bus-101"); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	got := sink.sent()
	if len(got) != 1 {
		t.Fatalf("snapshot delivered %d events, want 1", len(got))
	}
	if got[0].Type != model.EventLocation || got[0].Fix.Latitude != 10.0 {
		t.Errorf("snapshot event = %+v, want location (10.0, 76.0)", got[0])
	}
}

func TestSubscribeUnknownVehicleSendsOffline(t *testing.T) {
	reg := newFakeRegistry()
	b := New(reg, nil)

	sink := &fakeSink{}
	b.Register("conn-1", sink)
	if err := b.Subscribe("conn-1", "never-seen"); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	got := sink.sent()
	if len(got) != 1 || got[0].Type != model.EventOffline {
		t.Errorf("events = %+v, want a single offline event for placeholder", got)
	}
	if _, err := reg.Snapshot("never-seen"); err != nil {
		t.Errorf("placeholder entry was not created: %v", err)
	}
}

func TestBroadcastReachesOnlySubscribed(t *testing.T) {
	reg := newFakeRegistry()
	b := New(reg, nil)
	now := time.Now()

	a, c := &fakeSink{}, &fakeSink{}
	b.Register("conn-a", a)
	b.Register("conn-c", c)
	if err := b.Subscribe("conn-a", "bus-101"); err != nil {
		t.Fatal(err)
	}
	if err := b.Subscribe("conn-c", "bus-102"); err != nil {
		t.Fatal(err)
	}

	b.Broadcast(model.LocationEvent("bus-101", coord(t, 10.0, now)))

	if got := a.sent(); len(got) != 2 { // offline snapshot + location
		t.Errorf("subscriber of bus-101 got %d events, want 2", len(got))
	}
	for _, ev := range c.sent() {
		if ev.VehicleID == "bus-101" {
			t.Errorf("subscriber of bus-102 received bus-101 event: %+v", ev)
		}
	}
}

func TestBroadcastFailureIsIsolated(t *testing.T) {
	reg := newFakeRegistry()
	b := New(reg, nil)
	now := time.Now()

	bad, good := &fakeSink{fail: true}, &fakeSink{}
	b.Register("conn-bad", bad)
	b.Register("conn-good", good)

	// The failing sink rejects even the snapshot; register interest directly
	// by subscribing to a vehicle with no state to send.
	if err := b.Subscribe("conn-good", "bus-101"); err != nil {
		t.Fatal(err)
	}
	reg.set(model.VehicleState{VehicleID: "bus-101", Status: model.StatusOnline})
	bad.mu.Lock()
	bad.fail = false
	bad.mu.Unlock()
	if err := b.Subscribe("conn-bad", "bus-101"); err != nil {
		t.Fatal(err)
	}
	bad.mu.Lock()
	bad.fail = true
	bad.mu.Unlock()

	b.Broadcast(model.LocationEvent("bus-101", coord(t, 10.0, now)))

	var sawLocation bool
	for _, ev := range good.sent() {
		if ev.Type == model.EventLocation {
			sawLocation = true
		}
	}
	if !sawLocation {
		t.Error("healthy subscriber missed the update after peer failure")
	}
	if !bad.isClosed() {
		t.Error("failed subscriber sink was not closed")
	}
	if got := b.WatcherCount("bus-101"); got != 1 {
		t.Errorf("WatcherCount = %d after failure teardown, want 1", got)
	}
}

func TestDeliveryNeverRegressesCapturedAt(t *testing.T) {
	reg := newFakeRegistry()
	b := New(reg, nil)
	now := time.Now()

	sink := &fakeSink{}
	b.Register("conn-1", sink)
	if err := b.Subscribe("conn-1", "bus-101"); err != nil {
		t.Fatal(err)
	}

	b.Broadcast(model.LocationEvent("bus-101", coord(t, 11.0, now.Add(2*time.Second))))
	b.Broadcast(model.LocationEvent("bus-101", coord(t, 10.0, now))) // late arrival
	b.Broadcast(model.LocationEvent("bus-101", coord(t, 12.0, now.Add(3*time.Second))))

	var last time.Time
	for _, ev := range sink.sent() {
		if ev.Type != model.EventLocation {
			continue
		}
		if ev.Fix.CapturedAt.Before(last) {
			t.Fatalf("observed regressed update: %v before %v", ev.Fix.CapturedAt, last)
		}
		last = ev.Fix.CapturedAt
	}
	if !last.Equal(now.Add(3 * time.Second)) {
		t.Errorf("final delivered capturedAt = %v, want %v", last, now.Add(3*time.Second))
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	reg := newFakeRegistry()
	b := New(reg, nil)
	now := time.Now()

	sink := &fakeSink{}
	b.Register("conn-1", sink)
	if err := b.Subscribe("conn-1", "bus-101"); err != nil {
		t.Fatal(err)
	}
	before := len(sink.sent())

	b.Unsubscribe("conn-1", "bus-101")
	b.Broadcast(model.LocationEvent("bus-101", coord(t, 10.0, now)))

	if got := len(sink.sent()); got != before {
		t.Errorf("received %d events after unsubscribe, want %d", got, before)
	}
	if b.WatcherCount("bus-101") != 0 {
		t.Error("WatcherCount should be 0 after unsubscribe")
	}
}

func TestDropConnectionRemovesAllSubscriptions(t *testing.T) {
	reg := newFakeRegistry()
	b := New(reg, nil)
	now := time.Now()

	sink := &fakeSink{}
	b.Register("conn-1", sink)
	for _, id := range []string{"bus-101", "bus-102", "bus-103"} {
		if err := b.Subscribe("conn-1", id); err != nil {
			t.Fatal(err)
		}
	}

	b.DropConnection("conn-1")

	for _, id := range []string{"bus-101", "bus-102", "bus-103"} {
		if b.WatcherCount(id) != 0 {
			t.Errorf("WatcherCount(%s) != 0 after drop", id)
		}
	}
	before := len(sink.sent())
	b.Broadcast(model.LocationEvent("bus-101", coord(t, 10.0, now)))
	if got := len(sink.sent()); got != before {
		t.Error("dropped connection still receives events")
	}

	if err := b.Subscribe("conn-1", "bus-101"); !errors.Is(err, model.ErrConnectionClosed) {
		t.Errorf("Subscribe after drop err = %v, want ErrConnectionClosed", err)
	}
}
