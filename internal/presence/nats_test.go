package presence

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/sqdops/seedtrack/internal/domain"
)

// recordingObserver collects every event it is handed.
type recordingObserver struct {
	mu     sync.Mutex
	events []domain.PresenceEvent
}

func (r *recordingObserver) ObservePresence(ctx context.Context, ev domain.PresenceEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recordingObserver) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func (r *recordingObserver) first() domain.PresenceEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[0]
}

func TestPresenceFeedRoundTrip(t *testing.T) {
	ns, err := StartEmbeddedServer("127.0.0.1", -1) // -1 picks a free port
	if err != nil {
		t.Fatalf("starting embedded server: %v", err)
	}
	defer ns.Shutdown()

	observer := &recordingObserver{}
	sub, err := Connect(context.Background(), ns.ClientURL(), observer, "seeding.presence.>")
	if err != nil {
		t.Fatalf("connecting subscriber: %v", err)
	}
	defer sub.Close()

	pub, err := nats.Connect(ns.ClientURL())
	if err != nil {
		t.Fatalf("connecting publisher: %v", err)
	}
	defer pub.Close()

	ev := domain.PresenceEvent{
		SteamID:   "76561198000000001",
		ServerID:  3,
		Event:     domain.PresenceJoin,
		Username:  "alice",
		Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	data, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshaling event: %v", err)
	}
	if err := pub.Publish("seeding.presence.server.3", data); err != nil {
		t.Fatalf("publishing: %v", err)
	}
	pub.Flush()

	waitFor(t, func() bool { return observer.count() == 1 })

	got := observer.first()
	if got.SteamID != ev.SteamID || got.ServerID != ev.ServerID || got.Event != ev.Event {
		t.Fatalf("event did not round-trip: %+v", got)
	}
}

func TestMalformedEventsAreDropped(t *testing.T) {
	ns, err := StartEmbeddedServer("127.0.0.1", -1)
	if err != nil {
		t.Fatalf("starting embedded server: %v", err)
	}
	defer ns.Shutdown()

	observer := &recordingObserver{}
	sub, err := Connect(context.Background(), ns.ClientURL(), observer, "seeding.presence.>")
	if err != nil {
		t.Fatalf("connecting subscriber: %v", err)
	}
	defer sub.Close()

	pub, err := nats.Connect(ns.ClientURL())
	if err != nil {
		t.Fatalf("connecting publisher: %v", err)
	}
	defer pub.Close()

	if err := pub.Publish("seeding.presence.server.1", []byte("not json")); err != nil {
		t.Fatalf("publishing garbage: %v", err)
	}
	good, _ := json.Marshal(domain.PresenceEvent{
		SteamID:  "s1",
		ServerID: 1,
		Event:    domain.PresenceJoin,
	})
	if err := pub.Publish("seeding.presence.server.1", good); err != nil {
		t.Fatalf("publishing good event: %v", err)
	}
	pub.Flush()

	// The malformed message is dropped; the valid one still arrives.
	waitFor(t, func() bool { return observer.count() == 1 })
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within deadline")
}
