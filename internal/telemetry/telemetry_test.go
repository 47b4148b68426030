package telemetry

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/jrgenerative/bebop-bridge-service/internal/types"
)

type fakeToken struct{}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t *fakeToken) Error() error { return nil }

type captured struct {
	topic   string
	payload []byte
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []captured
}

func (p *fakePublisher) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, captured{topic: topic, payload: payload.([]byte)})
	return &fakeToken{}
}

func (p *fakePublisher) waitFor(t *testing.T, topic string) captured {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		p.mu.Lock()
		for _, m := range p.msgs {
			if m.topic == topic {
				p.mu.Unlock()
				return m
			}
		}
		p.mu.Unlock()
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("nothing published to %s", topic)
	return captured{}
}

func startTelemetry(t *testing.T) (*fakePublisher, chan types.Event, chan types.Flightplan, chan []string) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	pub := &fakePublisher{}
	events := make(chan types.Event, 8)
	plans := make(chan types.Flightplan, 8)
	names := make(chan []string, 8)
	Start(ctx, &wg, pub, "bebop1", events, plans, names)
	t.Cleanup(func() {
		cancel()
		wg.Wait()
	})
	return pub, events, plans, names
}

func TestEventsPublishedPerName(t *testing.T) {
	pub, events, _, _ := startTelemetry(t)

	events <- types.Event{Name: "battery-level", Payload: 87}
	msg := pub.waitFor(t, "/devices/bebop1/events/battery-level")

	var env envelope
	if err := json.Unmarshal(msg.payload, &env); err != nil {
		t.Fatalf("envelope: %v", err)
	}
	if env.Payload != float64(87) {
		t.Errorf("payload = %v, want 87", env.Payload)
	}
	if env.MessageID == "" {
		t.Error("message id missing")
	}
	if env.Timestamp == 0 {
		t.Error("timestamp missing")
	}
}

func TestFlightplanPublished(t *testing.T) {
	pub, _, plans, _ := startTelemetry(t)

	plans <- types.Flightplan{Name: "survey", Mavlink: "QGC WPL 110\n"}
	msg := pub.waitFor(t, "/devices/bebop1/events/flightplan")

	var env struct {
		Payload types.Flightplan `json:"payload"`
	}
	if err := json.Unmarshal(msg.payload, &env); err != nil {
		t.Fatalf("envelope: %v", err)
	}
	if env.Payload.Name != "survey" || env.Payload.Mavlink != "QGC WPL 110\n" {
		t.Fatalf("plan = %+v", env.Payload)
	}
}

func TestNameListPublished(t *testing.T) {
	pub, _, _, names := startTelemetry(t)

	names <- []string{"alpha", "zulu"}
	msg := pub.waitFor(t, "/devices/bebop1/events/flightplan-list")

	var env struct {
		Payload []string `json:"payload"`
	}
	if err := json.Unmarshal(msg.payload, &env); err != nil {
		t.Fatalf("envelope: %v", err)
	}
	if len(env.Payload) != 2 || env.Payload[0] != "alpha" {
		t.Fatalf("names = %v", env.Payload)
	}
}
