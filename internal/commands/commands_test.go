package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/jrgenerative/bebop-bridge-service/internal/types"
)

type fakeVehicle struct {
	mu    sync.Mutex
	calls []string
}

func (v *fakeVehicle) record(format string, args ...interface{}) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.calls = append(v.calls, fmt.Sprintf(format, args...))
}

func (v *fakeVehicle) recorded() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]string, len(v.calls))
	copy(out, v.calls)
	return out
}

func (v *fakeVehicle) Connect()            { v.record("connect") }
func (v *fakeVehicle) Takeoff()            { v.record("takeoff") }
func (v *fakeVehicle) Land()               { v.record("land") }
func (v *fakeVehicle) Pitch(value float64) { v.record("pitch %v", value) }
func (v *fakeVehicle) Roll(value float64)  { v.record("roll %v", value) }
func (v *fakeVehicle) Yaw(value float64)   { v.record("yaw %v", value) }
func (v *fakeVehicle) Lift(value float64)  { v.record("lift %v", value) }
func (v *fakeVehicle) Level()              { v.record("level") }
func (v *fakeVehicle) StartMission()       { v.record("start-mission") }
func (v *fakeVehicle) PauseMission()       { v.record("pause-mission") }
func (v *fakeVehicle) StopMission()        { v.record("stop-mission") }

func (v *fakeVehicle) UploadFlightplan(fp types.Flightplan) { v.record("upload %s", fp.Name) }
func (v *fakeVehicle) DownloadFlightplan()                  { v.record("download") }
func (v *fakeVehicle) DeleteFlightplan()                    { v.record("delete") }

type fakeStore struct {
	plans   map[string]types.Flightplan
	listErr error
	saved   []types.Flightplan
	deleted []string
}

func (s *fakeStore) List() ([]string, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	var names []string
	for n := range s.plans {
		names = append(names, n)
	}
	return names, nil
}

func (s *fakeStore) Load(name string) (types.Flightplan, error) {
	fp, ok := s.plans[name]
	if !ok {
		return types.EmptyFlightplan(), fmt.Errorf("no flight plan named %s", name)
	}
	return fp, nil
}

func (s *fakeStore) Save(fp types.Flightplan) error {
	s.saved = append(s.saved, fp)
	return nil
}

func (s *fakeStore) Delete(name string) error {
	s.deleted = append(s.deleted, name)
	return nil
}

type fakeToken struct{ err error }

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t *fakeToken) Error() error { return t.err }

type published struct {
	topic   string
	payload interface{}
}

type fakeBroker struct {
	mu        sync.Mutex
	handler   mqtt.MessageHandler
	topic     string
	published []published
}

func (b *fakeBroker) Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.topic = topic
	b.handler = callback
	return &fakeToken{}
}

func (b *fakeBroker) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, published{topic: topic, payload: payload})
	return &fakeToken{}
}

func (b *fakeBroker) publishedTo(topic string) []published {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []published
	for _, p := range b.published {
		if p.topic == topic {
			out = append(out, p)
		}
	}
	return out
}

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m *fakeMessage) Duplicate() bool   { return false }
func (m *fakeMessage) Qos() byte         { return 1 }
func (m *fakeMessage) Retained() bool    { return false }
func (m *fakeMessage) Topic() string     { return m.topic }
func (m *fakeMessage) MessageID() uint16 { return 0 }
func (m *fakeMessage) Payload() []byte   { return m.payload }
func (m *fakeMessage) Ack()              {}

func command(t *testing.T, name, payload string) string {
	t.Helper()
	b, err := json.Marshal(types.ControlCommand{Command: name, Payload: payload, Timestamp: time.Now()})
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}

func waitVehicleCalls(t *testing.T, v *fakeVehicle, n int) []string {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if calls := v.recorded(); len(calls) >= n {
			return calls
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("vehicle saw %d calls, want %d: %v", len(v.recorded()), n, v.recorded())
	return nil
}

func TestControlCommandsDispatchToVehicle(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	defer wg.Wait()
	defer cancel()

	broker := &fakeBroker{}
	vehicle := &fakeVehicle{}
	store := &fakeStore{plans: map[string]types.Flightplan{}}
	if err := StartCommandHandlers(ctx, &wg, broker, vehicle, store, "bebop1"); err != nil {
		t.Fatalf("StartCommandHandlers: %v", err)
	}
	if broker.topic != "/devices/bebop1/commands/#" {
		t.Fatalf("subscribed to %q", broker.topic)
	}

	send := func(name, payload string) {
		broker.handler(nil, &fakeMessage{
			topic:   "/devices/bebop1/commands/control",
			payload: []byte(command(t, name, payload)),
		})
	}

	send("connect", "")
	send("takeoff", "")
	send("pitch", `{"value": -30}`)
	send("yaw", `{"value": 1.5}`)
	send("level", "")
	send("start-mission", "")
	send("download-flightplan", "")

	calls := waitVehicleCalls(t, vehicle, 7)
	want := []string{"connect", "takeoff", "pitch -30", "yaw 1.5", "level", "start-mission", "download"}
	for i, w := range want {
		if calls[i] != w {
			t.Errorf("call %d = %q, want %q", i, calls[i], w)
		}
	}
}

func TestUnknownSubfolderIgnored(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	defer wg.Wait()
	defer cancel()

	broker := &fakeBroker{}
	vehicle := &fakeVehicle{}
	if err := StartCommandHandlers(ctx, &wg, broker, vehicle, &fakeStore{}, "bebop1"); err != nil {
		t.Fatal(err)
	}

	broker.handler(nil, &fakeMessage{
		topic:   "/devices/bebop1/commands/telemetry",
		payload: []byte(command(t, "takeoff", "")),
	})
	time.Sleep(50 * time.Millisecond)
	if calls := vehicle.recorded(); len(calls) != 0 {
		t.Fatalf("command outside the control subfolder dispatched: %v", calls)
	}
}

func TestUploadLoadsFromCatalog(t *testing.T) {
	broker := &fakeBroker{}
	vehicle := &fakeVehicle{}
	store := &fakeStore{plans: map[string]types.Flightplan{
		"survey": {Name: "survey", Mavlink: "QGC WPL 110\n"},
	}}

	handleControlCommand(command(t, "upload-flightplan", `{"name": "survey"}`), broker, vehicle, store, "bebop1")

	calls := vehicle.recorded()
	if len(calls) != 1 || calls[0] != "upload survey" {
		t.Fatalf("vehicle calls = %v", calls)
	}
}

func TestUploadUnknownPlanReportsError(t *testing.T) {
	broker := &fakeBroker{}
	vehicle := &fakeVehicle{}
	store := &fakeStore{plans: map[string]types.Flightplan{}}

	handleControlCommand(command(t, "upload-flightplan", `{"name": "ghost"}`), broker, vehicle, store, "bebop1")

	if len(vehicle.recorded()) != 0 {
		t.Fatalf("vehicle called for an unloadable plan: %v", vehicle.recorded())
	}
	errs := broker.publishedTo("/devices/bebop1/events/flightplan-error")
	if len(errs) != 1 {
		t.Fatalf("published errors = %v", broker.published)
	}
}

func TestListFlightplansPublishesNames(t *testing.T) {
	broker := &fakeBroker{}
	store := &fakeStore{plans: map[string]types.Flightplan{
		"survey": {Name: "survey", Mavlink: "x"},
	}}

	handleControlCommand(command(t, "list-flightplans", ""), broker, &fakeVehicle{}, store, "bebop1")

	lists := broker.publishedTo("/devices/bebop1/events/flightplan-list")
	if len(lists) != 1 {
		t.Fatalf("published lists = %v", broker.published)
	}
	var names []string
	if err := json.Unmarshal(lists[0].payload.([]byte), &names); err != nil {
		t.Fatalf("list payload: %v", err)
	}
	if len(names) != 1 || names[0] != "survey" {
		t.Fatalf("names = %v", names)
	}
}

func TestListFailureReported(t *testing.T) {
	broker := &fakeBroker{}
	store := &fakeStore{listErr: fmt.Errorf("catalog unreadable")}

	handleControlCommand(command(t, "list-flightplans", ""), broker, &fakeVehicle{}, store, "bebop1")

	errs := broker.publishedTo("/devices/bebop1/events/flightplan-list-error")
	if len(errs) != 1 {
		t.Fatalf("published = %v", broker.published)
	}
	if msg, _ := errs[0].payload.(string); !strings.Contains(msg, "catalog unreadable") {
		t.Fatalf("error payload = %v", errs[0].payload)
	}
}

func TestSaveAndDeleteStoredPlans(t *testing.T) {
	broker := &fakeBroker{}
	store := &fakeStore{plans: map[string]types.Flightplan{}}

	handleControlCommand(command(t, "save-flightplan", `{"name": "m1", "mavlink": "QGC WPL 110\n"}`), broker, &fakeVehicle{}, store, "bebop1")
	if len(store.saved) != 1 || store.saved[0].Name != "m1" {
		t.Fatalf("saved = %v", store.saved)
	}

	handleControlCommand(command(t, "delete-stored-flightplan", `{"name": "m1"}`), broker, &fakeVehicle{}, store, "bebop1")
	if len(store.deleted) != 1 || store.deleted[0] != "m1" {
		t.Fatalf("deleted = %v", store.deleted)
	}
}

func TestMalformedCommandIgnored(t *testing.T) {
	broker := &fakeBroker{}
	vehicle := &fakeVehicle{}

	handleControlCommand("not json", broker, vehicle, &fakeStore{}, "bebop1")
	handleControlCommand(command(t, "pitch", "not json"), broker, vehicle, &fakeStore{}, "bebop1")
	handleControlCommand(command(t, "warp-drive", ""), broker, vehicle, &fakeStore{}, "bebop1")

	if calls := vehicle.recorded(); len(calls) != 0 {
		t.Fatalf("vehicle called for malformed input: %v", calls)
	}
}
