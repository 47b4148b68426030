// Package telemetry pushes the session's normalized events, the current
// flightplan and the catalog name list to connected clients over MQTT, one
// topic per event name.
package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	uuid "github.com/google/uuid"

	"github.com/jrgenerative/bebop-bridge-service/internal/types"
)

const (
	qos    = 1
	retain = false
)

// Publisher is the subset of the MQTT client used here; satisfied by
// mqtt.Client.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// envelope wraps every pushed event with a timestamp (microseconds) and a
// message id.
type envelope struct {
	Timestamp int64       `json:"timestamp"`
	MessageID string      `json:"message_id"`
	Payload   interface{} `json:"payload"`
}

// Start forwards the three downlink streams until ctx is cancelled: session
// events to events/<name>, plan updates to events/flightplan, catalog name
// lists to events/flightplan-list.
func Start(ctx context.Context, wg *sync.WaitGroup, pub Publisher, deviceID string,
	events <-chan types.Event, plans <-chan types.Flightplan, names <-chan []string) {

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-events:
				publish(pub, deviceID, ev.Name, ev.Payload)
			case fp := <-plans:
				publish(pub, deviceID, "flightplan", fp)
			case list := <-names:
				publish(pub, deviceID, "flightplan-list", list)
			}
		}
	}()
}

func publish(pub Publisher, deviceID, name string, payload interface{}) {
	b, err := json.Marshal(envelope{
		Timestamp: time.Now().UnixNano() / 1000,
		MessageID: uuid.New().String(),
		Payload:   payload,
	})
	if err != nil {
		log.Printf("Telemetry: could not marshal %s event: %v", name, err)
		return
	}
	topic := fmt.Sprintf("/devices/%s/events/%s", deviceID, name)
	pub.Publish(topic, qos, retain, b)
}
