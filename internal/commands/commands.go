// Package commands receives control commands for the vehicle session over
// the MQTT command topic and dispatches them to the session's control
// surface and the local flightplan catalog.
package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/jrgenerative/bebop-bridge-service/internal/types"
)

const (
	qos    = 1
	retain = false
)

// Vehicle is the session's fire-and-observe control surface.
type Vehicle interface {
	Connect()
	Takeoff()
	Land()
	Pitch(value float64)
	Roll(value float64)
	Yaw(value float64)
	Lift(value float64)
	Level()
	StartMission()
	PauseMission()
	StopMission()
	UploadFlightplan(fp types.Flightplan)
	DownloadFlightplan()
	DeleteFlightplan()
}

// Store is the local flightplan catalog.
type Store interface {
	List() ([]string, error)
	Load(name string) (types.Flightplan, error)
	Save(fp types.Flightplan) error
	Delete(name string) error
}

// Broker is the subset of the MQTT client used here; satisfied by
// mqtt.Client.
type Broker interface {
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

type valuePayload struct {
	Value float64 `json:"value"`
}

type namePayload struct {
	Name string `json:"name"`
}

type planPayload struct {
	Name    string `json:"name"`
	Mavlink string `json:"mavlink"`
}

// StartCommandHandlers subscribes to the command topic and starts the
// routine executing inbound commands one at a time. The routine quits when
// ctx is cancelled.
func StartCommandHandlers(ctx context.Context, wg *sync.WaitGroup, broker Broker, vehicle Vehicle, store Store, deviceID string) error {
	controlCommands := make(chan string, 16)

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case command := <-controlCommands:
				handleControlCommand(command, broker, vehicle, store, deviceID)
			}
		}
	}()

	log.Printf("Subscribing to MQTT commands")
	commandTopic := fmt.Sprintf("/devices/%s/commands/", deviceID)
	token := broker.Subscribe(fmt.Sprintf("%v#", commandTopic), qos, func(client mqtt.Client, msg mqtt.Message) {
		subfolder := strings.TrimPrefix(msg.Topic(), commandTopic)
		switch subfolder {
		case "control":
			log.Printf("Got control command: %v", string(msg.Payload()))
			controlCommands <- string(msg.Payload())
		default:
			log.Printf("Unknown command subfolder: %v", subfolder)
		}
	})
	token.Wait()
	return token.Error()
}

func handleControlCommand(command string, broker Broker, vehicle Vehicle, store Store, deviceID string) {
	var cmd types.ControlCommand
	if err := json.Unmarshal([]byte(command), &cmd); err != nil {
		log.Printf("Could not unmarshal command: %v", err)
		return
	}

	switch cmd.Command {
	case "connect":
		vehicle.Connect()
	case "takeoff":
		vehicle.Takeoff()
	case "land":
		vehicle.Land()
	case "pitch":
		if v, ok := commandValue(cmd); ok {
			vehicle.Pitch(v)
		}
	case "roll":
		if v, ok := commandValue(cmd); ok {
			vehicle.Roll(v)
		}
	case "yaw":
		if v, ok := commandValue(cmd); ok {
			vehicle.Yaw(v)
		}
	case "lift":
		if v, ok := commandValue(cmd); ok {
			vehicle.Lift(v)
		}
	case "level":
		vehicle.Level()
	case "start-mission":
		vehicle.StartMission()
	case "pause-mission":
		vehicle.PauseMission()
	case "stop-mission":
		vehicle.StopMission()
	case "upload-flightplan":
		uploadFlightplan(cmd, broker, vehicle, store, deviceID)
	case "download-flightplan":
		vehicle.DownloadFlightplan()
	case "delete-flightplan":
		vehicle.DeleteFlightplan()
	case "list-flightplans":
		listFlightplans(broker, store, deviceID)
	case "save-flightplan":
		saveFlightplan(cmd, broker, store, deviceID)
	case "delete-stored-flightplan":
		deleteStoredFlightplan(cmd, broker, store, deviceID)
	default:
		log.Printf("Unknown command: %v", cmd.Command)
	}
}

func commandValue(cmd types.ControlCommand) (float64, bool) {
	var p valuePayload
	if err := json.Unmarshal([]byte(cmd.Payload), &p); err != nil {
		log.Printf("Could not unmarshal %s payload: %v", cmd.Command, err)
		return 0, false
	}
	return p.Value, true
}

// uploadFlightplan loads the named plan from the local catalog and hands it
// to the session for installation on the vehicle.
func uploadFlightplan(cmd types.ControlCommand, broker Broker, vehicle Vehicle, store Store, deviceID string) {
	var p namePayload
	if err := json.Unmarshal([]byte(cmd.Payload), &p); err != nil {
		log.Printf("Could not unmarshal upload-flightplan payload: %v", err)
		return
	}
	fp, err := store.Load(p.Name)
	if err != nil {
		publishError(broker, deviceID, "flightplan-error", err)
		return
	}
	vehicle.UploadFlightplan(fp)
}

func listFlightplans(broker Broker, store Store, deviceID string) {
	names, err := store.List()
	if err != nil {
		publishError(broker, deviceID, "flightplan-list-error", err)
		return
	}
	b, _ := json.Marshal(names)
	topic := fmt.Sprintf("/devices/%s/events/flightplan-list", deviceID)
	broker.Publish(topic, qos, retain, b)
}

func saveFlightplan(cmd types.ControlCommand, broker Broker, store Store, deviceID string) {
	var p planPayload
	if err := json.Unmarshal([]byte(cmd.Payload), &p); err != nil {
		log.Printf("Could not unmarshal save-flightplan payload: %v", err)
		return
	}
	fp := types.NewFlightplan(p.Name+types.MavlinkSuffix, p.Mavlink)
	if err := store.Save(fp); err != nil {
		publishError(broker, deviceID, "flightplan-list-error", err)
	}
}

func deleteStoredFlightplan(cmd types.ControlCommand, broker Broker, store Store, deviceID string) {
	var p namePayload
	if err := json.Unmarshal([]byte(cmd.Payload), &p); err != nil {
		log.Printf("Could not unmarshal delete-stored-flightplan payload: %v", err)
		return
	}
	if err := store.Delete(p.Name); err != nil {
		publishError(broker, deviceID, "flightplan-list-error", err)
	}
}

func publishError(broker Broker, deviceID, event string, err error) {
	log.Printf("Command failed: %v", err)
	topic := fmt.Sprintf("/devices/%s/events/%s", deviceID, event)
	broker.Publish(topic, qos, retain, err.Error())
}
