package types

import (
	"strings"
	"time"
)

const MavlinkSuffix = ".mavlink"

// Signal is a raw state-change notification from the vehicle's command
// protocol decoder. Names follow the vendor vocabulary (e.g.
// "BatteryStateChanged"); payloads are whatever the decoder delivered.
type Signal struct {
	Name    string
	Payload interface{}
}

// Event is the application-level counterpart of a Signal, produced by the
// vehicle event translator and pushed to connected clients unchanged.
type Event struct {
	Name    string
	Payload interface{}
}

// Flightplan is a named mission definition in mavlink mission-script format.
// The zero value (no name, no content) is the canonical "no plan installed"
// sentinel. Immutable; replaced wholesale, never mutated.
type Flightplan struct {
	Name    string `json:"name"`
	Mavlink string `json:"mavlink"`
}

// NewFlightplan builds a plan from a storage filename and its content. The
// plan name is the filename without directory and without mavlink suffix.
func NewFlightplan(filename, mavlink string) Flightplan {
	name := filename
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		name = name[i+1:]
	}
	name = strings.TrimSuffix(name, MavlinkSuffix)
	return Flightplan{Name: name, Mavlink: mavlink}
}

// EmptyFlightplan returns the "no plan installed" sentinel.
func EmptyFlightplan() Flightplan {
	return Flightplan{}
}

// IsEmpty reports whether the plan carries no mission content.
func (f Flightplan) IsEmpty() bool {
	return f.Mavlink == ""
}

func (f Flightplan) Filename() string {
	return f.Name + MavlinkSuffix
}

// Telemetry payload shapes delivered by the vehicle decoder.

type Position struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Altitude  float64 `json:"altitude"`
}

type MassStorage struct {
	Size     int `json:"size"`      // MBytes
	UsedSize int `json:"used_size"` // MBytes
}

type WifiSignal struct {
	RSSI int `json:"rssi"` // dBm
}

type AutonomousFlightAvailability struct {
	AvailabilityState int `json:"AvailabilityState"`
}

// ControlCommand is the envelope for inbound commands on the MQTT command
// topic.
type ControlCommand struct {
	Command   string
	Payload   string
	Timestamp time.Time
}
