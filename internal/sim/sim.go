// Package sim provides a simulated vehicle for development and testing: a
// vehicle.Driver that emits plausible vendor signals on intervals, and an
// in-memory stand-in for the vehicle's FTP storage.
package sim

import (
	"context"
	"log"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/jrgenerative/bebop-bridge-service/internal/transfer"
	"github.com/jrgenerative/bebop-bridge-service/internal/types"
)

// Timings of the simulated signal sources. Production defaults match the
// radio behavior of the real vehicle; tests shorten them.
type Timings struct {
	Battery     time.Duration
	Wifi        time.Duration
	GPSFix      time.Duration
	MassStorage time.Duration
	Position    time.Duration
	Maneuver    time.Duration // takeoff / landing completion delay
}

func DefaultTimings() Timings {
	return Timings{
		Battery:     8 * time.Second,
		Wifi:        7 * time.Second,
		GPSFix:      8 * time.Second,
		MassStorage: 7 * time.Second,
		Position:    time.Second,
		Maneuver:    3 * time.Second,
	}
}

// Driver is the simulated vehicle.
type Driver struct {
	timings Timings
	signals chan types.Signal

	mu           sync.Mutex
	connected    bool
	batteryLevel int
	rssi         int
	storage      types.MassStorage
	position     types.Position
}

func NewDriver(timings Timings) *Driver {
	return &Driver{
		timings:      timings,
		signals:      make(chan types.Signal, 64),
		batteryLevel: 100,
		rssi:         -63,
		storage:      types.MassStorage{Size: 32768, UsedSize: 0},
		position:     types.Position{Latitude: 47.468722, Longitude: 8.274975, Altitude: 2.0},
	}
}

func (d *Driver) Signals() <-chan types.Signal {
	return d.signals
}

// Run drives the simulated signal sources until ctx is cancelled.
func (d *Driver) Run(ctx context.Context, wg *sync.WaitGroup) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		batteryTicker := time.NewTicker(d.timings.Battery)
		wifiTicker := time.NewTicker(d.timings.Wifi)
		gpsTicker := time.NewTicker(d.timings.GPSFix)
		storageTicker := time.NewTicker(d.timings.MassStorage)
		positionTicker := time.NewTicker(d.timings.Position)
		defer batteryTicker.Stop()
		defer wifiTicker.Stop()
		defer gpsTicker.Stop()
		defer storageTicker.Stop()
		defer positionTicker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-batteryTicker.C:
				d.tickBattery()
			case <-wifiTicker.C:
				d.tickWifi()
			case <-gpsTicker.C:
				d.emit("GPSFixStateChanged", rand.Intn(2))
			case <-storageTicker.C:
				d.tickStorage()
			case <-positionTicker.C:
				d.tickPosition()
			}
		}
	}()
}

func (d *Driver) emit(name string, payload interface{}) {
	select {
	case d.signals <- types.Signal{Name: name, Payload: payload}:
	default:
		log.Printf("Sim: signal buffer full, dropping %s", name)
	}
}

// Battery drains one percent per interval; the signal is only radioed while
// connected, as on the real vehicle.
func (d *Driver) tickBattery() {
	d.mu.Lock()
	if d.batteryLevel > 0 {
		d.batteryLevel--
	}
	level := d.batteryLevel
	connected := d.connected
	d.mu.Unlock()
	if connected {
		d.emit("battery", level)
	}
}

// Wifi signal strength random-walks between -90 dBm (unusable) and -30 dBm
// (excellent).
func (d *Driver) tickWifi() {
	d.mu.Lock()
	d.rssi += rand.Intn(7) - 3
	if d.rssi < -90 {
		d.rssi = -90
	}
	if d.rssi > -30 {
		d.rssi = -30
	}
	rssi := d.rssi
	connected := d.connected
	d.mu.Unlock()
	if connected {
		d.emit("WifiSignalChanged", types.WifiSignal{RSSI: rssi})
	}
}

func (d *Driver) tickStorage() {
	d.mu.Lock()
	if d.storage.UsedSize < d.storage.Size {
		d.storage.UsedSize += 100
	}
	if d.storage.UsedSize > d.storage.Size {
		d.storage.UsedSize = d.storage.Size
	}
	storage := d.storage
	d.mu.Unlock()
	d.emit("MassStorageInfoStateListChanged", storage)
}

func (d *Driver) tickPosition() {
	d.mu.Lock()
	if rand.Intn(2) == 1 {
		d.position.Latitude += 0.00001
	} else {
		d.position.Latitude -= 0.00001
	}
	if rand.Intn(2) == 1 {
		d.position.Longitude += 0.00001
	} else {
		d.position.Longitude -= 0.00001
	}
	position := d.position
	d.mu.Unlock()
	d.emit("PositionChanged", position)
}

// vehicle.Driver implementation
// =====================================================================

func (d *Driver) Connect(done func()) error {
	d.mu.Lock()
	d.connected = true
	d.mu.Unlock()
	done()
	d.emit("ready", nil)
	return nil
}

func (d *Driver) Takeoff(done func()) {
	time.AfterFunc(d.timings.Maneuver, done)
}

func (d *Driver) Land(done func()) {
	time.AfterFunc(d.timings.Maneuver, done)
}

func (d *Driver) Forward(v float64)          { log.Printf("Sim: going forward @ %v", v) }
func (d *Driver) Backward(v float64)         { log.Printf("Sim: going backward @ %v", v) }
func (d *Driver) Right(v float64)            { log.Printf("Sim: going right @ %v", v) }
func (d *Driver) Left(v float64)             { log.Printf("Sim: going left @ %v", v) }
func (d *Driver) Clockwise(v float64)        { log.Printf("Sim: yawing right @ %v", v) }
func (d *Driver) CounterClockwise(v float64) { log.Printf("Sim: yawing left @ %v", v) }
func (d *Driver) Up(v float64)               { log.Printf("Sim: going up @ %v", v) }
func (d *Driver) Down(v float64)             { log.Printf("Sim: going down @ %v", v) }
func (d *Driver) Level()                     { log.Printf("Sim: leveling") }

func (d *Driver) StartMission(path string) { log.Printf("Sim: start mission %s", path) }
func (d *Driver) PauseMission()            { log.Printf("Sim: pause mission") }
func (d *Driver) StopMission()             { log.Printf("Sim: stop mission") }

// Remote is an in-memory implementation of the vehicle's file storage.
type Remote struct {
	mu    sync.Mutex
	files map[string]string
}

func NewRemote() *Remote {
	return &Remote{files: make(map[string]string)}
}

func (r *Remote) List(dir string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var names []string
	for path := range r.files {
		if strings.HasPrefix(path, dir) {
			names = append(names, strings.TrimPrefix(path, dir))
		}
	}
	return names, nil
}

func (r *Remote) Get(path string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	content, ok := r.files[path]
	if !ok {
		return "", transfer.ErrNotFound
	}
	return content, nil
}

func (r *Remote) Put(path string, content string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.files[path] = content
	return nil
}

func (r *Remote) Delete(path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.files[path]; !ok {
		return transfer.ErrNotFound
	}
	delete(r.files, path)
	return nil
}
