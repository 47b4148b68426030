// Package vehicle implements the session that mediates between the vehicle's
// command protocol and connected clients: contact tracking, the manual
// control safety stop, the normalized event stream and flightplan
// synchronization with the vehicle's storage.
package vehicle

import (
	"context"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/jrgenerative/bebop-bridge-service/internal/transfer"
	"github.com/jrgenerative/bebop-bridge-service/internal/types"
)

const (
	// maxNoContact caps the seconds-since-contact counter.
	maxNoContact = 3600

	defaultSafetyStopWindow = 2000 * time.Millisecond
	defaultContactInterval  = time.Second

	// Fixed plan location on the vehicle, relative to its FTP root, and
	// the absolute path the mission playback engine reads it from.
	defaultRemoteDir   = "internal_000/flightplans/"
	defaultRemoteFile  = "flightPlan" + types.MavlinkSuffix
	defaultMissionPath = "/data/ftp/internal_000/flightplans/flightPlan" + types.MavlinkSuffix
)

// Config carries the session's timing and storage-layout parameters. The
// zero value selects production defaults; tests shorten the windows.
type Config struct {
	SafetyStopWindow time.Duration
	ContactInterval  time.Duration
	RemoteDir        string
	RemoteFile       string
	MissionPath      string
}

func (c Config) withDefaults() Config {
	if c.SafetyStopWindow == 0 {
		c.SafetyStopWindow = defaultSafetyStopWindow
	}
	if c.ContactInterval == 0 {
		c.ContactInterval = defaultContactInterval
	}
	if c.RemoteDir == "" {
		c.RemoteDir = defaultRemoteDir
	}
	if c.RemoteFile == "" {
		c.RemoteFile = defaultRemoteFile
	}
	if c.MissionPath == "" {
		c.MissionPath = defaultMissionPath
	}
	return c
}

// Session is the single vehicle session of the bridge process. All state is
// confined to one loop goroutine: vendor signals, contact ticks, API calls
// and transfer completions arrive over channels and are handled one at a
// time. The public control surface is fire-and-observe: methods return
// immediately and report outcomes on the event stream.
type Session struct {
	cfg    Config
	driver Driver
	xfer   *transfer.Orchestrator
	plan   *PlanFeed

	calls     chan func()
	transfers chan func()
	events    chan types.Event

	// Loop-confined state. Only the run goroutine touches these.
	noContactSince int
	connected      bool
	safetyStop     *time.Timer
	safetyGen      int
}

// NewSession wires a session to a vendor driver and the vehicle's raw file
// transfer capability.
func NewSession(driver Driver, remote transfer.Remote, cfg Config) *Session {
	cfg = cfg.withDefaults()
	return &Session{
		cfg:       cfg,
		driver:    driver,
		xfer:      transfer.NewOrchestrator(remote, cfg.RemoteDir, cfg.RemoteFile),
		plan:      NewPlanFeed(),
		calls:     make(chan func(), 64),
		transfers: make(chan func(), 8),
		events:    make(chan types.Event, 256),
	}
}

// Events is the outbound normalized event stream consumed by the push
// transport.
func (s *Session) Events() <-chan types.Event {
	return s.events
}

// Flightplan is the live view of the last plan read back from the vehicle.
func (s *Session) Flightplan() *PlanFeed {
	return s.plan
}

// Run starts the session loop and the transfer worker. It returns when ctx
// is cancelled.
func (s *Session) Run(ctx context.Context, wg *sync.WaitGroup) {
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.runTransfers(ctx)
	}()
	go func() {
		defer wg.Done()
		s.runLoop(ctx)
	}()
}

func (s *Session) runLoop(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Vehicle: session loop defect: %v", r)
		}
	}()

	ticker := time.NewTicker(s.cfg.ContactInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-s.driver.Signals():
			s.handleSignal(sig)
		case fn := <-s.calls:
			fn()
		case <-ticker.C:
			s.publish("contact", s.noContactSince)
			s.noContactSince++
			if s.noContactSince > maxNoContact {
				s.noContactSince = maxNoContact
			}
		}
	}
}

// handleSignal translates one vendor signal. The contact counter is reset
// before the normalized events go out, so staleness observers never see a
// state change without the corresponding contact reset.
func (s *Session) handleSignal(sig types.Signal) {
	events := Translate(sig)
	if len(events) == 0 {
		return
	}
	s.noContactSince = 0
	for _, ev := range events {
		s.publish(ev.Name, ev.Payload)
	}
}

// post hands a closure to the session loop.
func (s *Session) post(fn func()) {
	s.calls <- fn
}

func (s *Session) publish(name string, payload interface{}) {
	select {
	case s.events <- types.Event{Name: name, Payload: payload}:
	default:
		log.Printf("Vehicle: event stream full, dropping %s", name)
	}
}

func (s *Session) publishError(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	log.Printf("Vehicle: %s", msg)
	s.publish("error", msg)
}

// Control surface
// =====================================================================

// Connect binds the vehicle transport. Connecting an already connected
// session synthesizes the success event without re-binding.
func (s *Session) Connect() {
	s.post(func() {
		log.Printf("Vehicle: connect")
		if s.connected {
			s.publish("connected", true)
			return
		}
		err := s.driver.Connect(func() {
			// The driver may complete on the calling goroutine, and a
			// post from the loop itself can block on a full call queue.
			go s.post(func() {
				s.connected = true
				s.noContactSince = 0
				s.publish("connected", true)
			})
		})
		if err != nil {
			s.publishError("vehicle connection error: %v", err)
		}
	})
}

func (s *Session) Takeoff() {
	s.post(func() {
		log.Printf("Vehicle: takeoff commanded")
		s.driver.Takeoff(func() {
			go s.post(func() { s.publish("airborne", nil) })
		})
	})
}

func (s *Session) Land() {
	s.post(func() {
		log.Printf("Vehicle: landing commanded")
		s.driver.Land(func() {
			go s.post(func() { s.publish("touchdown", nil) })
		})
	})
}

// Pitch tilts the vehicle: positive values move forward, negative backward.
func (s *Session) Pitch(angle float64) {
	s.post(func() {
		log.Printf("Vehicle: pitch @ %v", angle)
		s.armSafetyStop()
		if angle >= 0 {
			s.driver.Forward(math.Abs(angle))
		} else {
			s.driver.Backward(math.Abs(angle))
		}
	})
}

// Roll tilts the vehicle sideways: positive right, negative left.
func (s *Session) Roll(angle float64) {
	s.post(func() {
		log.Printf("Vehicle: roll @ %v", angle)
		s.armSafetyStop()
		if angle >= 0 {
			s.driver.Right(math.Abs(angle))
		} else {
			s.driver.Left(math.Abs(angle))
		}
	})
}

// Yaw rotates the vehicle: positive clockwise, negative counter-clockwise.
func (s *Session) Yaw(speed float64) {
	s.post(func() {
		log.Printf("Vehicle: yaw @ %v", speed)
		s.armSafetyStop()
		if speed >= 0 {
			s.driver.Clockwise(math.Abs(speed))
		} else {
			s.driver.CounterClockwise(math.Abs(speed))
		}
	})
}

// Lift changes altitude: positive up, negative down.
func (s *Session) Lift(speed float64) {
	s.post(func() {
		log.Printf("Vehicle: lift @ %v", speed)
		s.armSafetyStop()
		if speed >= 0 {
			s.driver.Up(math.Abs(speed))
		} else {
			s.driver.Down(math.Abs(speed))
		}
	})
}

// Level commands neutral attitude. Also the safety stop's expiry action.
func (s *Session) Level() {
	s.post(func() {
		log.Printf("Vehicle: level")
		s.driver.Level()
	})
}

// armSafetyStop (re)arms the dead-man's switch: any pending deadline is
// cancelled and replaced, so exactly one deadline is ever outstanding. On
// expiry the vehicle is leveled once; continued stillness does not
// re-trigger. Runs on the loop goroutine.
//
// Stop cannot cancel an expiry whose closure is already queued behind a
// busy loop. The generation check catches that case: only the current
// deadline may level, a superseded one is a no-op.
func (s *Session) armSafetyStop() {
	if s.safetyStop != nil {
		s.safetyStop.Stop()
	}
	s.safetyGen++
	gen := s.safetyGen
	s.safetyStop = time.AfterFunc(s.cfg.SafetyStopWindow, func() {
		s.post(func() {
			if gen != s.safetyGen {
				return
			}
			log.Printf("Vehicle: safety stop, leveling")
			s.safetyStop = nil
			s.driver.Level()
		})
	})
}

func (s *Session) StartMission() {
	s.post(func() {
		log.Printf("Vehicle: start mission")
		s.driver.StartMission(s.cfg.MissionPath)
	})
}

func (s *Session) PauseMission() {
	s.post(func() {
		log.Printf("Vehicle: pause mission")
		s.driver.PauseMission()
	})
}

func (s *Session) StopMission() {
	s.post(func() {
		log.Printf("Vehicle: stop mission")
		s.driver.StopMission()
	})
}

// Flightplan transfers
// =====================================================================
//
// The remote plan directory is a single shared resource, so at most one
// transfer runs at a time: operations are queued FIFO onto one worker
// goroutine and each runs to its terminal outcome before the next starts.

func (s *Session) runTransfers(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-s.transfers:
			func() {
				defer func() {
					if r := recover(); r != nil {
						log.Printf("Vehicle: transfer defect: %v", r)
					}
				}()
				fn()
			}()
		}
	}
}

func (s *Session) enqueueTransfer(fn func()) {
	select {
	case s.transfers <- fn:
	default:
		s.post(func() {
			s.publishError("flight plan transfer rejected: queue full")
		})
	}
}

// UploadFlightplan installs a plan on the vehicle and then re-downloads it,
// so that the published current plan is what the vehicle's storage actually
// holds. Plans with empty mission content are rejected: the empty plan is
// reserved as the "no plan installed" sentinel.
func (s *Session) UploadFlightplan(fp types.Flightplan) {
	s.enqueueTransfer(func() {
		log.Printf("Vehicle: upload flight plan %s", fp.Name)
		if fp.IsEmpty() {
			s.post(func() {
				s.publishError("refusing to upload flight plan %s: empty mission content", fp.Name)
			})
			return
		}
		if err := s.xfer.UploadPlan(fp); err != nil {
			s.post(func() { s.publishError("Ftp error: %v", err) })
			return
		}
		log.Printf("Vehicle: flight plan successfully installed")
		s.post(func() {
			s.publish("success", fmt.Sprintf("Flight plan %s uploaded.", fp.Name))
		})
		s.refreshPlan()
	})
}

// DownloadFlightplan reads the installed plan from the vehicle and publishes
// it on the flightplan feed.
func (s *Session) DownloadFlightplan() {
	s.enqueueTransfer(func() {
		log.Printf("Vehicle: download flight plan")
		s.refreshPlan()
	})
}

// DeleteFlightplan clears the vehicle's plan directory and republishes the
// (now empty) current plan.
func (s *Session) DeleteFlightplan() {
	s.enqueueTransfer(func() {
		log.Printf("Vehicle: delete flight plan")
		if err := s.xfer.DeletePlan(); err != nil {
			s.post(func() { s.publishError("Ftp error: %v", err) })
			return
		}
		log.Printf("Vehicle: flight plan successfully deleted")
		s.post(func() {
			s.publish("success", "Flight plan successfully deleted.")
		})
		s.refreshPlan()
	})
}

// refreshPlan runs the download steps and publishes the result. Runs on the
// transfer worker, strictly after the operation that triggered it.
func (s *Session) refreshPlan() {
	fp, err := s.xfer.DownloadPlan()
	if err != nil {
		s.post(func() { s.publishError("Ftp error: %v", err) })
		return
	}
	s.post(func() { s.plan.Publish(fp) })
}
