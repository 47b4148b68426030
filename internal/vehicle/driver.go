package vehicle

import (
	"github.com/jrgenerative/bebop-bridge-service/internal/types"
)

// Driver is the vendor command protocol decoder, seen from the session side.
// Implementations translate these calls into the vehicle's wire protocol and
// deliver decoded state-change notifications on Signals. Completion callbacks
// are invoked exactly once, from the driver's own goroutine or synchronously
// from the calling one; the session re-serializes them into its loop either
// way.
type Driver interface {
	// Connect binds the vehicle transport and calls done once the
	// connection is established. Connection failures surface as an
	// "error" signal on Signals, not as a return value.
	Connect(done func()) error

	Takeoff(done func())
	Land(done func())

	// Directional motion. Values are magnitudes, already made positive by
	// the caller.
	Forward(v float64)
	Backward(v float64)
	Right(v float64)
	Left(v float64)
	Clockwise(v float64)
	CounterClockwise(v float64)
	Up(v float64)
	Down(v float64)

	// Level commands neutral attitude.
	Level()

	StartMission(path string)
	PauseMission()
	StopMission()

	// Signals delivers decoded vendor signals. The channel is owned by the
	// driver and stays open for the driver's lifetime.
	Signals() <-chan types.Signal
}
