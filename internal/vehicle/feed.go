package vehicle

import (
	"sync"

	"github.com/jrgenerative/bebop-bridge-service/internal/types"
)

// PlanFeed holds the last published flightplan and fans updates out to
// subscribers. A new subscriber immediately receives the current value, then
// every subsequent publish. Slow subscribers drop intermediate values rather
// than block the publisher; the latest value always gets through.
type PlanFeed struct {
	mu   sync.Mutex
	last types.Flightplan
	subs []chan types.Flightplan
}

func NewPlanFeed() *PlanFeed {
	return &PlanFeed{last: types.EmptyFlightplan()}
}

// Subscribe registers a new observer. The returned channel carries the
// current value first.
func (f *PlanFeed) Subscribe() <-chan types.Flightplan {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan types.Flightplan, 1)
	ch <- f.last
	f.subs = append(f.subs, ch)
	return ch
}

// Current returns the last published plan.
func (f *PlanFeed) Current() types.Flightplan {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last
}

// Publish replaces the current plan and notifies all subscribers.
func (f *PlanFeed) Publish(fp types.Flightplan) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.last = fp
	for _, ch := range f.subs {
		// Replace a pending value so the subscriber sees the newest one.
		select {
		case ch <- fp:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- fp
		}
	}
}
