// Package catalog stores flightplans on the bridge's local file system, one
// mavlink file per plan, so clients can pick a plan before uploading it to
// the vehicle.
package catalog

import (
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/jrgenerative/bebop-bridge-service/internal/types"
)

// Catalog is a directory of *.mavlink files. Plan names are filenames
// without the suffix.
type Catalog struct {
	dir string

	mu   sync.Mutex
	subs []chan []string
}

func New(dir string) *Catalog {
	return &Catalog{dir: dir}
}

// List returns the names of all stored plans, sorted.
func (c *Catalog) List() ([]string, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to read flight plans from %s", c.dir)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), types.MavlinkSuffix) {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), types.MavlinkSuffix))
	}
	sort.Strings(names)
	return names, nil
}

// Load reads one stored plan by name.
func (c *Catalog) Load(name string) (types.Flightplan, error) {
	filename := filepath.Join(c.dir, name+types.MavlinkSuffix)
	b, err := os.ReadFile(filename)
	if err != nil {
		return types.EmptyFlightplan(), errors.Wrapf(err, "unable to read flight plan from %s", filename)
	}
	return types.NewFlightplan(name+types.MavlinkSuffix, string(b)), nil
}

// Save writes a plan to disk under its own name and republishes the name
// list.
func (c *Catalog) Save(fp types.Flightplan) error {
	filename := filepath.Join(c.dir, fp.Filename())
	if err := os.WriteFile(filename, []byte(fp.Mavlink), 0644); err != nil {
		return errors.Wrapf(err, "unable to write flight plan to %s", filename)
	}
	c.publishNames()
	return nil
}

// Delete removes a stored plan by name and republishes the name list.
func (c *Catalog) Delete(name string) error {
	filename := filepath.Join(c.dir, name+types.MavlinkSuffix)
	if err := os.Remove(filename); err != nil {
		return errors.Wrapf(err, "unable to delete flight plan %s", filename)
	}
	c.publishNames()
	return nil
}

// Names delivers the plan name list: the current list on subscribe, then an
// update after every successful Save or Delete.
func (c *Catalog) Names() <-chan []string {
	ch := make(chan []string, 1)
	names, err := c.List()
	if err != nil {
		log.Printf("Catalog: ignoring error listing flight plans: %v", err)
		names = nil
	}
	ch <- names
	c.mu.Lock()
	c.subs = append(c.subs, ch)
	c.mu.Unlock()
	return ch
}

func (c *Catalog) publishNames() {
	names, err := c.List()
	if err != nil {
		// A failed listing never terminates the feed.
		log.Printf("Catalog: ignoring error listing flight plans: %v", err)
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range c.subs {
		select {
		case ch <- names:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- names
		}
	}
}
