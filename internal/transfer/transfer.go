// Package transfer sequences multi-step remote file operations against the
// vehicle's storage into single atomic-looking outcomes. The orchestrator
// itself does not serialize concurrent operations; the vehicle session
// guarantees at most one plan transfer is in flight at a time, because the
// remote side has exactly one plan directory and one plan file.
package transfer

import (
	"log"

	"github.com/pkg/errors"

	"github.com/jrgenerative/bebop-bridge-service/internal/types"
)

// ErrNotFound is returned by Remote.Get when the requested path does not
// exist on the vehicle.
var ErrNotFound = errors.New("file not found")

// Remote is the raw file-transfer capability of the vehicle. Borrowed by the
// orchestrator, never owned.
type Remote interface {
	// List returns the file names in a remote directory.
	List(dir string) ([]string, error)
	// Get returns the content of a remote file, or ErrNotFound.
	Get(path string) (string, error)
	Put(path string, content string) error
	Delete(path string) error
}

// Orchestrator runs plan transfers against one fixed remote directory and
// one fixed plan filename.
type Orchestrator struct {
	remote   Remote
	dir      string
	filename string
}

func NewOrchestrator(remote Remote, dir, filename string) *Orchestrator {
	return &Orchestrator{remote: remote, dir: dir, filename: filename}
}

// PlanPath returns the fixed remote path of the installed plan.
func (o *Orchestrator) PlanPath() string {
	return o.dir + o.filename
}

// DeletePlan removes every file from the remote plan directory. An empty
// directory is a trivial success. The first failed deletion aborts the
// operation; remaining files are not attempted.
func (o *Orchestrator) DeletePlan() error {
	entries, err := o.remote.List(o.dir)
	if err != nil {
		return errors.Wrapf(err, "listing directory %s failed", o.dir)
	}
	if len(entries) == 0 {
		log.Printf("Transfer: plan directory is empty, nothing to clean up")
		return nil
	}
	for _, name := range entries {
		log.Printf("Transfer: deleting %s", name)
		if err := o.remote.Delete(o.dir + name); err != nil {
			return errors.Wrapf(err, "deleting %s failed", name)
		}
	}
	return nil
}

// UploadPlan installs a plan on the vehicle: the plan directory is cleaned
// first, then the content is written to the fixed plan path. Callers are
// expected to re-download afterwards; the write counts as authoritative only
// once re-read from the vehicle's own storage.
func (o *Orchestrator) UploadPlan(fp types.Flightplan) error {
	if err := o.DeletePlan(); err != nil {
		return err
	}
	if err := o.remote.Put(o.PlanPath(), fp.Mavlink); err != nil {
		return errors.Wrapf(err, "storing flight plan %s failed", fp.Name)
	}
	return nil
}

// DownloadPlan reads the installed plan back from the vehicle. A missing
// plan file is not an error: there may legitimately be no plan installed,
// and the canonical empty plan is returned instead.
func (o *Orchestrator) DownloadPlan() (types.Flightplan, error) {
	content, err := o.remote.Get(o.PlanPath())
	if errors.Is(err, ErrNotFound) {
		log.Printf("Transfer: no flight plan available, returning empty flight plan")
		return types.EmptyFlightplan(), nil
	}
	if err != nil {
		return types.EmptyFlightplan(), errors.Wrap(err, "retrieving flight plan failed")
	}
	return types.NewFlightplan(o.filename, content), nil
}
