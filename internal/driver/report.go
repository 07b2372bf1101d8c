package driver

import (
	"fmt"

	"github.com/jeromebarre/get-obs/internal/models"
)

// Report summarizes a run.
type Report struct {
	RunID      string
	Instrument string
	Platform   string
	Observable string
	DryRun     bool
	Windows    []models.WindowResult
}

// Failed returns the number of windows that recorded an error.
func (r *Report) Failed() int {
	n := 0
	for _, w := range r.Windows {
		if w.Status != models.WindowStatusOK {
			n++
		}
	}
	return n
}

// Outputs returns every artifact produced, in window order.
func (r *Report) Outputs() []string {
	var out []string
	for _, w := range r.Windows {
		out = append(out, w.Outputs...)
	}
	return out
}

// Err returns ErrWindowsFailed when any window failed.
func (r *Report) Err() error {
	if n := r.Failed(); n > 0 {
		return fmt.Errorf("%w: %d of %d", ErrWindowsFailed, n, len(r.Windows))
	}
	return nil
}

// Status maps the report to a run status.
func (r *Report) Status() models.RunStatus {
	if r.Failed() > 0 {
		return models.RunStatusFailed
	}
	return models.RunStatusCompleted
}
