package driver

import (
	"context"
	"log/slog"
	"time"

	"github.com/jeromebarre/get-obs/internal/connectors"
	"github.com/jeromebarre/get-obs/internal/models"
	"github.com/jeromebarre/get-obs/internal/store"
)

// Phases of a window.
const (
	PhaseFetch   = "fetch"
	PhaseExtract = "extract"
	PhaseConvert = "convert"
)

type stepKey struct{}

type step struct {
	window int
	phase  string
}

func withStep(ctx context.Context, window int, phase string) context.Context {
	return context.WithValue(ctx, stepKey{}, step{window: window, phase: phase})
}

func stepFrom(ctx context.Context) step {
	if s, ok := ctx.Value(stepKey{}).(step); ok {
		return s
	}
	return step{window: -1}
}

// recorder wraps a connector and writes every invocation to the ledger.
type recorder struct {
	connectors.Connector
	store *store.Store
	runID string
}

func newRecorder(conn connectors.Connector, s *store.Store, runID string) *recorder {
	return &recorder{Connector: conn, store: s, runID: runID}
}

// Execute implements connectors.Connector.
func (r *recorder) Execute(ctx context.Context, cmd connectors.Command) (*connectors.ExecResult, error) {
	started := time.Now().UTC()
	res, err := r.Connector.Execute(ctx, cmd)
	if r.store == nil {
		return res, err
	}

	st := stepFrom(ctx)
	shown := cmd.Redacted()
	rec := &models.Exec{
		RunID:     r.runID,
		Window:    st.window,
		Phase:     st.phase,
		Command:   shown.Name,
		Args:      shown.Args,
		StartedAt: started,
		EndedAt:   time.Now().UTC(),
	}
	if err != nil {
		rec.ExitCode = -1
		rec.Stderr = err.Error()
	} else if res != nil {
		rec.ExitCode = res.ExitCode
		rec.Stderr = res.Stderr
	}
	if recErr := r.store.RecordExec(rec); recErr != nil {
		slog.Warn("record exec", "command", cmd.Name, "error", recErr)
	}
	return res, err
}
