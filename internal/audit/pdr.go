// Package audit records Process Decision Records for getobs runs.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"

	"github.com/jeromebarre/get-obs/internal/models"
	"github.com/jeromebarre/get-obs/internal/store"
)

// Decision actions.
const (
	ActionRunStart      = "run.start"
	ActionRunFinish     = "run.finish"
	ActionCredential    = "credential.obtain"
	ActionWindowPrepare = "window.prepare"
	ActionWindowFetch   = "window.fetch"
	ActionWindowConvert = "window.convert"
	ActionWindowPublish = "window.publish"
	ActionTerminal      = "workspace.terminal"
)

// Outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeSkipped = "skipped"
)

// PDRWriter writes Process Decision Records for audit trails.
// A nil writer, or one without a store, records nothing.
type PDRWriter struct {
	store *store.Store
	runID string
}

// NewPDRWriter creates a new PDR writer bound to a run.
func NewPDRWriter(s *store.Store, runID string) *PDRWriter {
	return &PDRWriter{store: s, runID: runID}
}

// Record writes a PDR entry for a decision taken during the run.
func (w *PDRWriter) Record(action string, inputs interface{}, outcome, details string) (*models.PDREntry, error) {
	if w == nil || w.store == nil {
		return nil, nil
	}
	return w.store.WritePDR(action, HashInputs(inputs), outcome, w.runID, details)
}

// Note records a decision and logs, rather than returns, a ledger failure.
func (w *PDRWriter) Note(action string, inputs interface{}, outcome, details string) {
	if _, err := w.Record(action, inputs, outcome, details); err != nil {
		slog.Warn("write decision record", "action", action, "error", err)
	}
}

// HashInputs creates a SHA256 hash of the inputs for reproducibility.
func HashInputs(inputs interface{}) string {
	data, err := json.Marshal(inputs)
	if err != nil {
		return "hash_error"
	}
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}
