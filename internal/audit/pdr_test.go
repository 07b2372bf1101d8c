package audit

import (
	"path/filepath"
	"testing"

	"github.com/jeromebarre/get-obs/internal/store"
)

func TestHashInputsStable(t *testing.T) {
	a := HashInputs(map[string]int{"window": 1})
	b := HashInputs(map[string]int{"window": 1})
	c := HashInputs(map[string]int{"window": 2})

	if a != b {
		t.Error("equal inputs should hash equally")
	}
	if a == c {
		t.Error("different inputs should hash differently")
	}
	if len(a) != 64 {
		t.Errorf("expected hex sha256, got %q", a)
	}
	if HashInputs(func() {}) != "hash_error" {
		t.Error("unmarshalable inputs should report hash_error")
	}
}

func TestRecord(t *testing.T) {
	s, err := store.New(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer s.Close()

	w := NewPDRWriter(s, "run-1")
	entry, err := w.Record(ActionWindowPrepare, map[string]int{"window": 0}, OutcomeSuccess, "window 0")
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if entry.RunID != "run-1" || entry.InputsHash == "" {
		t.Errorf("unexpected entry: %+v", entry)
	}

	w.Note(ActionWindowConvert, nil, OutcomeFailure, "exit 1")

	entries, err := s.ListPDR("run-1")
	if err != nil {
		t.Fatalf("ListPDR failed: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("Expected 2 records, got %d", len(entries))
	}
}

func TestNilWriterRecordsNothing(t *testing.T) {
	var w *PDRWriter
	entry, err := w.Record(ActionRunStart, nil, OutcomeSuccess, "")
	if entry != nil || err != nil {
		t.Errorf("nil writer should be a no-op, got %v, %v", entry, err)
	}
	w.Note(ActionRunStart, nil, OutcomeSuccess, "")

	empty := NewPDRWriter(nil, "run")
	if entry, _ := empty.Record(ActionRunStart, nil, OutcomeSuccess, ""); entry != nil {
		t.Error("writer without store should be a no-op")
	}
}
