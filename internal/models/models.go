// Package models defines the core domain types for getobs.
package models

import "time"

// TimestampLayout is the hour-truncated stamp used in artifact names and converter arguments.
const TimestampLayout = "2006010215"

// Window is one assimilation window.
type Window struct {
	Index  int       `json:"index"`
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	Center time.Time `json:"center"`
}

// Length returns the window duration.
func (w Window) Length() time.Duration {
	return w.End.Sub(w.Start)
}

// Stamp returns the center timestamp truncated to the hour.
func (w Window) Stamp() string {
	return w.Center.UTC().Format(TimestampLayout)
}

// CredentialKind identifies how an archive authenticates.
type CredentialKind string

const (
	CredentialNone        CredentialKind = "none"
	CredentialOrderNumber CredentialKind = "order-number"
	CredentialBearerToken CredentialKind = "bearer-token"
	CredentialShared      CredentialKind = "shared"
)

// Credential is an operator-supplied secret and where it is cached.
type Credential struct {
	Kind  CredentialKind `json:"kind"`
	Value string         `json:"-"`
	Path  string         `json:"path,omitempty"`
}

// RunStatus represents the outcome of a run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusAborted   RunStatus = "aborted"
)

// WindowStatus represents the outcome of one window.
type WindowStatus string

const (
	WindowStatusOK      WindowStatus = "ok"
	WindowStatusPartial WindowStatus = "partial"
	WindowStatusFailed  WindowStatus = "failed"
)

// Run is a single invocation over a configured time span.
type Run struct {
	ID         string    `json:"id"`
	Instrument string    `json:"instrument"`
	Platform   string    `json:"platform"`
	Observable string    `json:"observable"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	Status     RunStatus `json:"status"`
	Windows    int       `json:"windows"`
	Failed     int       `json:"failed"`
	StartedAt  time.Time `json:"started_at"`
	EndedAt    time.Time `json:"ended_at"`
}

// WindowResult records what happened for one window.
type WindowResult struct {
	ID            string       `json:"id"`
	RunID         string       `json:"run_id"`
	Window        Window       `json:"window"`
	Requests      int          `json:"requests"`
	FetchFailures int          `json:"fetch_failures"`
	Outputs       []string     `json:"outputs"`
	Errors        []string     `json:"errors,omitempty"`
	Status        WindowStatus `json:"status"`
}

// Exec represents one external process invocation.
type Exec struct {
	ID        string    `json:"id"`
	RunID     string    `json:"run_id"`
	Window    int       `json:"window"`
	Phase     string    `json:"phase"`
	Command   string    `json:"command"`
	Args      []string  `json:"args"`
	ExitCode  int       `json:"exit_code"`
	Stderr    string    `json:"stderr"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
}

// PDREntry represents a Process Decision Record for audit.
type PDREntry struct {
	ID         string    `json:"id"`
	Action     string    `json:"action"`
	InputsHash string    `json:"inputs_hash"`
	Outcome    string    `json:"outcome"`
	RunID      string    `json:"run_id,omitempty"`
	Details    string    `json:"details,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}
