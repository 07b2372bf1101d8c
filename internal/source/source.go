// Package source maps assimilation windows to archive requests and converter invocations.
//
// Every instrument is described by a Descriptor plus a few template functions;
// the stepping, request building, file selection and converter wiring are shared.
package source

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jeromebarre/get-obs/internal/connectors"
	"github.com/jeromebarre/get-obs/internal/models"
)

// Descriptor is the per-instrument data.
type Descriptor struct {
	Instrument string
	// Products maps a platform to the archive product id.
	Products map[string]string
	// Observables lists the accepted observables and their archive code; nil accepts any.
	Observables map[string]string

	Auth             models.CredentialKind
	CredentialFile   string
	CredentialPrompt string

	// Cadence is the step through the query range.
	Cadence time.Duration
	// Lead and Lag extend the query range before the window start and after its end.
	Lead, Lag time.Duration
	// DayAligned snaps the query start to midnight UTC.
	DayAligned bool

	// Tool is the collaborator used for fetches, for pool limits.
	Tool string
	// Bundle is the glob of archives extracted before conversion; empty when not bundled.
	Bundle string
	// Inputs is the glob of converter inputs inside the workspace.
	Inputs string
	// Converter is the executable name inside the build bin directory.
	Converter string
}

// RunContext carries the run-level values adapters need.
type RunContext struct {
	Platform   string
	Observable string
	// Product and Code are resolved from the descriptor maps.
	Product    string
	Code       string
	Credential string
	BinDir     string
	OutputDir  string
	Env        []string
	Thinning   float64
	QC         float64
}

// Target is one remote location and the file patterns accepted there.
type Target struct {
	Label    string
	URL      string
	Patterns []string
	// Name is the local file name for single-file downloads.
	Name string
}

// Request is one retrieval. Exactly one of Command and Fetch is set.
type Request struct {
	Label string
	Tool  string
	// Name is the single file the request produces, when known.
	Name string
	// Command builds the process that downloads into dest.
	Command func(dest string) connectors.Command
	// Token supplies a bearer token added to Command when it is built to run.
	Token func(ctx context.Context) (string, error)
	// Fetch retrieves into dest directly.
	Fetch func(ctx context.Context, dest string) error
}

// Build returns the command to execute, obtaining the bearer token first
// when the request needs one.
func (r Request) Build(ctx context.Context, dest string) (connectors.Command, error) {
	cmd := r.Command(dest)
	if r.Token == nil {
		return cmd, nil
	}
	token, err := r.Token(ctx)
	if err != nil {
		return connectors.Command{}, fmt.Errorf("%w: %v", models.ErrFetchFailure, err)
	}
	return withHeader(cmd, bearer(token)), nil
}

// Describe renders the request for dry runs. Tokens are never obtained.
func (r Request) Describe(dest string) string {
	if r.Command == nil {
		return r.Tool + " " + r.Label + " -> " + dest
	}
	cmd := r.Command(dest)
	if r.Token != nil {
		cmd = withHeader(cmd, bearer(""))
	}
	return cmd.Redacted().String()
}

func withHeader(cmd connectors.Command, header string) connectors.Command {
	cmd.Args = append([]string{"--header", header}, cmd.Args...)
	return cmd
}

// ConvertInput is everything a converter argument builder sees.
type ConvertInput struct {
	Window models.Window
	Files  []string
	Output string
	Column string
	RunContext
}

// Conversion is one converter invocation and the artifact it must produce.
type Conversion struct {
	Output  string
	Command connectors.Command
}

// Adapter is the strategy for one instrument family.
type Adapter struct {
	Descriptor

	target    func(at time.Time, rc RunContext) Target
	command   func(t Target, rc RunContext, dest string) connectors.Command
	enumerate func(ctx context.Context, from, to time.Time, rc RunContext) ([]Request, error)
	selectFn  func(files []string, from, to time.Time) []string
	columns   func(observable string) []string
	args      func(in ConvertInput) []string
}

// Resolve validates platform and observable and fills the product codes.
func (a *Adapter) Resolve(rc RunContext) (RunContext, error) {
	if a.Products != nil {
		p, ok := a.Products[rc.Platform]
		if !ok {
			return rc, fmt.Errorf("%w: platform %q not supported by %s (want one of %s)",
				models.ErrInvalidConfiguration, rc.Platform, a.Instrument, keys(a.Products))
		}
		rc.Product = p
	}
	if a.Observables != nil {
		c, ok := a.Observables[strings.ToUpper(rc.Observable)]
		if !ok {
			return rc, fmt.Errorf("%w: observable %q not supported by %s (want one of %s)",
				models.ErrInvalidConfiguration, rc.Observable, a.Instrument, keys(a.Observables))
		}
		rc.Code = c
	}
	return rc, nil
}

// QueryRange returns the retrieval range for a window.
func (a *Adapter) QueryRange(w models.Window) (time.Time, time.Time) {
	from := w.Start.Add(-a.Lead)
	if a.DayAligned {
		from = time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, from.Location())
	}
	return from, w.End.Add(a.Lag)
}

// Steps returns the step times through the query range.
func (a *Adapter) Steps(w models.Window) []time.Time {
	from, to := a.QueryRange(w)
	if a.Cadence <= 0 {
		return nil
	}
	var steps []time.Time
	for t := from; t.Before(to); t = t.Add(a.Cadence) {
		steps = append(steps, t)
	}
	return steps
}

// Requests returns the retrievals for a window.
func (a *Adapter) Requests(ctx context.Context, w models.Window, rc RunContext) ([]Request, error) {
	if a.enumerate != nil {
		from, to := a.QueryRange(w)
		return a.enumerate(ctx, from, to, rc)
	}

	steps := a.Steps(w)
	reqs := make([]Request, 0, len(steps))
	for _, at := range steps {
		t := a.target(at, rc)
		reqs = append(reqs, Request{
			Label: t.Label,
			Tool:  a.Tool,
			Command: func(dest string) connectors.Command {
				return a.command(t, rc, dest)
			},
		})
	}
	return reqs, nil
}

// Bundled reports whether downloads must be extracted before conversion.
func (a *Adapter) Bundled() bool {
	return a.Bundle != ""
}

// Extraction builds the single unpack step for all bundles of a window.
// The returned closer releases the bundle files fed on stdin.
func (a *Adapter) Extraction(bundles []string, dir string) (connectors.Command, io.Closer, error) {
	files := make(multiCloser, 0, len(bundles))
	readers := make([]io.Reader, 0, len(bundles))
	for _, b := range bundles {
		f, err := os.Open(b)
		if err != nil {
			files.Close()
			return connectors.Command{}, nil, fmt.Errorf("open bundle: %w", err)
		}
		files = append(files, f)
		readers = append(readers, f)
	}

	cmd := a.ExtractionPlan(dir)
	cmd.Stdin = io.MultiReader(readers...)
	return cmd, files, nil
}

// ExtractionPlan returns the unpack command without its input, for dry runs.
// -i skips the zero blocks between concatenated archives.
func (a *Adapter) ExtractionPlan(dir string) connectors.Command {
	return connectors.Command{
		Name: "tar",
		Args: []string{"-xvf", "-", "-i", "-C", dir + string(os.PathSeparator)},
	}
}

// Select narrows workspace files to the converter inputs for the window.
func (a *Adapter) Select(files []string, w models.Window) []string {
	if a.selectFn == nil {
		return files
	}
	from, to := a.QueryRange(w)
	return a.selectFn(files, from, to)
}

// Columns returns the output splits for an observable; nil means a single unsuffixed artifact.
func (a *Adapter) Columns(observable string) []string {
	if a.columns == nil {
		return nil
	}
	return a.columns(strings.ToUpper(observable))
}

// OutputName returns the artifact name for a window and optional column.
func (a *Adapter) OutputName(w models.Window, rc RunContext, column string) string {
	name := a.Instrument + "_" + rc.Platform + "_" + w.Stamp()
	if column != "" {
		name += "_" + rc.Observable + "_" + column
	}
	return name + ".nc"
}

// Conversions returns the converter invocations for a window, one per column.
func (a *Adapter) Conversions(w models.Window, files []string, rc RunContext) []Conversion {
	exe := filepath.Join(rc.BinDir, a.Converter)
	columns := a.Columns(rc.Observable)
	if columns == nil {
		columns = []string{""}
	}

	convs := make([]Conversion, 0, len(columns))
	for _, col := range columns {
		out := filepath.Join(rc.OutputDir, a.OutputName(w, rc, col))
		convs = append(convs, Conversion{
			Output: out,
			Command: connectors.Command{
				Name: exe,
				Args: a.args(ConvertInput{Window: w, Files: files, Output: out, Column: col, RunContext: rc}),
				Env:  rc.Env,
			},
		})
	}
	return convs
}

func bearer(token string) string {
	return "Authorization: Bearer " + strings.TrimSpace(token)
}

func ymdh(t time.Time) string {
	return t.UTC().Format(models.TimestampLayout)
}

func keys[V any](m map[string]V) string {
	ks := make([]string, 0, len(m))
	for k := range m {
		ks = append(ks, k)
	}
	sort.Strings(ks)
	return strings.Join(ks, ", ")
}

type multiCloser []io.Closer

func (m multiCloser) Close() error {
	var first error
	for _, c := range m {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
