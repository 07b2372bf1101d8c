// Package driver runs a configured retrieval: it walks the assimilation
// windows in order and, for each one, prepares the workspace, fetches the
// raw files, extracts bundles, converts to IODA and optionally publishes.
package driver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jeromebarre/get-obs/internal/audit"
	"github.com/jeromebarre/get-obs/internal/config"
	"github.com/jeromebarre/get-obs/internal/connectors"
	"github.com/jeromebarre/get-obs/internal/credential"
	"github.com/jeromebarre/get-obs/internal/models"
	"github.com/jeromebarre/get-obs/internal/objectstore"
	"github.com/jeromebarre/get-obs/internal/scheduler"
	"github.com/jeromebarre/get-obs/internal/source"
	"github.com/jeromebarre/get-obs/internal/store"
	"github.com/jeromebarre/get-obs/internal/window"
	"github.com/jeromebarre/get-obs/internal/workspace"
)

// Publisher stores window artifacts somewhere durable.
type Publisher interface {
	Upload(ctx context.Context, file string) (string, error)
}

// Options are the collaborators of a Driver. Only Connector is required.
type Options struct {
	Connector connectors.Connector
	// Prompter answers credential prompts; defaults to GETOBS_* environment variables.
	Prompter credential.Prompter
	// Catalogue overrides the TROPOMI catalogue built from the config.
	Catalogue source.Catalogue
	// Mirror overrides the TEMPO object-store mirror built from the config.
	Mirror source.Mirror
	// Publisher overrides the publish target built from the config.
	Publisher Publisher
	// Store is the run ledger; nil disables recording.
	Store *store.Store
	// DryRun prints the commands of every window to Out instead of running them.
	DryRun bool
	Out    io.Writer
}

// Driver executes one run.
type Driver struct {
	cfg       *config.RunConfig
	opts      Options
	conn      *recorder
	pool      *scheduler.Pool
	creds     *credential.Cache
	publisher Publisher
	pdr       *audit.PDRWriter
}

// New creates a Driver for cfg.
func New(cfg *config.RunConfig, opts Options) (*Driver, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: no configuration", models.ErrInvalidConfiguration)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts.Connector == nil {
		return nil, ErrNoConnector
	}
	if opts.Prompter == nil {
		opts.Prompter = credential.Env{}
	}
	if opts.Out == nil {
		opts.Out = io.Discard
	}
	if opts.DryRun {
		opts.Store = nil
	}

	d := &Driver{
		cfg:       cfg,
		opts:      opts,
		conn:      newRecorder(opts.Connector, opts.Store, ""),
		pool:      scheduler.New(&scheduler.Config{GlobalMax: cfg.FetchConcurrency, ByConnector: cfg.FetchLimits}),
		creds:     credential.NewCache(opts.Prompter),
		publisher: opts.Publisher,
	}

	if d.publisher == nil && cfg.Publish.Enabled() && !opts.DryRun {
		client, err := objectstore.New(cfg.Publish)
		if err != nil {
			return nil, fmt.Errorf("%w: publish: %v", models.ErrInvalidConfiguration, err)
		}
		d.publisher = client
	}
	return d, nil
}

// Run processes every window in order. Configuration, credential and
// workspace errors stop the run; fetch and conversion errors are recorded
// on the window and the run continues. The report is returned whenever the
// run started, including on fatal errors.
func (d *Driver) Run(ctx context.Context) (*Report, error) {
	cfg := d.cfg

	mirror, err := d.mirror()
	if err != nil {
		return nil, err
	}
	adapter, err := source.Lookup(cfg.Instrument, source.Deps{
		Catalogue: d.catalogue(),
		Tempo:     source.TEMPOSource{Path: cfg.TempoMirror.Path, Store: mirror, Exec: d.conn},
	})
	if err != nil {
		return nil, err
	}

	rc, err := adapter.Resolve(source.RunContext{
		Platform:   cfg.Platform,
		Observable: cfg.Observable,
		BinDir:     cfg.BinDir(),
		OutputDir:  cfg.OutputDir,
		Env:        cfg.ConverterEnv(),
		Thinning:   cfg.Thinning,
		QC:         cfg.QCThreshold,
	})
	if err != nil {
		return nil, err
	}

	windows, err := window.Generate(cfg.Start, cfg.End, cfg.Window)
	if err != nil {
		return nil, err
	}

	report := &Report{
		Instrument: adapter.Instrument,
		Platform:   rc.Platform,
		Observable: rc.Observable,
		DryRun:     d.opts.DryRun,
	}
	if err := d.begin(report); err != nil {
		return nil, err
	}

	cred, err := d.credential(ctx, adapter)
	if err != nil {
		d.finish(report, models.RunStatusFailed)
		return report, err
	}
	rc.Credential = cred.Value

	if err := d.ensureBucket(ctx); err != nil {
		d.finish(report, models.RunStatusFailed)
		return report, err
	}

	ws := workspace.New(cfg.WorkDir, cfg.Platform, cfg.Instrument, cfg.Observable, cfg.OutputDir, cfg.Clean)
	slog.Info("starting run",
		"run", report.RunID,
		"instrument", adapter.Instrument,
		"platform", rc.Platform,
		"observable", rc.Observable,
		"windows", len(windows),
		"workspace", ws.Dir(),
	)

	for _, w := range windows {
		if err := ctx.Err(); err != nil {
			if cfg.Clean && !d.opts.DryRun {
				if cerr := ws.Cleanup(); cerr != nil {
					slog.Warn("cleanup after abort", "error", cerr)
				}
			}
			d.finish(report, models.RunStatusAborted)
			return report, fmt.Errorf("%w: %v", ErrRunAborted, err)
		}

		if d.opts.DryRun {
			report.Windows = append(report.Windows, d.plan(ctx, ws, adapter, rc, w))
			continue
		}

		res, err := d.processWindow(ctx, ws, adapter, rc, w)
		report.Windows = append(report.Windows, res)
		d.recordWindow(&res)
		if err != nil {
			d.finish(report, models.RunStatusFailed)
			return report, err
		}
	}

	if !d.opts.DryRun {
		if err := ws.Prepare(true); err != nil {
			d.pdr.Note(audit.ActionTerminal, ws.Dir(), audit.OutcomeFailure, err.Error())
			d.finish(report, models.RunStatusFailed)
			return report, err
		}
		d.pdr.Note(audit.ActionTerminal, ws.Dir(), audit.OutcomeSuccess, "")
	}

	d.finish(report, report.Status())
	slog.Info("run finished", "run", report.RunID, "windows", len(report.Windows), "failed", report.Failed())
	return report, nil
}

func (d *Driver) begin(report *Report) error {
	if d.opts.Store != nil {
		run, err := d.opts.Store.CreateRun(report.Instrument, report.Platform, report.Observable, d.cfg.Start, d.cfg.End)
		if err != nil {
			return err
		}
		report.RunID = run.ID
	} else {
		report.RunID = uuid.New().String()
	}

	d.conn.runID = report.RunID
	d.pdr = audit.NewPDRWriter(d.opts.Store, report.RunID)
	d.pdr.Note(audit.ActionRunStart, map[string]interface{}{
		"instrument": report.Instrument,
		"platform":   report.Platform,
		"observable": report.Observable,
		"start":      d.cfg.Start,
		"end":        d.cfg.End,
		"window":     d.cfg.Window.String(),
	}, audit.OutcomeSuccess, "")
	return nil
}

func (d *Driver) finish(report *Report, status models.RunStatus) {
	d.pdr.Note(audit.ActionRunFinish, map[string]int{
		"windows": len(report.Windows),
		"failed":  report.Failed(),
	}, string(status), "")
	if d.opts.Store == nil {
		return
	}
	if err := d.opts.Store.FinishRun(report.RunID, status, len(report.Windows), report.Failed()); err != nil {
		slog.Warn("record run outcome", "run", report.RunID, "error", err)
	}
}

func (d *Driver) recordWindow(res *models.WindowResult) {
	if d.opts.Store == nil {
		return
	}
	if err := d.opts.Store.RecordWindow(res); err != nil {
		slog.Warn("record window", "window", res.Window.Index, "error", err)
	}
}

func (d *Driver) catalogue() source.Catalogue {
	if d.opts.Catalogue != nil {
		return d.opts.Catalogue
	}
	t := d.cfg.Tropomi
	return source.NewODataCatalogue(source.CatalogueConfig{
		SearchURL:   t.CatalogueURL,
		DownloadURL: t.DownloadURL,
		TokenURL:    t.TokenURL,
		ClientID:    t.ClientID,
		User:        t.User,
		Password:    t.Password,
	})
}

func (d *Driver) mirror() (source.Mirror, error) {
	if d.opts.Mirror != nil {
		return d.opts.Mirror, nil
	}
	if !d.cfg.TempoMirror.Enabled() {
		return nil, nil
	}
	client, err := objectstore.New(d.cfg.TempoMirror.Config)
	if err != nil {
		return nil, fmt.Errorf("%w: tempo mirror: %v", models.ErrInvalidConfiguration, err)
	}
	return client, nil
}

// credential obtains the adapter's secret once per run. Shared accounts are
// handled by the catalogue and need nothing from the operator.
func (d *Driver) credential(ctx context.Context, a *source.Adapter) (models.Credential, error) {
	cred := models.Credential{Kind: a.Auth}
	switch a.Auth {
	case models.CredentialBearerToken, models.CredentialOrderNumber:
	default:
		return cred, nil
	}

	cred.Path = filepath.Join(d.cfg.CredentialsDir, a.CredentialFile)
	req := credential.Request{
		Text:   a.CredentialPrompt,
		Key:    credential.KeyFor(cred.Path),
		Secret: a.Auth == models.CredentialBearerToken,
	}

	if d.opts.DryRun {
		cred.Value = "<" + req.Key + ">"
		if data, err := os.ReadFile(cred.Path); err == nil {
			cred.Value = string(data)
		}
		return cred, nil
	}

	value, err := d.creds.Obtain(ctx, req, cred.Path, d.cfg.Cache)
	if err != nil {
		d.pdr.Note(audit.ActionCredential, req.Key, audit.OutcomeFailure, err.Error())
		return cred, err
	}
	d.pdr.Note(audit.ActionCredential, req.Key, audit.OutcomeSuccess, string(cred.Kind))
	cred.Value = value
	return cred, nil
}

// ensureBucket creates the publish bucket up front when the publisher supports it.
func (d *Driver) ensureBucket(ctx context.Context) error {
	b, ok := d.publisher.(interface{ EnsureBucket(context.Context) error })
	if !ok {
		return nil
	}
	if err := b.EnsureBucket(ctx); err != nil {
		return fmt.Errorf("%w: publish bucket: %v", models.ErrInvalidConfiguration, err)
	}
	return nil
}

// processWindow runs prepare, fetch, extract, convert and publish for w.
// A returned error is fatal for the run.
func (d *Driver) processWindow(ctx context.Context, ws *workspace.Manager, a *source.Adapter, rc source.RunContext, w models.Window) (models.WindowResult, error) {
	res := models.WindowResult{RunID: d.conn.runID, Window: w, Status: models.WindowStatusOK}
	log := slog.With("window", w.Index, "center", w.Stamp())

	if err := ws.Prepare(false); err != nil {
		d.pdr.Note(audit.ActionWindowPrepare, w, audit.OutcomeFailure, err.Error())
		res.Errors = append(res.Errors, err.Error())
		res.Status = models.WindowStatusFailed
		return res, err
	}
	d.pdr.Note(audit.ActionWindowPrepare, w, audit.OutcomeSuccess, ws.Dir())

	if err := d.fetch(ctx, ws, a, rc, w, &res); err != nil {
		res.Status = models.WindowStatusFailed
		return res, err
	}

	if a.Bundled() {
		if err := d.extract(ctx, ws, a, w, &res); err != nil {
			res.Status = models.WindowStatusFailed
			return res, err
		}
	}

	files, err := ws.Files(a.Inputs)
	if err != nil {
		res.Status = models.WindowStatusFailed
		return res, err
	}
	inputs := a.Select(files, w)
	log.Info("converting", "inputs", len(inputs))

	expected := d.convert(ctx, a, rc, w, inputs, &res)
	d.publish(ctx, w, &res)

	res.Status = windowStatus(&res, expected)
	if res.Status != models.WindowStatusOK {
		log.Warn("window finished with errors", "status", res.Status, "errors", len(res.Errors))
	}
	return res, nil
}

func windowStatus(res *models.WindowResult, expected int) models.WindowStatus {
	switch {
	case len(res.Errors) == 0:
		return models.WindowStatusOK
	case expected > 0 && len(res.Outputs) == expected:
		return models.WindowStatusPartial
	default:
		return models.WindowStatusFailed
	}
}

// fetch runs every request of the window on the pool. Each request works in
// its own arena, merged into the workspace as soon as the request succeeds
// and discarded when it fails.
func (d *Driver) fetch(ctx context.Context, ws *workspace.Manager, a *source.Adapter, rc source.RunContext, w models.Window, res *models.WindowResult) error {
	fctx := withStep(ctx, w.Index, PhaseFetch)

	reqs, err := a.Requests(fctx, w, rc)
	if err != nil {
		res.FetchFailures++
		res.Errors = append(res.Errors, err.Error())
		d.pdr.Note(audit.ActionWindowFetch, w, audit.OutcomeFailure, err.Error())
		return nil
	}
	res.Requests = len(reqs)
	if len(reqs) == 0 {
		err := fmt.Errorf("%w: nothing to retrieve for window %s", models.ErrFetchFailure, w.Stamp())
		res.FetchFailures++
		res.Errors = append(res.Errors, err.Error())
		d.pdr.Note(audit.ActionWindowFetch, w, audit.OutcomeFailure, err.Error())
		return nil
	}

	jobs := make([]scheduler.Job, len(reqs))
	for i, req := range reqs {
		req := req
		jobs[i] = scheduler.Job{
			Connector: req.Tool,
			Label:     req.Label,
			Run: func(ctx context.Context) error {
				return d.fetchOne(ctx, ws, req)
			},
		}
	}

	errs := d.pool.Run(fctx, jobs)
	slog.Debug("fetch pool", "window", w.Index, "stats", d.pool.GetStats())
	var fatal error
	for i, err := range errs {
		switch {
		case err == nil:
		case errors.Is(err, models.ErrWorkspace):
			if fatal == nil {
				fatal = err
			}
		default:
			res.FetchFailures++
			res.Errors = append(res.Errors, fmt.Sprintf("fetch %s: %v", reqs[i].Label, err))
		}
	}
	if fatal != nil {
		return fatal
	}

	outcome := audit.OutcomeSuccess
	if res.FetchFailures > 0 {
		outcome = audit.OutcomeFailure
	}
	d.pdr.Note(audit.ActionWindowFetch, w, outcome,
		fmt.Sprintf("%d of %d requests failed", res.FetchFailures, len(reqs)))
	return nil
}

func (d *Driver) fetchOne(ctx context.Context, ws *workspace.Manager, req source.Request) error {
	if req.Name != "" && ws.Has(req.Name) {
		slog.Debug("already retrieved", "file", req.Name)
		return nil
	}

	arena, err := ws.NewArena()
	if err != nil {
		return err
	}
	if err := d.runRequest(ctx, req, arena); err != nil {
		if derr := ws.Discard(arena); derr != nil {
			slog.Warn("failed to discard arena", "arena", arena, "error", derr)
		}
		return err
	}
	return ws.Merge(arena)
}

func (d *Driver) runRequest(ctx context.Context, req source.Request, dest string) error {
	if req.Fetch != nil {
		return req.Fetch(ctx, dest)
	}

	cmd, err := req.Build(ctx, dest)
	if err != nil {
		return err
	}
	out, err := d.conn.Execute(ctx, cmd)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrFetchFailure, err)
	}
	if !out.Success() {
		return fmt.Errorf("%w: %s exited %d: %s", models.ErrFetchFailure, cmd.Name, out.ExitCode, lastLine(out.Stderr))
	}

	entries, err := os.ReadDir(dest)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrFetchFailure, err)
	}
	if len(entries) == 0 {
		return fmt.Errorf("%w: no files retrieved", models.ErrFetchFailure)
	}
	return nil
}

// extract unpacks every bundle of the window with a single tar invocation.
func (d *Driver) extract(ctx context.Context, ws *workspace.Manager, a *source.Adapter, w models.Window, res *models.WindowResult) error {
	bundles, err := ws.Files(a.Bundle)
	if err != nil {
		return err
	}
	if len(bundles) == 0 {
		res.Errors = append(res.Errors, fmt.Sprintf("%v: no %s bundles to extract", models.ErrFetchFailure, a.Bundle))
		return nil
	}

	cmd, closer, err := a.Extraction(bundles, ws.Dir())
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrWorkspace, err)
	}
	defer closer.Close()

	out, err := d.conn.Execute(withStep(ctx, w.Index, PhaseExtract), cmd)
	switch {
	case err != nil:
		res.Errors = append(res.Errors, fmt.Sprintf("%v: extract: %v", models.ErrFetchFailure, err))
	case !out.Success():
		res.Errors = append(res.Errors, fmt.Sprintf("%v: tar exited %d: %s", models.ErrFetchFailure, out.ExitCode, lastLine(out.Stderr)))
	}
	return nil
}

// convert invokes the converter once per output and returns how many outputs were expected.
func (d *Driver) convert(ctx context.Context, a *source.Adapter, rc source.RunContext, w models.Window, inputs []string, res *models.WindowResult) int {
	cctx := withStep(ctx, w.Index, PhaseConvert)
	convs := a.Conversions(w, inputs, rc)

	for _, c := range convs {
		if err := d.runConversion(cctx, c); err != nil {
			res.Errors = append(res.Errors, err.Error())
			d.pdr.Note(audit.ActionWindowConvert, c.Command.Args, audit.OutcomeFailure, err.Error())
			continue
		}
		res.Outputs = append(res.Outputs, c.Output)
		d.pdr.Note(audit.ActionWindowConvert, c.Command.Args, audit.OutcomeSuccess, c.Output)
	}
	return len(convs)
}

func (d *Driver) runConversion(ctx context.Context, c source.Conversion) error {
	name := filepath.Base(c.Command.Name)

	// A stale artifact from an earlier run must not pass for this one.
	if err := os.Remove(c.Output); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %s: remove stale output: %v", models.ErrConversionFailure, name, err)
	}

	out, err := d.conn.Execute(ctx, c.Command)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", models.ErrConversionFailure, name, err)
	}
	if !out.Success() {
		return fmt.Errorf("%w: %s exited %d: %s", models.ErrConversionFailure, name, out.ExitCode, lastLine(out.Stderr))
	}
	if _, err := os.Stat(c.Output); err != nil {
		return fmt.Errorf("%w: %s did not produce %s", models.ErrConversionFailure, name, c.Output)
	}
	return nil
}

func (d *Driver) publish(ctx context.Context, w models.Window, res *models.WindowResult) {
	if d.publisher == nil {
		return
	}
	for _, out := range res.Outputs {
		key, err := d.publisher.Upload(ctx, out)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("publish %s: %v", filepath.Base(out), err))
			d.pdr.Note(audit.ActionWindowPublish, out, audit.OutcomeFailure, err.Error())
			continue
		}
		slog.Info("published", "window", w.Index, "file", out, "key", key)
		d.pdr.Note(audit.ActionWindowPublish, out, audit.OutcomeSuccess, key)
	}
}

// plan prints what processWindow would run for w without touching the filesystem.
func (d *Driver) plan(ctx context.Context, ws *workspace.Manager, a *source.Adapter, rc source.RunContext, w models.Window) models.WindowResult {
	out := d.opts.Out
	res := models.WindowResult{RunID: d.conn.runID, Window: w, Status: models.WindowStatusOK}

	fmt.Fprintf(out, "window %d  %s .. %s  center %s\n",
		w.Index, w.Start.Format(time.RFC3339), w.End.Format(time.RFC3339), w.Stamp())

	reqs, err := a.Requests(ctx, w, rc)
	if err != nil {
		res.Errors = append(res.Errors, err.Error())
		res.Status = models.WindowStatusFailed
		fmt.Fprintf(out, "  %-8s %v\n", "error", err)
	}
	res.Requests = len(reqs)
	for _, r := range reqs {
		fmt.Fprintf(out, "  %-8s %s\n", PhaseFetch, r.Describe(ws.Dir()))
	}

	if a.Bundled() {
		fmt.Fprintf(out, "  %-8s %s < %s\n", PhaseExtract, a.ExtractionPlan(ws.Dir()), filepath.Join(ws.Dir(), a.Bundle))
	}

	for _, c := range a.Conversions(w, []string{filepath.Join(ws.Dir(), a.Inputs)}, rc) {
		fmt.Fprintf(out, "  %-8s %s\n", PhaseConvert, c.Command.Redacted())
		res.Outputs = append(res.Outputs, c.Output)
	}
	return res
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
