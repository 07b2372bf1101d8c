package source

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/jeromebarre/get-obs/internal/connectors"
	"github.com/jeromebarre/get-obs/internal/models"
)

// Mirror is an object-store copy of an archive.
type Mirror interface {
	List(ctx context.Context, prefix, pattern string) ([]string, error)
	Download(ctx context.Context, key, dir string) (string, error)
}

// TEMPOSource says where TEMPO granules are mirrored.
type TEMPOSource struct {
	// Path is a filesystem mirror root laid out as YYYY/MM/DD.
	Path string
	// Store is used instead of Path when set.
	Store Mirror
	// Exec runs the copy for filesystem mirrors.
	Exec connectors.Connector
}

// TEMPO copies hourly TEMPO granules from an internal mirror.
func TEMPO(src TEMPOSource) *Adapter {
	a := &Adapter{
		Descriptor: Descriptor{
			Instrument: "TEMPO",
			Products:   map[string]string{"TEMPO": "L2"},
			Observables: map[string]string{
				"NO2":  "NO2",
				"HCHO": "HCHO",
				"O3":   "O3TOT",
			},
			Auth:      models.CredentialNone,
			Cadence:   time.Hour,
			Tool:      "cp",
			Inputs:    "TEMPO_*.nc",
			Converter: "tempo_nc2ioda.py",
		},
		args: tempoArgs,
	}
	a.enumerate = func(ctx context.Context, from, to time.Time, rc RunContext) ([]Request, error) {
		var reqs []Request
		for at := from; at.Before(to); at = at.Add(a.Cadence) {
			reqs = append(reqs, tempoRequest(src, tempoTarget(at, rc)))
		}
		return reqs, nil
	}
	return a
}

func tempoTarget(at time.Time, rc RunContext) Target {
	at = at.UTC()
	return Target{
		Label:    "TEMPO " + rc.Code + " " + ymdh(at),
		URL:      at.Format("2006/01/02"),
		Patterns: []string{"TEMPO_" + rc.Code + "_" + rc.Product + "_*_" + at.Format("20060102T15") + "*.nc"},
	}
}

func tempoRequest(src TEMPOSource, t Target) Request {
	if src.Store != nil {
		return Request{
			Label: t.Label,
			Tool:  "objectstore",
			Fetch: func(ctx context.Context, dest string) error {
				keys, err := src.Store.List(ctx, t.URL, t.Patterns[0])
				if err != nil {
					return fmt.Errorf("%w: %v", models.ErrFetchFailure, err)
				}
				if len(keys) == 0 {
					return fmt.Errorf("%w: no objects match %s/%s", models.ErrFetchFailure, t.URL, t.Patterns[0])
				}
				for _, k := range keys {
					if _, err := src.Store.Download(ctx, k, dest); err != nil {
						return fmt.Errorf("%w: %v", models.ErrFetchFailure, err)
					}
				}
				return nil
			},
		}
	}

	return Request{
		Label: t.Label,
		Tool:  "cp",
		Fetch: func(ctx context.Context, dest string) error {
			matches, err := filepath.Glob(filepath.Join(src.Path, filepath.FromSlash(t.URL), t.Patterns[0]))
			if err != nil {
				return fmt.Errorf("%w: %v", models.ErrFetchFailure, err)
			}
			if len(matches) == 0 {
				return fmt.Errorf("%w: no mirror files match %s", models.ErrFetchFailure, t.Patterns[0])
			}
			if src.Exec == nil {
				return fmt.Errorf("%w: no executor for mirror copy", models.ErrFetchFailure)
			}
			args := append([]string{"-n"}, matches...)
			res, err := src.Exec.Execute(ctx, connectors.Command{Name: "cp", Args: append(args, dest)})
			if err != nil {
				return fmt.Errorf("%w: %v", models.ErrFetchFailure, err)
			}
			if !res.Success() {
				return fmt.Errorf("%w: cp exited %d: %s", models.ErrFetchFailure, res.ExitCode, strings.TrimSpace(res.Stderr))
			}
			return nil
		},
	}
}

func tempoArgs(in ConvertInput) []string {
	args := append([]string{"-i"}, in.Files...)
	return append(args,
		"-o", in.Output,
		"-v", strings.ToLower(in.Observable),
		"-t", in.Window.Stamp(),
		"-q", strconv.FormatFloat(in.QC, 'f', -1, 64),
	)
}
