package source

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jeromebarre/get-obs/internal/connectors"
	"github.com/jeromebarre/get-obs/internal/models"
)

// TROPOMI searches the Sentinel-5P catalogue from one hour before the window
// start to its end and downloads every product found.
func TROPOMI(cat Catalogue) *Adapter {
	a := &Adapter{
		Descriptor: Descriptor{
			Instrument: "TROPOMI",
			Products:   map[string]string{"S5P": "S5P"},
			Observables: map[string]string{
				"NO2": "L2__NO2___",
				"CO":  "L2__CO____",
			},
			Auth:      models.CredentialShared,
			Lead:      time.Hour,
			Tool:      "wget",
			Inputs:    "S5P_*.nc",
			Converter: "tropomi_no2_co_nc2ioda.py",
		},
		selectFn: selectSensing,
		columns:  tropomiColumns,
		args:     tropomiArgs,
	}
	a.enumerate = func(ctx context.Context, from, to time.Time, rc RunContext) ([]Request, error) {
		return tropomiRequests(ctx, cat, from, to, rc)
	}
	return a
}

func tropomiRequests(ctx context.Context, cat Catalogue, from, to time.Time, rc RunContext) ([]Request, error) {
	if cat == nil {
		return nil, fmt.Errorf("%w: no catalogue configured", models.ErrFetchFailure)
	}
	products, err := cat.Search(ctx, rc.Code, from, to)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrFetchFailure, err)
	}
	if len(products) == 0 {
		return nil, nil
	}

	reqs := make([]Request, 0, len(products))
	for _, p := range products {
		p := p
		u := cat.DownloadURL(p)
		reqs = append(reqs, Request{
			Label: p.Name,
			Tool:  "wget",
			Name:  p.Name,
			Command: func(dest string) connectors.Command {
				return connectors.Command{
					Name: "wget",
					Args: []string{"-nv", "-O", filepath.Join(dest, p.Name), u},
				}
			},
			Token: cat.Token,
		})
	}
	return reqs, nil
}

func tropomiColumns(observable string) []string {
	if observable == "NO2" {
		return []string{"total", "tropo"}
	}
	return []string{"total"}
}

func tropomiArgs(in ConvertInput) []string {
	args := append([]string{"-i"}, in.Files...)
	return append(args,
		"-o", in.Output,
		"-v", strings.ToLower(in.Observable),
		"-c", in.Column,
		"-q", strconv.FormatFloat(in.QC, 'f', -1, 64),
		"-n", strconv.FormatFloat(in.Thinning, 'f', -1, 64),
	)
}

var sensingPattern = regexp.MustCompile(`_(\d{8}T\d{6})_(\d{8}T\d{6})_`)

// selectSensing keeps files whose sensing interval overlaps [from, to).
// Files without a recognizable sensing interval are kept.
func selectSensing(files []string, from, to time.Time) []string {
	const layout = "20060102T150405"
	var out []string
	for _, f := range files {
		m := sensingPattern.FindStringSubmatch(filepath.Base(f))
		if m == nil {
			out = append(out, f)
			continue
		}
		start, err1 := time.Parse(layout, m[1])
		end, err2 := time.Parse(layout, m[2])
		if err1 != nil || err2 != nil {
			out = append(out, f)
			continue
		}
		if start.Before(to) && !end.Before(from) {
			out = append(out, f)
		}
	}
	return out
}
