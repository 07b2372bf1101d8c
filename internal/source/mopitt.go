package source

import (
	"time"

	"github.com/jeromebarre/get-obs/internal/connectors"
	"github.com/jeromebarre/get-obs/internal/models"
)

// ASDCMopittURL is the MOPITT level 2 joint retrieval archive root.
const ASDCMopittURL = "https://asdc.larc.nasa.gov/data/MOPITT/"

// MOPITT retrieves daily MOPITT CO files covering the days the window touches.
func MOPITT() *Adapter {
	return &Adapter{
		Descriptor: Descriptor{
			Instrument:       "MOPITT",
			Products:         map[string]string{"Terra": "MOP02J.009"},
			Observables:      map[string]string{"CO": "MOP02J"},
			Auth:             models.CredentialBearerToken,
			CredentialFile:   "earthdata_token",
			CredentialPrompt: "Enter Earthdata login token from https://urs.earthdata.nasa.gov/:",
			Cadence:          24 * time.Hour,
			DayAligned:       true,
			Tool:             "wget",
			Inputs:           "*.he5",
			Converter:        "mopitt_co_nc2ioda.py",
		},
		target:  mopittTarget,
		command: mopittCommand,
		args:    mopittArgs,
	}
}

func mopittTarget(at time.Time, rc RunContext) Target {
	at = at.UTC()
	return Target{
		Label:    rc.Code + " " + at.Format("2006-01-02"),
		URL:      ASDCMopittURL + rc.Product + "/" + at.Format("2006.01.02") + "/",
		Patterns: []string{rc.Code + "-" + at.Format("20060102") + "-L2V*.he5"},
	}
}

func mopittCommand(t Target, rc RunContext, dest string) connectors.Command {
	return connectors.Command{
		Name: "wget",
		Args: []string{
			"-r", "-nc", "-nd", "-np", "-nv",
			"-A", t.Patterns[0],
			"--header", bearer(rc.Credential),
			t.URL,
			"-P", dest,
		},
	}
}

func mopittArgs(in ConvertInput) []string {
	args := append([]string{"-i"}, in.Files...)
	return append(args, "-o", in.Output, "-r", ymdh(in.Window.Start), ymdh(in.Window.End))
}
