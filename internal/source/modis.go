package source

import (
	"fmt"
	"time"

	"github.com/jeromebarre/get-obs/internal/connectors"
	"github.com/jeromebarre/get-obs/internal/models"
)

// LAADSArchiveURL is the MODIS collection 6.1 archive root.
const LAADSArchiveURL = "https://ladsweb.modaps.eosdis.nasa.gov/archive/allData/61/"

// MODIS retrieves MODIS aerosol granules from LAADS every five minutes.
func MODIS() *Adapter {
	return &Adapter{
		Descriptor: Descriptor{
			Instrument: "MODIS",
			Products: map[string]string{
				"Terra": "MOD04_L2",
				"Aqua":  "MYD04_L2",
			},
			Auth:             models.CredentialBearerToken,
			CredentialFile:   "eosdis_token",
			CredentialPrompt: "Enter token from https://ladsweb.modaps.eosdis.nasa.gov/:",
			Cadence:          5 * time.Minute,
			Tool:             "wget",
			Inputs:           "*.hdf",
			Converter:        "modis_aod2ioda.py",
		},
		target:  modisTarget,
		command: modisCommand,
		args:    modisArgs,
	}
}

func modisTarget(at time.Time, rc RunContext) Target {
	at = at.UTC()
	yr, doy := at.Format("2006"), fmt.Sprintf("%03d", at.YearDay())
	return Target{
		Label:    fmt.Sprintf("%s %s%s %s", rc.Product, yr, doy, at.Format("1504")),
		URL:      LAADSArchiveURL + rc.Product + "/" + yr + "/" + doy + "/",
		Patterns: []string{rc.Product + ".A" + yr + doy + "." + at.Format("1504") + ".061.*.hdf"},
	}
}

func modisCommand(t Target, rc RunContext, dest string) connectors.Command {
	return connectors.Command{
		Name: "wget",
		Args: []string{
			"-e", "robots=off", "-m", "-nc", "-nv", "-np",
			"--reject", "html,tmp", "-nH", "--cut-dirs=6",
			"-A", t.Patterns[0],
			"--header", bearer(rc.Credential),
			t.URL,
			"-P", dest,
		},
	}
}

func modisArgs(in ConvertInput) []string {
	args := append([]string{"-i"}, in.Files...)
	return append(args, "-t", in.Window.Stamp(), "-p", in.Platform, "-o", in.Output)
}
