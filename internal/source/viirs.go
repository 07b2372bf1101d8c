package source

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jeromebarre/get-obs/internal/connectors"
	"github.com/jeromebarre/get-obs/internal/models"
)

// CLASSFTPHost serves NOAA CLASS orders.
const CLASSFTPHost = "ftp.avl.class.noaa.gov"

// VIIRS retrieves ordered JRR-AOD bundles from NOAA CLASS hourly.
//
// Each hourly request accepts three globs (granules starting in the hour,
// starting the hour before and ending in it, starting in it and ending the
// hour after) so granules straddling an hour boundary are not lost.
func VIIRS() *Adapter {
	return &Adapter{
		Descriptor: Descriptor{
			Instrument: "VIIRS",
			Products: map[string]string{
				"NPP":     "npp",
				"NOAA-20": "j01",
				"NOAA-21": "n21",
			},
			Auth:             models.CredentialOrderNumber,
			CredentialFile:   "order_file",
			CredentialPrompt: "Enter order numbers provided by CLASS order (next to the cd command on the order email):",
			Cadence:          time.Hour,
			Tool:             "wget",
			Bundle:           "*.tar",
			Inputs:           "*.nc",
			Converter:        "viirs_aod2ioda.py",
		},
		target:  viirsTarget,
		command: viirsCommand,
		args:    viirsArgs,
	}
}

// OrderURL returns the anonymous FTP directory of a CLASS order.
func OrderURL(order string) string {
	return "ftp://anonymous:psswd@" + CLASSFTPHost + "/" + strings.TrimSpace(order) + "/001/"
}

func viirsTarget(at time.Time, rc RunContext) Target {
	h, prev, next := ymdh(at), ymdh(at.Add(-time.Hour)), ymdh(at.Add(time.Hour))
	glob := func(s, e string) string {
		return "JRR-AOD_*_" + rc.Product + "_s" + s + "*_e" + e + "*_c*.tar"
	}
	return Target{
		Label:    fmt.Sprintf("%s %s", rc.Product, h),
		URL:      OrderURL(rc.Credential),
		Patterns: []string{glob(h, h), glob(prev, h), glob(h, next)},
	}
}

func viirsCommand(t Target, rc RunContext, dest string) connectors.Command {
	return connectors.Command{
		Name: "wget",
		Args: []string{
			"-r", "-nc", "-nd", "-np", "-nv",
			"-A", strings.Join(t.Patterns, ","),
			t.URL,
			"-P", dest,
		},
	}
}

func viirsArgs(in ConvertInput) []string {
	args := append([]string{"-i"}, in.Files...)
	return append(args,
		"-n", strconv.FormatFloat(in.Thinning, 'f', -1, 64),
		"-m", "nesdis",
		"-k", "maskout",
		"-o", in.Output,
	)
}
