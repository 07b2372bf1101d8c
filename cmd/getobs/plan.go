package main

import (
	"github.com/spf13/cobra"

	"github.com/jeromebarre/get-obs/internal/connectors/localexec"
	"github.com/jeromebarre/get-obs/internal/credential"
	"github.com/jeromebarre/get-obs/internal/driver"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Print every fetch, extract and convert command without running them",
	RunE:  runPlan,
}

func init() {
	planCmd.Flags().StringVarP(&configPath, "config", "i", "", "Path to the YAML or TOML run configuration (required)")
	planCmd.MarkFlagRequired("config")
}

func runPlan(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	d, err := driver.New(cfg, driver.Options{
		Connector: localexec.New(localexec.DefaultTools, cfg.BinDir()),
		Prompter:  credential.Env{},
		DryRun:    true,
		Out:       cmd.OutOrStdout(),
	})
	if err != nil {
		return err
	}

	report, err := d.Run(cmd.Context())
	if report != nil {
		printSummary(cmd.OutOrStdout(), report)
	}
	return err
}
