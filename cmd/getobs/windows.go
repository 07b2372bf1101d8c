package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/jeromebarre/get-obs/internal/window"
)

var windowsCmd = &cobra.Command{
	Use:   "windows",
	Short: "List the assimilation windows of a configuration",
	RunE:  runWindows,
}

func init() {
	windowsCmd.Flags().StringVarP(&configPath, "config", "i", "", "Path to the YAML or TOML run configuration (required)")
	windowsCmd.MarkFlagRequired("config")
}

func runWindows(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	windows, err := window.Generate(cfg.Start, cfg.End, cfg.Window)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "INDEX\tSTART\tEND\tCENTER\tSTAMP")
	for _, win := range windows {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n",
			win.Index,
			win.Start.Format(time.RFC3339),
			win.End.Format(time.RFC3339),
			win.Center.Format(time.RFC3339),
			win.Stamp(),
		)
	}
	return w.Flush()
}
