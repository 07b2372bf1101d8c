package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jeromebarre/get-obs/internal/config"
	"github.com/jeromebarre/get-obs/internal/connectors/localexec"
	"github.com/jeromebarre/get-obs/internal/credential"
	"github.com/jeromebarre/get-obs/internal/driver"
	"github.com/jeromebarre/get-obs/internal/store"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Retrieve and convert observations for every window",
	Long: `Runs the configured retrieval. Windows are processed in order; a failed
fetch or conversion is recorded and the run continues. The exit status is
non-zero when any window failed.`,
	RunE: runRun,
}

var (
	ledgerPath  string
	noPrompt    bool
	concurrency int
)

func init() {
	runCmd.Flags().StringVarP(&configPath, "config", "i", "", "Path to the YAML or TOML run configuration (required)")
	runCmd.Flags().StringVar(&ledgerPath, "ledger", "", `Ledger database path, "none" disables (overrides the config)`)
	runCmd.Flags().BoolVar(&noPrompt, "no-prompt", false, "Never prompt; read missing credentials from GETOBS_* variables")
	runCmd.Flags().IntVar(&concurrency, "concurrency", 0, "Parallel fetches per window (overrides the config)")
	runCmd.MarkFlagRequired("config")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var s *store.Store
	if cfg.LedgerEnabled() {
		s, err = store.New(cfg.Ledger)
		if err != nil {
			return fmt.Errorf("open ledger: %w", err)
		}
		defer s.Close()
	}

	d, err := driver.New(cfg, driver.Options{
		Connector: localexec.New(localexec.DefaultTools, cfg.BinDir()),
		Prompter:  prompter(cmd),
		Store:     s,
	})
	if err != nil {
		return err
	}

	report, err := d.Run(ctx)
	if report != nil {
		printSummary(cmd.OutOrStdout(), report)
	}
	if err != nil {
		return err
	}
	return report.Err()
}

func loadConfig() (*config.RunConfig, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if ledgerPath != "" {
		cfg.Ledger = ledgerPath
	}
	if concurrency > 0 {
		cfg.FetchConcurrency = concurrency
	}
	return cfg, nil
}

func prompter(cmd *cobra.Command) credential.Prompter {
	if noPrompt {
		return credential.Env{}
	}
	return credential.Chain{
		credential.Env{},
		credential.Terminal{In: cmd.InOrStdin(), Out: cmd.ErrOrStderr()},
	}
}
