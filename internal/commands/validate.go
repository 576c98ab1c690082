package commands

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dwsmith1983/fleetmon/internal/config"
	"github.com/dwsmith1983/fleetmon/internal/monitor"
	"github.com/dwsmith1983/fleetmon/pkg/types"
)

// NewValidateCmd creates the validate command.
func NewValidateCmd() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check " + config.FileName + " and print the effective settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd.OutOrStdout(), dir)
		},
	}
	cmd.Flags().StringVarP(&dir, "dir", "d", ".", "Directory containing "+config.FileName)
	return cmd
}

func runValidate(w io.Writer, dir string) error {
	cfg, err := config.Load(dir)
	if err != nil {
		return err
	}
	th, err := monitor.ThresholdsFromConfig(cfg.Thresholds)
	if err != nil {
		return fmt.Errorf("thresholds: %w", err)
	}
	iv, err := intervals(cfg.Scheduler)
	if err != nil {
		return err
	}
	printSummary(w, cfg, th, iv)
	return nil
}

func printSummary(w io.Writer, cfg *types.ProjectConfig, th monitor.Thresholds, iv monitor.Intervals) {
	bold := color.New(color.Bold)
	ok := color.New(color.FgGreen)

	_, _ = ok.Fprintln(w, "✓ configuration is valid")
	fmt.Fprintln(w)

	_, _ = bold.Fprintln(w, "Stores")
	fmt.Fprintf(w, "  redis     %s (prefix %q)\n", cfg.Redis.Addr, cfg.Redis.KeyPrefix)
	if cfg.Postgres != nil {
		fmt.Fprintf(w, "  postgres  configured\n")
	} else {
		fmt.Fprintf(w, "  postgres  not configured, static system source\n")
	}

	_, _ = bold.Fprintln(w, "Alert sinks")
	if len(cfg.Alerts) == 0 {
		fmt.Fprintln(w, "  none (alerts are logged only)")
	}
	for _, a := range cfg.Alerts {
		fmt.Fprintf(w, "  %s\n", describeSink(a))
	}

	iv = iv.WithDefaults()
	_, _ = bold.Fprintln(w, "Schedule")
	fmt.Fprintf(w, "  flush %s, system %s (backoff %s), sweep %s\n", iv.Flush, iv.System, iv.SystemBackoff, iv.Sweep)

	_, _ = bold.Fprintln(w, "Thresholds")
	fmt.Fprintf(w, "  api latency     > %.2fs\n", th.APILatency)
	fmt.Fprintf(w, "  driver score    < %.1f\n", th.DriverScore)
	fmt.Fprintf(w, "  db connections  > %d\n", th.DBConnections)
	fmt.Fprintf(w, "  error rate      > %.1f%% over %s\n", th.ErrorRate, th.Window)
	fmt.Fprintf(w, "  slow endpoint   > %.2fs avg over %s\n", th.SlowEndpoint, th.Window)

	fmt.Fprintf(w, "\nListening on %s\n", cfg.Server.Addr)
}
