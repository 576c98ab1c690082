package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dwsmith1983/fleetmon/internal/commands"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:   "fleetmon",
		Short: "Performance and health monitoring for the fleet platform",
		Long: `fleetmon records API latency, driver scores, cache effectiveness and
database load, exposes them for Prometheus scraping, and raises alerts
when observations cross configured thresholds.`,
		Version:      version,
		SilenceUsage: true,
	}

	root.AddCommand(
		commands.NewInitCmd(),
		commands.NewValidateCmd(),
		commands.NewStatusCmd(),
		commands.NewServeCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
