package commands

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dwsmith1983/fleetmon/internal/config"
)

const (
	valkeyContainer = "fleetmon-valkey"
	valkeyTimeout   = 60 * time.Second
)

const starterConfig = `redis:
  addr: localhost:6379
  keyPrefix: "fleetmon:"
server:
  addr: ":9090"
alerts:
  - type: console
scheduler:
  flushInterval: 60s
  systemInterval: 30s
  sweepInterval: 5m
thresholds:
  apiLatency: 2.0
  driverScore: 60
  dbConnections: 50
  errorRate: 5.0
  slowEndpoint: 1.0
logLevel: info
`

// NewInitCmd creates the init command.
func NewInitCmd() *cobra.Command {
	var skipValkey bool

	cmd := &cobra.Command{
		Use:   "init [dir]",
		Short: "Write a starter " + config.FileName,
		Long:  "Writes a starter config and optionally starts a local Valkey container.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := writeStarterConfig(args[0]); err != nil {
				return err
			}
			color.Green("  ✓ %s written", filepath.Join(args[0], config.FileName))

			if skipValkey {
				color.Yellow("  → Valkey setup skipped (--skip-valkey)")
				return nil
			}
			if err := startValkey(); err != nil {
				color.Yellow("  ⚠ Valkey setup skipped: %v", err)
				color.Yellow("    Run manually: docker run -d --name %s -p 6379:6379 valkey/valkey:8", valkeyContainer)
				return nil
			}
			color.Green("  ✓ Valkey container started")
			return nil
		},
	}

	cmd.Flags().BoolVar(&skipValkey, "skip-valkey", false, "Skip starting Valkey container")
	return cmd
}

// writeStarterConfig creates dir if needed and writes the starter config.
// An existing config is left untouched.
func writeStarterConfig(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}
	path := filepath.Join(dir, config.FileName)
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}
	if err := os.WriteFile(path, []byte(starterConfig), 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

func startValkey() error {
	if _, err := exec.LookPath("docker"); err != nil {
		return fmt.Errorf("docker not found in PATH")
	}

	if exec.Command("docker", "inspect", valkeyContainer).Run() == nil {
		if err := exec.Command("docker", "start", valkeyContainer).Run(); err != nil {
			return fmt.Errorf("starting existing container: %w", err)
		}
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), valkeyTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "docker", "run", "-d",
		"--name", valkeyContainer,
		"-p", "6379:6379",
		"valkey/valkey:8",
	)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}
