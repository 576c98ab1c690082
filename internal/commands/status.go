package commands

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dwsmith1983/fleetmon/internal/config"
	"github.com/dwsmith1983/fleetmon/internal/monitor"
	"github.com/dwsmith1983/fleetmon/internal/provider"
	"github.com/dwsmith1983/fleetmon/internal/provider/redis"
)

// NewStatusCmd creates the status command.
func NewStatusCmd() *cobra.Command {
	var (
		dir   string
		hours int
	)
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show cache hit rates for recent hours from the shared store",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(dir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			prov := redis.New(cfg.Redis)
			if err := prov.Start(ctx); err != nil {
				return fmt.Errorf("connecting to Redis: %w", err)
			}
			defer func() { _ = prov.Stop(ctx) }()

			return showStatus(ctx, cmd.OutOrStdout(), prov, time.Now(), hours)
		},
	}
	cmd.Flags().StringVarP(&dir, "dir", "d", ".", "Directory containing "+config.FileName)
	cmd.Flags().IntVar(&hours, "hours", 1, "Number of hours to show, newest first")
	return cmd
}

func showStatus(ctx context.Context, w io.Writer, prov provider.Provider, now time.Time, hours int) error {
	if hours < 1 {
		hours = 1
	}
	bold := color.New(color.Bold)
	_, _ = bold.Fprintln(w, "Cache hit rate")

	for i := 0; i < hours; i++ {
		hour := monitor.HourKey(now.Add(-time.Duration(i) * time.Hour))
		b, err := prov.GetBucket(ctx, monitor.CacheFamily, hour)
		if err != nil {
			return fmt.Errorf("reading bucket %s: %w", hour, err)
		}
		total := b.Hits + b.Misses
		if total == 0 {
			fmt.Fprintf(w, "  %s  no lookups\n", hour)
			continue
		}
		fmt.Fprintf(w, "  %s  %5.1f%%  (%d hits, %d misses)\n", hour, b.HitRate(), b.Hits, b.Misses)
	}
	return nil
}
