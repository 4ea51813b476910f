package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"storefront/internal/catalog"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Delete cover images no item references",
	Long: `Delete orphaned cover images: stored assets no item record points at.

Assets younger than SWEEP_GRACE are kept, since they may belong to a write
that has not committed its record yet.

EXAMPLES:
  # Show what would be deleted
  catalog sweep --dry-run

  catalog sweep --grace 24h
`,
	RunE: runSweep,
}

var (
	sweepDryRun bool
	sweepGrace  string
)

var errMemorySweep = errors.New("sweep needs a shared record store; with RECORD_STORE=memory set SWEEP_INTERVAL on serve instead")

func init() {
	rootCmd.AddCommand(sweepCmd)
	sweepCmd.Flags().BoolVar(&sweepDryRun, "dry-run", false, "Report orphans without deleting them")
	sweepCmd.Flags().StringVar(&sweepGrace, "grace", "", "Override SWEEP_GRACE, e.g. 30m")
}

func runSweep(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	// A one-shot process has its own, empty memory store: every asset would
	// look orphaned. In memory mode only the sweeper inside serve is safe.
	if a.cfg.RecordStore == "memory" {
		return errMemorySweep
	}

	grace := a.cfg.SweepGrace
	if sweepGrace != "" {
		if grace, err = parseDuration(sweepGrace); err != nil {
			return err
		}
	}

	report, err := catalog.NewSweeper(a.records, a.assets, grace, a.log).Sweep(cmd.Context(), sweepDryRun)

	out := cmd.OutOrStdout()
	if sweepDryRun {
		fmt.Fprintln(out, "DRY RUN - nothing was deleted")
	}
	fmt.Fprintf(out, "scanned %d, referenced %d, too young %d, orphans %d, deleted %d, failed %d\n",
		report.Scanned, report.Referenced, report.Young, len(report.Orphans), report.Deleted, report.Failed)
	for _, ref := range report.Orphans {
		fmt.Fprintf(out, "  %s\n", ref)
	}
	return err
}

func parseDuration(s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration %q must be positive", s)
	}
	return d, nil
}
