package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/catherinevee/vtagger/internal/progress"
	"github.com/catherinevee/vtagger/internal/sync"
	"github.com/catherinevee/vtagger/internal/umbrella"
	"github.com/spf13/cobra"
)

type syncFlags struct {
	dimensions []string
	filterMode string
	filterDims []string
	forceAll   bool
	accounts   []string
	dryRun     bool
	anchor     string
	start      string
	end        string
}

func newSyncCmd() *cobra.Command {
	var flags syncFlags

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run a week, month, or range sync against the upstream import API",
	}

	addCommonFlags := func(c *cobra.Command) {
		c.Flags().StringSliceVar(&flags.dimensions, "dimension", nil, "restrict to these dimension names (default: all)")
		c.Flags().StringVar(&flags.filterMode, "filter-mode", string(umbrella.FilterAll), "all|not_vtagged")
		c.Flags().StringSliceVar(&flags.filterDims, "filter-dim", nil, "governance-tag dimensions used by filter_mode=not_vtagged")
		c.Flags().BoolVar(&flags.forceAll, "force-all", false, "ignore --dimension and run the full chain")
		c.Flags().StringSliceVar(&flags.accounts, "account", nil, "restrict to these account keys (default: all)")
		c.Flags().BoolVar(&flags.dryRun, "dry-run", false, "skip the upload phase")
	}

	weekCmd := &cobra.Command{
		Use:   "week",
		Short: "Sync the ISO week (Monday-Sunday) containing --anchor (default: today)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, sync.ModeWeek, flags)
		},
	}
	weekCmd.Flags().StringVar(&flags.anchor, "anchor", "", "YYYY-MM-DD reference date (default: today)")
	addCommonFlags(weekCmd)

	monthCmd := &cobra.Command{
		Use:   "month",
		Short: "Sync the calendar month containing --anchor (default: today)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, sync.ModeMonth, flags)
		},
	}
	monthCmd.Flags().StringVar(&flags.anchor, "anchor", "", "YYYY-MM-DD reference date (default: today)")
	addCommonFlags(monthCmd)

	rangeCmd := &cobra.Command{
		Use:   "range",
		Short: "Sync an explicit [--start, --end] window",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, sync.ModeRange, flags)
		},
	}
	rangeCmd.Flags().StringVar(&flags.start, "start", "", "YYYY-MM-DD (required)")
	rangeCmd.Flags().StringVar(&flags.end, "end", "", "YYYY-MM-DD (required)")
	rangeCmd.MarkFlagRequired("start")
	rangeCmd.MarkFlagRequired("end")
	addCommonFlags(rangeCmd)

	cmd.AddCommand(weekCmd, monthCmd, rangeCmd)
	return cmd
}

func runSync(cmd *cobra.Command, mode sync.Mode, flags syncFlags) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	req, err := buildSyncRequest(mode, flags)
	if err != nil {
		return err
	}

	if err := a.coordinator.Start(context.Background(), req); err != nil {
		return err
	}

	return waitForTerminal(cmd, a.broadcaster)
}

func buildSyncRequest(mode sync.Mode, flags syncFlags) (sync.Request, error) {
	var subset map[string]bool
	if !flags.forceAll && len(flags.dimensions) > 0 {
		subset = make(map[string]bool, len(flags.dimensions))
		for _, d := range flags.dimensions {
			subset[d] = true
		}
	}

	filterMode := umbrella.FilterAll
	if flags.filterMode == string(umbrella.FilterNotVtagged) {
		filterMode = umbrella.FilterNotVtagged
	}

	req := sync.Request{
		Mode:            mode,
		DimensionSubset: subset,
		FilterMode:      filterMode,
		FilterDims:      flags.filterDims,
		ForceAll:        flags.forceAll,
		AccountKeys:     flags.accounts,
		DryRun:          flags.dryRun,
	}

	switch mode {
	case sync.ModeWeek, sync.ModeMonth:
		anchor := time.Now()
		if flags.anchor != "" {
			t, err := time.Parse("2006-01-02", flags.anchor)
			if err != nil {
				return sync.Request{}, fmt.Errorf("invalid --anchor: %w", err)
			}
			anchor = t
		}
		req.AnchorDate = anchor
	case sync.ModeRange:
		start, err := time.Parse("2006-01-02", flags.start)
		if err != nil {
			return sync.Request{}, fmt.Errorf("invalid --start: %w", err)
		}
		end, err := time.Parse("2006-01-02", flags.end)
		if err != nil {
			return sync.Request{}, fmt.Errorf("invalid --end: %w", err)
		}
		req.StartDate = start
		req.EndDate = end
	}

	return req, nil
}

// waitForTerminal subscribes to the broadcaster and blocks until the
// run reaches a terminal state, printing progress as it goes.
func waitForTerminal(cmd *cobra.Command, bcast *progress.Broadcaster) error {
	sub := bcast.Subscribe()
	defer bcast.Unsubscribe(sub)

	for ev := range sub.C() {
		snap := ev.Snapshot
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %s %s\n", snap.State, snap.Message, snap.Detail)
		if !snap.IsRunning {
			if snap.State == progress.StateError {
				os.Exit(1)
			}
			if snap.State == progress.StateCancelled {
				os.Exit(1)
			}
			return nil
		}
	}
	return nil
}

func newCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel",
		Short: "Cancel the sync of this process's own coordinator (a no-op when idle); a sync running in another vtagger process is not affected",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			a.coordinator.Cancel()
			fmt.Fprintln(cmd.OutOrStdout(), "cancel requested")
			return nil
		},
	}
}
