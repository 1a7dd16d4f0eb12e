package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/frostline/rehydrate/internal/config"
	"github.com/frostline/rehydrate/internal/ledger"
	"github.com/frostline/rehydrate/internal/status"
	"github.com/frostline/rehydrate/pkg/types"
)

const statusTimeout = 10 * time.Second

// NewStatusCmd creates the status command.
func NewStatusCmd() *cobra.Command {
	var (
		granuleID  string
		fileKey    string
		showEvents bool
		eventLimit int
		listStale  bool
	)

	cmd := &cobra.Command{
		Use:   "status [request-id]",
		Short: "Show recovery status",
		Long:  "Shows the status of a request, a granule, or a single file, or lists stale records.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(".")
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			led, err := newLedger(cfg)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(context.Background(), statusTimeout)
			defer cancel()

			if err := led.Start(ctx); err != nil {
				return fmt.Errorf("connecting to ledger: %w", err)
			}
			defer func() { _ = led.Stop(ctx) }()

			svc := status.New(led)

			switch {
			case listStale:
				return showStale(ctx, svc)
			case granuleID != "" && fileKey != "":
				return showFileStatus(ctx, svc, granuleID, fileKey, showEvents, eventLimit)
			case granuleID != "":
				return showGranuleStatus(ctx, svc, granuleID)
			case len(args) == 1:
				return showRequestStatus(ctx, svc, args[0])
			default:
				return fmt.Errorf("a request ID, --granule, or --stale is required")
			}
		},
	}

	cmd.Flags().StringVar(&granuleID, "granule", "", "Show status for one granule")
	cmd.Flags().StringVar(&fileKey, "key", "", "Show status for one file within --granule")
	cmd.Flags().BoolVar(&showEvents, "events", false, "Include the audit trail (with --granule and --key)")
	cmd.Flags().IntVar(&eventLimit, "limit", 0, "Maximum audit events to show")
	cmd.Flags().BoolVar(&listStale, "stale", false, "List files staged past their completion deadline")
	return cmd
}

func showRequestStatus(ctx context.Context, svc *status.Service, requestID string) error {
	view, err := svc.GetRequestStatus(ctx, requestID)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return fmt.Errorf("request %s not found", requestID)
		}
		return err
	}

	bold := color.New(color.Bold)
	_, _ = bold.Printf("Request: %s\n", view.RequestID)
	if view.RequestedBy != "" {
		fmt.Printf("  Requested by: %s\n", view.RequestedBy)
	}
	fmt.Printf("  Created:      %s\n", view.CreatedAt.Format(time.RFC3339))
	fmt.Printf("  Status:       %s\n", colorAggregate(view.Status))
	if len(view.Counts) > 0 {
		fmt.Printf("  Files:        %s\n", formatCounts(view.Counts))
	}
	fmt.Println()

	for _, g := range view.Granules {
		printGranule(g)
	}
	return nil
}

func showGranuleStatus(ctx context.Context, svc *status.Service, granuleID string) error {
	view, err := svc.GetGranuleStatus(ctx, granuleID)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return fmt.Errorf("granule %s not found", granuleID)
		}
		return err
	}
	printGranule(*view)
	return nil
}

func showFileStatus(ctx context.Context, svc *status.Service, granuleID, fileKey string, showEvents bool, limit int) error {
	view, err := svc.GetFileStatus(ctx, granuleID, fileKey)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return fmt.Errorf("no recovery record for %s/%s", granuleID, fileKey)
		}
		return err
	}

	bold := color.New(color.Bold)
	_, _ = bold.Printf("File: %s/%s\n", granuleID, view.FileKey)
	fmt.Printf("  Status:      %s%s\n", colorFileStatus(view.Status), staleMarker(view.Stale))
	if view.Tier != "" {
		fmt.Printf("  Tier:        %s\n", view.Tier)
	}
	if view.DestinationBucket != "" {
		fmt.Printf("  Destination: %s\n", view.DestinationBucket)
	}
	fmt.Printf("  Retries:     %d\n", view.RetryCount)
	if view.CompletionDeadline != nil {
		fmt.Printf("  Deadline:    %s\n", view.CompletionDeadline.Format(time.RFC3339))
	}
	if view.LastError != "" {
		fmt.Printf("  Last error:  %s\n", color.RedString(view.LastError))
	}
	fmt.Printf("  Changed:     %s\n", view.StatusChangedAt.Format(time.RFC3339))

	if !showEvents {
		return nil
	}

	events, err := svc.GetAuditTrail(ctx, granuleID, fileKey, limit)
	if err != nil {
		return fmt.Errorf("loading audit trail: %w", err)
	}
	if len(events) > 0 {
		fmt.Println()
		_, _ = bold.Println("  Events:")
		for _, ev := range events {
			line := fmt.Sprintf("    %s  %-22s", ev.Timestamp.Format(time.RFC3339), ev.Kind)
			if ev.ToStatus != "" {
				line += fmt.Sprintf("  %s", colorFileStatus(ev.ToStatus))
			}
			if ev.Detail != "" {
				line += "  " + ev.Detail
			}
			fmt.Println(line)
		}
	}
	return nil
}

func showStale(ctx context.Context, svc *status.Service) error {
	records, err := svc.ListStale(ctx, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("listing stale records: %w", err)
	}
	if len(records) == 0 {
		color.Green("No stale recoveries")
		return nil
	}

	bold := color.New(color.Bold)
	_, _ = bold.Printf("%d stale recoveries:\n", len(records))
	for _, r := range records {
		color.Yellow("  %s/%s overdue by %s (deadline %s)",
			r.GranuleID, r.FileKey, r.Overdue.Round(time.Minute), r.Deadline.Format(time.RFC3339))
	}
	return nil
}

func printGranule(g types.GranuleStatusView) {
	bold := color.New(color.Bold)
	_, _ = bold.Printf("Granule %s: %s\n", g.GranuleID, colorAggregate(g.Status))
	for _, f := range g.Files {
		line := fmt.Sprintf("  %-50s %s%s", f.FileKey, colorFileStatus(f.Status), staleMarker(f.Stale))
		if f.RetryCount > 0 {
			line += fmt.Sprintf(" (retries: %d)", f.RetryCount)
		}
		if f.LastError != "" {
			line += " " + color.RedString(f.LastError)
		}
		fmt.Println(line)
	}
	fmt.Println()
}

func colorAggregate(s types.AggregateStatus) string {
	switch s {
	case types.AggregateCompleted:
		return color.GreenString(string(s))
	case types.AggregateFailed:
		return color.RedString(string(s))
	default:
		return color.CyanString(string(s))
	}
}

func colorFileStatus(s types.FileStatus) string {
	switch s {
	case types.FileCompleted:
		return color.GreenString(string(s))
	case types.FileFailed:
		return color.RedString(string(s))
	case types.FileCopying, types.FileRestored:
		return color.CyanString(string(s))
	case types.FileStaged:
		return color.YellowString(string(s))
	default:
		return string(s)
	}
}

func staleMarker(stale bool) string {
	if !stale {
		return ""
	}
	return color.YellowString(" [STALE]")
}

func formatCounts(counts map[types.FileStatus]int) string {
	order := []types.FileStatus{
		types.FilePending, types.FileStaged, types.FileRestored,
		types.FileCopying, types.FileCompleted, types.FileFailed,
	}
	out := ""
	for _, s := range order {
		n := counts[s]
		if n == 0 {
			continue
		}
		if out != "" {
			out += ", "
		}
		out += fmt.Sprintf("%d %s", n, s)
	}
	return out
}
