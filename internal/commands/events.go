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
)

// NewEventsCmd creates the events command. It prints the full audit trail
// for one file, oldest first, so an operator can reconstruct how a recovery
// reached its current state.
func NewEventsCmd() *cobra.Command {
	var eventLimit int

	cmd := &cobra.Command{
		Use:   "events <granule-id> <file-key>",
		Short: "Show the audit trail for one file",
		Long:  "Lists every recorded transition and action for a file recovery, oldest first.",
		Args:  cobra.ExactArgs(2),
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
			return showAuditTrail(ctx, svc, args[0], args[1], eventLimit)
		},
	}

	cmd.Flags().IntVar(&eventLimit, "limit", 0, "Maximum audit events to show")
	return cmd
}

func showAuditTrail(ctx context.Context, svc *status.Service, granuleID, fileKey string, limit int) error {
	events, err := svc.GetAuditTrail(ctx, granuleID, fileKey, limit)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return fmt.Errorf("no recovery record for %s/%s", granuleID, fileKey)
		}
		return err
	}

	bold := color.New(color.Bold)
	_, _ = bold.Printf("Events for %s/%s:\n", granuleID, fileKey)
	if len(events) == 0 {
		fmt.Println("  (none recorded)")
		return nil
	}

	for _, ev := range events {
		line := fmt.Sprintf("  %s  %-22s", ev.Timestamp.Format(time.RFC3339), ev.Kind)
		switch {
		case ev.FromStatus != "" && ev.ToStatus != "":
			line += fmt.Sprintf("  %s -> %s", colorFileStatus(ev.FromStatus), colorFileStatus(ev.ToStatus))
		case ev.ToStatus != "":
			line += fmt.Sprintf("  %s", colorFileStatus(ev.ToStatus))
		}
		if ev.Detail != "" {
			line += "  " + ev.Detail
		}
		fmt.Println(line)
	}
	return nil
}
