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
	"github.com/frostline/rehydrate/pkg/types"
)

// NewRedriveCmd creates the redrive command.
func NewRedriveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "redrive [granule-id] [file-key]",
		Short: "Re-drive a failed recovery",
		Long:  "Resets a FAILED file record and submits a fresh retrieval for it.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRedrive(args[0], args[1])
		},
	}
}

func runRedrive(granuleID, fileKey string) error {
	cfg, err := config.Load(".")
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	orch, _, cleanup, err := buildOrchestrator(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	color.Cyan("Re-driving %s/%s...\n", granuleID, fileKey)

	result, err := orch.Redrive(ctx, granuleID, fileKey)
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrNotFound):
			return fmt.Errorf("no recovery record for %s/%s", granuleID, fileKey)
		case errors.Is(err, ledger.ErrInvalidTransition):
			return fmt.Errorf("record is not in a re-drivable state: %w", err)
		case errors.Is(err, ledger.ErrConflict):
			return fmt.Errorf("another process updated the record, retry: %w", err)
		default:
			return fmt.Errorf("re-drive failed: %w", err)
		}
	}

	switch result.Outcome {
	case types.OutcomeAccepted:
		color.Green("Retrieval re-submitted for %s/%s", granuleID, fileKey)
		fmt.Printf("  Track with: rehydrate status --granule %s --key %s\n", granuleID, fileKey)
	case types.OutcomeRejected:
		color.Red("Re-drive rejected: %s", result.Reason)
	default:
		color.Yellow("%s/%s: %s", granuleID, fileKey, result.Outcome)
	}
	return nil
}
