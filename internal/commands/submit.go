package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/frostline/rehydrate/internal/archive"
	"github.com/frostline/rehydrate/internal/config"
	"github.com/frostline/rehydrate/internal/destination"
	"github.com/frostline/rehydrate/internal/initiator"
	"github.com/frostline/rehydrate/internal/ledger"
	"github.com/frostline/rehydrate/internal/orchestrator"
	"github.com/frostline/rehydrate/pkg/types"
)

const submitTimeout = 2 * time.Minute

// NewSubmitCmd creates the submit command.
func NewSubmitCmd() *cobra.Command {
	var (
		granuleID string
		fileKey   string
		bucket    string
		profile   string
		force     bool
	)

	cmd := &cobra.Command{
		Use:   "submit [request-file]",
		Short: "Submit a recovery request",
		Long:  "Submits a recovery request from a YAML file, or a single file via --granule/--key/--bucket.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				req types.RecoveryRequest
				err error
			)
			if len(args) > 0 {
				req, err = loadRequestFile(args[0])
				if err != nil {
					return err
				}
			} else {
				if granuleID == "" || fileKey == "" || bucket == "" {
					return fmt.Errorf("either a request file or --granule, --key and --bucket are required")
				}
				req = types.RecoveryRequest{
					Granules: []types.GranuleSpec{{
						GranuleID: granuleID,
						Files:     []types.FileSpec{{Key: fileKey, Bucket: bucket}},
					}},
				}
			}
			if profile != "" {
				req.Profile = profile
			}
			if force {
				req.Force = true
			}
			return runSubmit(req)
		},
	}

	cmd.Flags().StringVar(&granuleID, "granule", "", "Granule ID (single-file submission)")
	cmd.Flags().StringVar(&fileKey, "key", "", "File key (single-file submission)")
	cmd.Flags().StringVar(&bucket, "bucket", "", "Source archive bucket (single-file submission)")
	cmd.Flags().StringVar(&profile, "profile", "", "Collection profile to apply")
	cmd.Flags().BoolVar(&force, "force", false, "Force re-recovery of already recovered files")
	return cmd
}

func runSubmit(req types.RecoveryRequest) error {
	cfg, err := config.Load(".")
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	orch, _, cleanup, err := buildOrchestrator(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), submitTimeout)
	defer cancel()

	result, err := orch.SubmitRecovery(ctx, req)
	if err != nil {
		return fmt.Errorf("submission failed: %w", err)
	}

	printSubmitResult(result)
	return nil
}

// buildOrchestrator wires the ledger, initiator and orchestrator for one-shot
// commands.
func buildOrchestrator(cfg *types.ProjectConfig) (*orchestrator.Orchestrator, ledger.Ledger, func(), error) {
	led, err := newLedger(cfg)
	if err != nil {
		return nil, nil, nil, err
	}

	ctx := context.Background()
	if err := led.Start(ctx); err != nil {
		return nil, nil, nil, fmt.Errorf("connecting to ledger: %w", err)
	}

	resolver, err := destination.NewResolver(cfg.Destination)
	if err != nil {
		_ = led.Stop(ctx)
		return nil, nil, nil, fmt.Errorf("compiling destination config: %w", err)
	}

	archCfg := cfg.Archive
	if archCfg == nil {
		archCfg = &types.ArchiveConfig{}
	}
	arch, err := archive.New(archCfg)
	if err != nil {
		_ = led.Stop(ctx)
		return nil, nil, nil, fmt.Errorf("creating archive client: %w", err)
	}

	ini := initiator.New(led, arch, resolver, cfg.Deadlines, nil)
	orch := orchestrator.New(led, ini, resolver, nil)

	cleanup := func() {
		_ = led.Stop(context.Background())
	}
	return orch, led, cleanup, nil
}

func printSubmitResult(result *types.SubmitResult) {
	bold := color.New(color.Bold)
	_, _ = bold.Printf("\nRequest: %s\n\n", result.RequestID)

	for _, f := range result.Files {
		switch f.Outcome {
		case types.OutcomeAccepted:
			color.Green("  ✓ %s/%s: ACCEPTED", f.GranuleID, f.FileKey)
		case types.OutcomeAlreadyRecovered:
			color.Yellow("  ○ %s/%s: ALREADY RECOVERED", f.GranuleID, f.FileKey)
		case types.OutcomeExcluded:
			color.Yellow("  → %s/%s: EXCLUDED (%s)", f.GranuleID, f.FileKey, f.Reason)
		case types.OutcomeRejected:
			color.Red("  ✗ %s/%s: REJECTED (%s)", f.GranuleID, f.FileKey, f.Reason)
		}
	}

	fmt.Println()
	fmt.Printf("Track with: rehydrate status %s\n", result.RequestID)
}
