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
)

const initValkeyTimeout = 60 * time.Second

// NewInitCmd creates the init command.
func NewInitCmd() *cobra.Command {
	var skipValkey bool

	cmd := &cobra.Command{
		Use:   "init [project-name]",
		Short: "Initialize a new rehydrate project",
		Long:  "Creates project scaffolding and optionally starts a local Valkey container.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(args[0], skipValkey)
		},
	}

	cmd.Flags().BoolVar(&skipValkey, "skip-valkey", false, "Skip starting Valkey container")
	return cmd
}

func runInit(projectName string, skipValkey bool) error {
	bold := color.New(color.Bold)

	_, _ = bold.Printf("Initializing rehydrate project: %s\n", projectName)

	// Create directory structure
	if err := os.MkdirAll(filepath.Join(projectName, "requests"), 0o755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}

	// Write rehydrate.yaml
	configPath := filepath.Join(projectName, "rehydrate.yaml")
	configContent := `ledger: redis
redis:
  addr: localhost:6379
  keyPrefix: "rehydrate:"
destination:
  defaultBucket: my-recovery-bucket
  profiles:
    - name: l0a
      tier: standard
      excludedTypes: [".xml", ".cmr"]
      rules:
        - pattern: "\\.h5$"
          bucket: my-recovery-bucket-data
archive:
  restoreDays: 7
  defaultTier: standard
retry:
  maxAttempts: 3
  backoffSeconds: 2
  backoffMultiplier: 2
sweeper:
  enabled: true
  interval: 5m
server:
  addr: ":3000"
alerts:
  - type: console
`
	if err := os.WriteFile(configPath, []byte(configContent), 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	// Write example request
	requestPath := filepath.Join(projectName, "requests", "example.yaml")
	requestContent := `# A recovery request: which granules to pull back from the archive.
# Submit with: rehydrate submit requests/example.yaml
requestedBy: ops
profile: l0a
granules:
  - granuleId: example-granule-001
    files:
      - key: example-granule-001/scene.h5
        bucket: my-cold-archive
      - key: example-granule-001/scene.met.json
        bucket: my-cold-archive
`
	if err := os.WriteFile(requestPath, []byte(requestContent), 0o644); err != nil {
		return fmt.Errorf("writing example request: %w", err)
	}

	color.Green("  ✓ Project scaffolded")

	// Start Valkey container
	if !skipValkey {
		if err := startValkey(); err != nil {
			color.Yellow("  ⚠ Valkey setup skipped: %v", err)
			color.Yellow("    Run manually: docker run -d --name rehydrate-valkey -p 6379:6379 valkey/valkey:8")
		} else {
			color.Green("  ✓ Valkey container started")
		}
	} else {
		color.Yellow("  → Valkey setup skipped (--skip-valkey)")
	}

	fmt.Println()
	_, _ = bold.Println("Next steps:")
	fmt.Printf("  cd %s\n", projectName)
	fmt.Println("  rehydrate serve")
	fmt.Println("  rehydrate submit requests/example.yaml")
	return nil
}

func startValkey() error {
	// Check Docker availability
	if _, err := exec.LookPath("docker"); err != nil {
		return fmt.Errorf("docker not found in PATH")
	}

	// Check if container already exists
	checkCmd := exec.Command("docker", "inspect", "rehydrate-valkey")
	if checkCmd.Run() == nil {
		// Container exists, try starting it
		startCmd := exec.Command("docker", "start", "rehydrate-valkey")
		if err := startCmd.Run(); err != nil {
			return fmt.Errorf("starting existing container: %w", err)
		}
		return nil
	}

	// Create and start new container
	ctx, cancel := context.WithTimeout(context.Background(), initValkeyTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "docker", "run", "-d",
		"--name", "rehydrate-valkey",
		"-p", "6379:6379",
		"valkey/valkey:8",
	)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	return cmd.Run()
}
