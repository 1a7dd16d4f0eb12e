package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/frostline/rehydrate/internal/commands"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:   "rehydrate",
		Short: "Recovery orchestration for archived object storage",
		Long: `Rehydrate restores files from cold archive storage back into live buckets.
It submits retrieval requests against the archive tier, tracks each file
through a durable recovery ledger, copies restored objects to their
destinations with retry, and answers status queries while recoveries run
over hours or days.`,
		Version: version,
	}

	root.AddCommand(
		commands.NewInitCmd(),
		commands.NewSubmitCmd(),
		commands.NewStatusCmd(),
		commands.NewEventsCmd(),
		commands.NewRedriveCmd(),
		commands.NewServeCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
