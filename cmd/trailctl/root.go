package main

import (
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "trailctl",
		Short:         "Inspect, validate and fetch audit trails",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newViewCmd(), newValidateCmd(), newFetchCmd())
	return root
}
