package cmd

import (
	"github.com/spf13/cobra"
)

// RootCommand is the base CLI command every subcommand is attached to.
var RootCommand = &cobra.Command{
	Use:   "ldb",
	Short: "ldb: a local-first replicated document store",
	Long:  "ldb runs one replica of a local-first, CRDT-backed document store: create documents, administer their ACLs, migrate their schema, and gossip with other peers.",
	SilenceUsage:  true,
	SilenceErrors: true,
}
