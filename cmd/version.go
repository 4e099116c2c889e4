package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// Version is set at build time via -ldflags; defaults to "dev" otherwise.
var Version = "dev"

func init() {
	versionCommand := &cobra.Command{
		Use:   "version",
		Short: "Print the ldb version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("Version:", Version)
			fmt.Println("Go Version:", runtime.Version())
		},
	}
	RootCommand.AddCommand(versionCommand)
}
