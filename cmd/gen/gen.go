package gen

import (
	"github.com/spf13/cobra"
)

// RootCmd groups the documentation generators.
var RootCmd = &cobra.Command{
	Use:   "gen",
	Short: "Generate hoxconform documentation",
	Long:  `Generate hoxconform documentation, such as man pages`,
}

func init() {
	RootCmd.AddCommand(ManPagesCmd)
}
