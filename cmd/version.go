package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/luma/hoxconform/internal/meta"
)

var VersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		info := meta.GetInfo()

		version := info.Version
		if version == "" {
			version = "dev"
		}

		fmt.Fprintf(cmd.OutOrStdout(), "hoxconform %s (%s %s) %s %s\n",
			version, info.Branch, info.Build, info.Platform, info.GoVersion)
	},
}
