package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/luma/hoxconform/cmd/gen"
)

var RootCmd = &cobra.Command{
	Use:   "hoxconform",
	Short: "Conformance client for HOX game-table servers",
	Long: `Conformance client for HOX game-table servers

hoxconform logs players into a HOX server, drives them through tables and
compares every reply byte for byte with what the protocol promises. It also
ships a small in-memory reference server to run the checks against.
`,
	SilenceUsage: true,
}

func init() {
	RootCmd.AddCommand(RunCmd)
	RootCmd.AddCommand(ServeCmd)
	RootCmd.AddCommand(VersionCmd)
	RootCmd.AddCommand(gen.RootCmd)
}

func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
