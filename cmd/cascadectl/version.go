package main

import (
	"encoding/json"
	"fmt"

	"github.com/evalgo/cascade/version"
	"github.com/spf13/cobra"
)

var versionJSON bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the cascade engine's version and build dependencies",
	RunE:  runVersion,
}

func init() {
	versionCmd.Flags().BoolVar(&versionJSON, "json", false, "print full build info as JSON")
	rootCmd.AddCommand(versionCmd)
}

func runVersion(cmd *cobra.Command, args []string) error {
	if !versionJSON {
		fmt.Fprintln(cmd.OutOrStdout(), version.GetEngineVersion())
		return nil
	}

	info := version.GetBuildInfo()
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(info)
}
