// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kawidev/knowledge-gate/internal/export"
	"github.com/kawidev/knowledge-gate/internal/gate"
	"github.com/kawidev/knowledge-gate/internal/qa"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version of knowledge-gate and its stage versions",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "knowledge-gate %s\n", version)
		fmt.Fprintf(out, "  qa:     %s\n", qa.Version)
		fmt.Fprintf(out, "  gate:   %s\n", gate.Version)
		fmt.Fprintf(out, "  export: %s\n", export.Version)
		fmt.Fprintf(out, "  schema: %s\n", cfg.SchemaContractVersion)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
