// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Write the JSON Schema of the canonical record contract",
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")
		p, err := newPipeline(cfg, logger)
		if err != nil {
			return err
		}
		path, err := p.WriteSchema(output)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
		return nil
	},
}

func init() {
	schemaCmd.Flags().String("output", "", "schema path (default: <data-dir>/processed/knowledge_canonical.schema.json)")
	rootCmd.AddCommand(schemaCmd)
}
