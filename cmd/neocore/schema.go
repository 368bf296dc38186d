package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"neocore/internal/schema"
)

var schemaOut string

var schemaCmd = &cobra.Command{
	Use:       "schema <" + strings.Join(schema.Documents(), "|") + ">",
	Short:     "Write the JSON schema of a hand-authored document",
	Args:      cobra.ExactArgs(1),
	ValidArgs: schema.Documents(),
	RunE: func(cmd *cobra.Command, args []string) error {
		doc, err := schema.Build(args[0])
		if err != nil {
			return err
		}
		if schemaOut == "" {
			return fmt.Errorf("--out is required")
		}
		if err := schema.Write(schemaOut, doc); err != nil {
			return fmt.Errorf("failed to write schema: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", schemaOut)
		return nil
	},
}

func init() {
	schemaCmd.Flags().StringVar(&schemaOut, "out", "", "path to write the JSON schema")
}
