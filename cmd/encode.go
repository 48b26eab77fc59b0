package main

import (
	"github.com/spf13/cobra"

	"github.com/sells-group/conjoint-cli/internal/conjoint"
)

var (
	encodeAttrsPath string
	encodeTokens    []string
)

var encodeCmd = &cobra.Command{
	Use:   "encode",
	Short: "Encode flat attribute records into the estimator format",
	Long:  "Groups flat attribute/level records, assigns unique uppercase names (survey tokens win when provided), sorts levels, and marks each attribute's reference level.",
	RunE: func(cmd *cobra.Command, args []string) error {
		var records []map[string]any
		if err := readJSONFile(encodeAttrsPath, &records); err != nil {
			return err
		}

		flat := conjoint.NormalizeFlatAttributes(records)
		encoded := conjoint.EncodeAttributes(flat, encodeTokens)
		return printJSON(encoded)
	},
}

func init() {
	encodeCmd.Flags().StringVar(&encodeAttrsPath, "attributes", "", "JSON file with flat attribute records (required)")
	encodeCmd.Flags().StringSliceVar(&encodeTokens, "tokens", nil, "survey export attribute tokens, in column order")
	encodeCmd.MarkFlagRequired("attributes") //nolint:errcheck
	rootCmd.AddCommand(encodeCmd)
}
