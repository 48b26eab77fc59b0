package main

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var extractBriefPath string

var extractCmd = &cobra.Command{
	Use:   "extract [brief text]",
	Short: "Extract an attribute catalog from a study brief via LLM",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context(), "extract")
		if err != nil {
			return err
		}
		defer env.Close()

		brief := strings.Join(args, " ")
		if extractBriefPath != "" {
			raw, err := os.ReadFile(extractBriefPath)
			if err != nil {
				return eris.Wrapf(err, "read %s", extractBriefPath)
			}
			brief = string(raw)
		}

		attrs, err := env.Extractor.Attributes(cmd.Context(), brief)
		if err != nil {
			return err
		}
		return printJSON(attrs)
	},
}

func init() {
	extractCmd.Flags().StringVar(&extractBriefPath, "file", "", "read the study brief from a file instead of arguments")
	rootCmd.AddCommand(extractCmd)
}
