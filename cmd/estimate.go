package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var estimateCmd = &cobra.Command{
	Use:   "estimate <workflow-id>",
	Short: "Estimate partworth utilities from the attached survey export",
	Long:  "Encodes the workflow's attribute catalog against the survey export's hidden design columns and runs estimation, remote first with local fallback.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context(), "estimate")
		if err != nil {
			return err
		}
		defer env.Close()

		w, err := env.Service.Estimate(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		zap.L().Info("estimation stored",
			zap.String("workflow", w.ID),
			zap.Time("estimated_at", w.Estimation.EstimatedAt),
		)
		return printJSON(w.Estimation)
	},
}

func init() {
	rootCmd.AddCommand(estimateCmd)
}
