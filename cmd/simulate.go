package main

import (
	"fmt"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/conjoint-cli/internal/conjoint"
)

var simulateRule string

var simulateCmd = &cobra.Command{
	Use:   "simulate <workflow-id> <scenarios.json>...",
	Short: "Simulate market shares for scenario files",
	Long:  "Each scenario file holds a JSON array of scenarios (attribute name to level text). Files are simulated concurrently against the workflow's stored estimation.",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context(), "simulate")
		if err != nil {
			return err
		}
		defer env.Close()

		workflowID := args[0]
		files := args[1:]

		results := make([]*conjoint.SimulationResult, len(files))
		var mu sync.Mutex

		g, ctx := errgroup.WithContext(cmd.Context())
		g.SetLimit(4)
		for i, path := range files {
			g.Go(func() error {
				var scenarios []conjoint.Scenario
				if err := readJSONFile(path, &scenarios); err != nil {
					return err
				}
				res, err := env.Service.Simulate(ctx, workflowID, scenarios, simulateRule)
				if err != nil {
					return err
				}
				mu.Lock()
				results[i] = res
				mu.Unlock()
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		for i, res := range results {
			fmt.Printf("# %s\n", files[i])
			if err := printJSON(res); err != nil {
				return err
			}
		}
		return nil
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateRule, "rule", conjoint.RuleLogit, "choice rule: logit or first_choice")
	rootCmd.AddCommand(simulateCmd)
}
