package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/conjoint-cli/internal/conjoint"
	"github.com/sells-group/conjoint-cli/internal/store"
)

var (
	workflowName       string
	workflowAttrsPath  string
	workflowDesignPath string
	workflowFilterName string
)

var workflowsCmd = &cobra.Command{
	Use:   "workflows",
	Short: "Manage conjoint study workflows",
}

var workflowsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a workflow from attribute and design files",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context(), "estimate")
		if err != nil {
			return err
		}
		defer env.Close()

		var records []map[string]any
		if workflowAttrsPath != "" {
			if err := readJSONFile(workflowAttrsPath, &records); err != nil {
				return err
			}
		}
		var design []conjoint.DesignRow
		if workflowDesignPath != "" {
			if err := readJSONFile(workflowDesignPath, &design); err != nil {
				return err
			}
		}

		w, err := env.Service.Create(cmd.Context(), workflowName, records, design)
		if err != nil {
			return err
		}
		return printJSON(w)
	},
}

var workflowsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List workflows, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context(), "estimate")
		if err != nil {
			return err
		}
		defer env.Close()

		listed, err := env.Service.List(cmd.Context(), store.WorkflowFilter{Name: workflowFilterName})
		if err != nil {
			return err
		}
		for _, w := range listed {
			fmt.Printf("%s  %-30s %-10s %s\n", w.ID, w.Name, w.Status(), w.CreatedAt.Format("2006-01-02 15:04"))
		}
		return nil
	},
}

var workflowsShowCmd = &cobra.Command{
	Use:   "show <workflow-id>",
	Short: "Print a workflow record as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context(), "estimate")
		if err != nil {
			return err
		}
		defer env.Close()

		w, err := env.Service.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(w)
	},
}

var workflowsDeleteCmd = &cobra.Command{
	Use:   "delete <workflow-id>",
	Short: "Delete a workflow and its stored survey files",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context(), "estimate")
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.Service.Delete(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("deleted %s\n", args[0])
		return nil
	},
}

var workflowsAttachCmd = &cobra.Command{
	Use:   "attach-survey <workflow-id> <export.xlsx>",
	Short: "Attach a fielded survey export to a workflow",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context(), "estimate")
		if err != nil {
			return err
		}
		defer env.Close()

		f, err := os.Open(args[1])
		if err != nil {
			return eris.Wrapf(err, "open %s", args[1])
		}
		defer f.Close()

		w, err := env.Service.AttachSurvey(cmd.Context(), args[0], args[1], f)
		if err != nil {
			return err
		}
		return printJSON(w.SurveySummary)
	},
}

func readJSONFile(path string, v any) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return eris.Wrapf(err, "read %s", path)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return eris.Wrapf(err, "parse %s", path)
	}
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	workflowsCreateCmd.Flags().StringVar(&workflowName, "name", "", "workflow name (required)")
	workflowsCreateCmd.Flags().StringVar(&workflowAttrsPath, "attributes", "", "JSON file with flat attribute records")
	workflowsCreateCmd.Flags().StringVar(&workflowDesignPath, "design", "", "JSON file with design matrix rows")
	workflowsCreateCmd.MarkFlagRequired("name") //nolint:errcheck

	workflowsListCmd.Flags().StringVar(&workflowFilterName, "name", "", "filter by workflow name")

	workflowsCmd.AddCommand(workflowsCreateCmd, workflowsListCmd, workflowsShowCmd, workflowsDeleteCmd, workflowsAttachCmd)
	rootCmd.AddCommand(workflowsCmd)
}
