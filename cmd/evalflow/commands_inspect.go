package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/BaSui01/evalflow/store"
	"github.com/BaSui01/evalflow/types"
)

// =============================================================================
// 🔍 查询命令
// =============================================================================

// requireStore compare / list runs 需要持久化存储
func requireStore(a *app) error {
	if a.store == nil {
		return fmt.Errorf("no store configured (engine.persist is false)")
	}
	return nil
}

func buildCompareCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "compare <run-a> <run-b>",
		Short: "Compare the scores of two stored runs",
		Long: `Load two runs and their scores from the store and print per-metric
differences. Numeric metrics carry delta = b - a.`,
		Example: `  evalflow compare run_1 run_2 --config config.yaml`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withApp(ctx, root, func(a *app) error {
				if err := requireStore(a); err != nil {
					return err
				}
				cmp, err := a.engine.Compare(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), cmp)
			})
		},
	}
}

func buildListCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered plugins, definitions or stored runs",
	}
	cmd.AddCommand(
		buildListRunnersCmd(root),
		buildListScorersCmd(root),
		buildListReportersCmd(root),
		buildListDefinitionsCmd(root),
		buildListRunsCmd(root),
	)
	return cmd
}

func buildListRunnersCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "runners",
		Short: "List execution units",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), root, func(a *app) error {
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tTYPE\tVERSION")
				for _, r := range a.plugins.runners.List() {
					fmt.Fprintf(w, "%s\t%s\t%s\n", r.ID(), r.Type(), r.Version())
				}
				return w.Flush()
			})
		},
	}
}

func buildListScorersCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "scorers",
		Short: "List scorers and the metrics they produce",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), root, func(a *app) error {
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tMETRICS")
				for _, s := range a.plugins.scorers.All() {
					fmt.Fprintf(w, "%s\t%v\n", s.ID(), s.Metrics())
				}
				return w.Flush()
			})
		},
	}
}

func buildListReportersCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reporters",
		Short: "List reporters and the report types they emit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), root, func(a *app) error {
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tREPORT TYPES")
				for _, r := range a.plugins.reporters.All() {
					fmt.Fprintf(w, "%s\t%v\n", r.ID(), r.ReportTypes())
				}
				return w.Flush()
			})
		},
	}
}

func buildListDefinitionsCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "definitions",
		Short: "Print task, workflow and method definitions as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), root, func(a *app) error {
				defs := a.plugins.definitions
				return writeJSON(cmd.OutOrStdout(), map[string]any{
					"tasks":     defs.ListTasks(),
					"workflows": defs.ListWorkflows(),
					"methods":   defs.ListMethods(),
				})
			})
		},
	}
}

func buildListRunsCmd(root *rootOptions) *cobra.Command {
	var (
		filter   store.Filter
		taskType string
		status   string
	)

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List stored runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter.TaskType = types.CapabilityType(taskType)
			filter.Status = types.RunStatus(status)
			if err := filter.Validate(); err != nil {
				return err
			}

			ctx := cmd.Context()
			return withApp(ctx, root, func(a *app) error {
				if err := requireStore(a); err != nil {
					return err
				}
				runs, err := a.store.ListRuns(ctx, filter)
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "RUN ID\tTASK ID\tTYPE\tRUNNER\tSTATUS\tCONFIG HASH")
				for _, run := range runs {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
						run.ID, run.TaskID, run.TaskType, run.Provenance.RunnerID,
						run.Status, run.Provenance.ConfigHash)
				}
				return w.Flush()
			})
		},
	}

	cmd.Flags().StringVar(&filter.TaskID, "task-id", "", "Only runs of this task")
	cmd.Flags().StringVar(&taskType, "type", "", "Only runs of this capability type")
	cmd.Flags().StringVar(&status, "status", "", "Only runs with this status (pending, running, completed, failed)")
	cmd.Flags().IntVar(&filter.Limit, "limit", 20, "Maximum number of runs (0 = no limit)")
	cmd.Flags().IntVar(&filter.Offset, "offset", 0, "Number of runs to skip")

	return cmd
}
