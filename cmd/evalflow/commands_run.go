package main

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/BaSui01/evalflow/engine"
)

// =============================================================================
// Evaluation Commands
// =============================================================================

// withApp 加载配置、装配组件，执行 fn 后释放资源
func withApp(ctx context.Context, opts *rootOptions, fn func(a *app) error) (err error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.close(ctx); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(a)
}

func buildRunCmd(root *rootOptions) *cobra.Command {
	var (
		taskPath   string
		runnerID   string
		configPath string
		sets       []string
		scorers    []string
		docsDir    string
		full       bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Evaluate a single task",
		Long: `Execute one unit of work against an execution unit, stamp provenance,
run every reporter, score the run and persist the result.`,
		Example: `  # Keyword intent classification
  evalflow run --task task.yaml --runner intent_classifier --runner-config intents.yaml

  # RAG with documents loaded from a directory
  evalflow run --task query.yaml --runner rag_pipeline --docs ./corpus --set top_k=3`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			task, err := loadTask(taskPath)
			if err != nil {
				return err
			}
			if docsDir != "" {
				if err := attachDocuments(ctx, task, docsDir); err != nil {
					return err
				}
			}
			runnerConfig := map[string]any{}
			if configPath != "" {
				if err := decodeFile(configPath, &runnerConfig); err != nil {
					return err
				}
			}
			overrides, err := parseSets(sets)
			if err != nil {
				return err
			}

			return withApp(ctx, root, func(a *app) error {
				if len(scorers) == 0 {
					scorers = a.cfg.Engine.Scorers
				}
				res, err := a.engine.Run(ctx, engine.RunRequest{
					Task:      task,
					RunnerID:  runnerID,
					Config:    runnerConfig,
					ScorerIDs: scorers,
					Overrides: overrides,
				})
				if err != nil {
					return err
				}
				if full {
					return writeJSON(cmd.OutOrStdout(), res)
				}
				return writeJSON(cmd.OutOrStdout(), summarize(res))
			})
		},
	}

	cmd.Flags().StringVar(&taskPath, "task", "", "Task file (YAML or JSON)")
	cmd.Flags().StringVar(&runnerID, "runner", "", "Execution unit id")
	cmd.Flags().StringVar(&configPath, "runner-config", "", "Runner configuration file (YAML or JSON)")
	cmd.Flags().StringArrayVar(&sets, "set", nil, "Override a runner config key (key=value, repeatable)")
	cmd.Flags().StringSliceVar(&scorers, "scorers", nil, "Scorer ids (default: engine.scorers or all registered)")
	cmd.Flags().StringVar(&docsDir, "docs", "", "Directory of documents to attach to a RAG task")
	cmd.Flags().BoolVar(&full, "full", false, "Print the full run record instead of a summary")
	_ = cmd.MarkFlagRequired("task")
	_ = cmd.MarkFlagRequired("runner")

	return cmd
}

func buildBatchCmd(root *rootOptions) *cobra.Command {
	var (
		filePath string
		full     bool
	)

	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Evaluate a batch of tasks",
		Long: `Evaluate every task in a batch file with the same runner and config.
A failing task is logged and skipped; only successful results are printed.`,
		Example: `  evalflow batch --file batch.yaml`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			batch, err := loadBatch(filePath)
			if err != nil {
				return err
			}

			return withApp(ctx, root, func(a *app) error {
				scorers := batch.Scorers
				if len(scorers) == 0 {
					scorers = a.cfg.Engine.Scorers
				}
				reqs := make([]engine.RunRequest, 0, len(batch.Tasks))
				for i := range batch.Tasks {
					reqs = append(reqs, engine.RunRequest{
						Task:      &batch.Tasks[i],
						RunnerID:  batch.Runner,
						Config:    batch.Config,
						ScorerIDs: scorers,
					})
				}

				results, err := a.engine.RunBatch(ctx, reqs)
				if err != nil {
					return err
				}
				a.logger.Info("batch finished",
					zap.Int("tasks", len(reqs)),
					zap.Int("succeeded", len(results)))

				if full {
					return writeJSON(cmd.OutOrStdout(), results)
				}
				out := make([]summary, 0, len(results))
				for _, res := range results {
					out = append(out, summarize(res))
				}
				return writeJSON(cmd.OutOrStdout(), out)
			})
		},
	}

	cmd.Flags().StringVar(&filePath, "file", "", "Batch file (YAML or JSON)")
	cmd.Flags().BoolVar(&full, "full", false, "Print full run records instead of summaries")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func buildScenarioCmd(root *rootOptions) *cobra.Command {
	var (
		filePath string
		full     bool
	)

	cmd := &cobra.Command{
		Use:   "scenario",
		Short: "Evaluate a multi-step scenario",
		Long: `Run the steps of a scenario in order, binding earlier outputs into later
inputs. The first failing step fails the whole scenario.`,
		Example: `  evalflow scenario --file greet.yaml --full`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			sc, err := loadScenario(filePath)
			if err != nil {
				return err
			}

			return withApp(ctx, root, func(a *app) error {
				scorers := sc.Scorers
				if len(scorers) == 0 {
					scorers = a.cfg.Engine.Scorers
				}
				res, err := a.engine.RunScenario(ctx, engine.ScenarioRequest{
					Scenario:    &sc.Scenario,
					StepConfigs: sc.StepConfigs,
					ScorerIDs:   scorers,
				})
				if err != nil {
					return err
				}
				if full {
					return writeJSON(cmd.OutOrStdout(), res)
				}
				return writeJSON(cmd.OutOrStdout(), summarize(res))
			})
		},
	}

	cmd.Flags().StringVar(&filePath, "file", "", "Scenario file (YAML or JSON)")
	cmd.Flags().BoolVar(&full, "full", false, "Print the full run record instead of a summary")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}
