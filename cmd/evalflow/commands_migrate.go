package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/BaSui01/evalflow/internal/migration"
)

// =============================================================================
// 🗄️ 数据库迁移命令
// =============================================================================

type migrateOptions struct {
	dbType string
	dbURL  string
}

func buildMigrateCmd(root *rootOptions) *cobra.Command {
	mopts := &migrateOptions{}

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the run store schema",
		Long: `Apply or roll back the SQL schema used by the gorm store backend.
Connection settings come from the database section of the config file
unless --db-type and --db-url are both given.`,
		Example: `  evalflow migrate up --config config.yaml
  evalflow migrate status --db-type sqlite --db-url "file:./evalflow.db?mode=rwc"
  evalflow migrate steps -- -1
  evalflow migrate force 1`,
	}
	cmd.PersistentFlags().StringVar(&mopts.dbType, "db-type", "", "Database type: postgres, mysql, sqlite (default: from config)")
	cmd.PersistentFlags().StringVar(&mopts.dbURL, "db-url", "", "Database connection URL (default: from config)")

	cmd.AddCommand(
		migrateSubCmd(root, mopts, "up", "Apply all pending migrations", cobra.NoArgs,
			func(cmd *cobra.Command, cli *migration.CLI, _ []string) error {
				return cli.RunUp(cmd.Context())
			}),
		migrateSubCmd(root, mopts, "down", "Roll back the last migration", cobra.NoArgs,
			func(cmd *cobra.Command, cli *migration.CLI, _ []string) error {
				return cli.RunDown(cmd.Context())
			}),
		migrateSubCmd(root, mopts, "steps <n>", "Apply n migrations (negative rolls back)", cobra.ExactArgs(1),
			func(cmd *cobra.Command, cli *migration.CLI, args []string) error {
				n, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("invalid step count %q: %w", args[0], err)
				}
				return cli.RunSteps(cmd.Context(), n)
			}),
		migrateSubCmd(root, mopts, "force <version>", "Set the schema version without running migrations", cobra.ExactArgs(1),
			func(cmd *cobra.Command, cli *migration.CLI, args []string) error {
				v, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("invalid version %q: %w", args[0], err)
				}
				return cli.RunForce(cmd.Context(), v)
			}),
		migrateSubCmd(root, mopts, "version", "Show the current schema version", cobra.NoArgs,
			func(cmd *cobra.Command, cli *migration.CLI, _ []string) error {
				return cli.RunVersion(cmd.Context())
			}),
		migrateSubCmd(root, mopts, "status", "Show the status of every migration", cobra.NoArgs,
			func(cmd *cobra.Command, cli *migration.CLI, _ []string) error {
				return cli.RunStatus(cmd.Context())
			}),
	)
	return cmd
}

// migrateSubCmd 创建迁移器、执行 run 后关闭
func migrateSubCmd(
	root *rootOptions,
	mopts *migrateOptions,
	use, short string,
	args cobra.PositionalArgs,
	run func(cmd *cobra.Command, cli *migration.CLI, args []string) error,
) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  args,
		RunE: func(cmd *cobra.Command, posArgs []string) (err error) {
			m, err := createMigrator(root, mopts)
			if err != nil {
				return err
			}
			defer func() {
				if cerr := m.Close(); cerr != nil && err == nil {
					err = fmt.Errorf("close migrator: %w", cerr)
				}
			}()

			cli := migration.NewCLI(m)
			cli.SetOutput(cmd.OutOrStdout())
			return run(cmd, cli, posArgs)
		},
	}
}

// createMigrator --db-type 与 --db-url 同时给出时直接使用，否则读取配置
func createMigrator(root *rootOptions, mopts *migrateOptions) (*migration.DefaultMigrator, error) {
	if mopts.dbType != "" && mopts.dbURL != "" {
		dbType, err := migration.ParseDatabaseType(mopts.dbType)
		if err != nil {
			return nil, err
		}
		return migration.NewMigratorFromURL(dbType, mopts.dbURL)
	}
	if mopts.dbType != "" || mopts.dbURL != "" {
		return nil, fmt.Errorf("--db-type and --db-url must be given together")
	}

	cfg, err := loadConfig(root)
	if err != nil {
		return nil, err
	}
	m, err := migration.NewMigratorFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("create migrator: %w", err)
	}
	return m, nil
}
