// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 migration 管理评估记录库的 Schema（eval_runs 与 eval_scores），
基于 golang-migrate，支持 PostgreSQL、MySQL 与 SQLite。

各方言的 SQL 文件通过 embed 内嵌在 migrations/<dialect>/ 目录下，
文件名形如 000001_create_eval_tables.up.sql。

  - Migrator / DefaultMigrator：Up、Down、Steps、Force、Version、Status、Info。
  - NewMigratorFromConfig：从 config.DatabaseConfig 拼接连接 URL。
  - CLI：evalflow migrate 子命令使用的格式化输出。

生产环境使用迁移建表；store.GormStore 的 AutoMigrate 仅用于本地开发，
两者的表结构保持一致。
*/
package migration
