// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package registry 定义评测框架的插件契约与注册表。

# 核心接口

  - Runner：执行单元，ID / Type / Version / Execute(task, config) -> RunRecord
  - Scorer：评分单元，ID / Metrics / Evaluate(run, task, reports) -> []ScoreRecord
  - Reporter：报告单元，ID / ReportTypes / Run(runID, context) -> []ReportRecord

# 注册表

每种插件有独立的注册表，按 ID 索引，重复注册返回 DUPLICATE_REGISTRATION 错误，
绝不静默覆盖。RunnerRegistry / ReporterRegistry 查找未知 ID 返回 (nil, false)；
ScorerRegistry 与 DefinitionRegistry 查找未知 ID 直接返回错误并列出已知 ID，
便于快速诊断。注册表是显式实例，按进程或测试构造后通过依赖注入传递。
*/
package registry
