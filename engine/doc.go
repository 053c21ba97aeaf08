// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package engine 实现固定的四段评测管线：

	Execute -> Stamp provenance -> Report -> Evaluate -> Store

单任务入口为 Engine.Run，批量入口 Engine.RunBatch 逐个执行并隔离失败，
多步场景通过 Engine.RunScenario 委托给 scenario.Executor 后复用同一条管线尾部。
Engine.Compare 基于已存储的评分逐指标比较两次运行。

每个阶段包一层 OpenTelemetry span，运行级计数另外写入 Prometheus 收集器。
*/
package engine
