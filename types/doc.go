// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package types 提供 evalflow 评测框架的全局共享类型定义。

# 概述

types 是框架最底层的公共包，不依赖任何内部包，为 registry、engine、
scenario、rag、store 等上层模块提供统一的数据契约。

# 核心类型

  - AtomicTask：单个工作单元（能力类型 + 输入 + 期望输出）
  - Scenario：有序步骤序列 + input_map 数据绑定
  - RunRecord：执行记录（状态、输出、trace、artifact、report、provenance）
  - ScoreRecord：评分记录（数值 / 布尔 / 字符串）
  - ArtifactRecord：管线中间产物（rag.retrieved / rag.reranked / rag.generated）
  - ReportRecord：派生分析报告（rag.evidence / rag.citations）
  - TaskDefinition 等：注册表中的静态能力描述
  - Error / ErrorCode：结构化错误体系

# 主要能力

  - Trace 构建：Tracer 追加式事件日志，严格按发出顺序
  - 记录辅助：NewRunRecord / Complete / Fail / EnsureFailureTrace / LatestArtifact
  - Context 传播：WithTraceID / WithTaskID / WithStepID，LLM 日志中间件据此关联请求
*/
package types
