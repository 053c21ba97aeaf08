// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package scoring 提供与能力类型无关的内置评分单元。

  - [ExactMatchScorer]：按字段比较 expected 与 output，输出 exact_match 与 similarity
  - [ExprScorer]：对 {output, expected, metrics, task} 求值布尔断言
  - [UsageScorer]：延迟、token、成本，目标为 global
  - [StepStatusScorer]：场景中每一步的完成状态，目标为 step:<id>

RAG 相关的评分单元（引用、检索）位于 rag 包。
*/
package scoring
