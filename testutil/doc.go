// Copyright 2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license.

/*
Package testutil 提供评测框架测试的共享工具和辅助函数。

# 核心能力

  - 上下文辅助: TestContext / TestContextWithTimeout / CancelledContext，
    自动注册 Cleanup 防止泄漏
  - 运行记录断言: FindTraceEvent / AssertTraceContains / AssertTraceOrdered /
    RequireFailed / ScoresByMetric
  - 数据工具: AssertJSONEqual / MustJSON / MustParseJSON

# 子包

  - testutil/mocks: MockProvider（llm.Provider）、MockRunner、MockScorer、
    MockReporter，均支持 Builder 模式与错误注入
  - testutil/fixtures: 预置 RAG 文档、任务与场景样例

# 使用示例

	ctx := testutil.TestContext(t)
	provider := mocks.NewMockProvider().WithResponse(`{"answer":"..."}`)
	run, err := runner.Execute(ctx, fixtures.AlphaTask(), nil)
	testutil.AssertTraceContains(t, run, "generated")
*/
package testutil
