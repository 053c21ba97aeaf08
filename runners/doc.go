// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package runners 提供意图、对话、记忆三种能力的内置执行单元。

每个执行单元在自己的边界上把任务输入解码为强类型载荷并校验，
校验失败以 failed 的 RunRecord 返回（错误码 INVALID_INPUT），不会返回 error。

  - [IntentRunner]：关键词规则或 LLM 分类，输出 {intent, confidence, matched}
  - [DialogueRunner]：模板回复或 LLM 回复，输出 {reply, model}
  - [MemoryRunner]：规则或 LLM 抽取事实，输出 {facts: [{key, value}]}

RAG 执行单元位于 rag 包。
*/
package runners
