// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package llm 提供评测管线使用的文本生成后端抽象。

# 核心接口

  - [Provider]：同步补全接口，提供 Completion / Name
  - [Complete]：取第一个 choice 的文本，Provider 未报告用量时用 tokenizer 估算
  - [RateLimitedProvider]：基于 golang.org/x/time/rate 的客户端限速

具体的 HTTP 实现见 llm/providers/openaicompat，token 计数见 llm/tokenizer。
*/
package llm
