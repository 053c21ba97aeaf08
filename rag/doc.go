// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

// Package rag 实现检索增强生成（RAG）评测子管线。
//
// # 流水线
//
// 每次调用无状态，按固定顺序执行：分块 → 检索 → （可选）重排 → 生成。
//
//   - 分块：[Chunker]，支持 document（默认，不分块）、sentence、fixed、sliding 四种策略
//   - 检索：[LexicalRetriever]（倒排索引 + BM25）、[VectorRetriever]（余弦相似度）、
//     [HybridRetriever]（两者 Min-Max 归一化后线性加权）
//   - 重排：[Reranker] 由调用方注入；启用但未注入时运行失败
//   - 生成：[TemplateGenerator]（确定性模板）与 [LLMGenerator]（JSON 约束输出 + 一次修复）
//
// 中间结果以 Artifact 形式记录在 RunRecord 上：rag.retrieved、rag.reranked、rag.generated。
//
// # 证据链接与指标
//
// [EvidenceLinker] 把生成句子的引用与检索集合对齐，产出 rag.evidence 与 rag.citations 报告；
// [CitationScorer] 计算 citation_precision 与 hallucination_rate；
// [RetrievalScorer] 按 expected.relevant_chunks 计算 precision / recall / MRR / NDCG。
package rag
