// Package tokenizer 提供统一的 token 计数与切分接口，
// 支持 tiktoken 精确分词与无需外部数据的 CJK 感知估算器。
package tokenizer
