// Package loader 把磁盘上的语料文件转换为 rag.Document，供 RAG 任务的 documents 输入使用。
//
// 内置格式：
//   - 纯文本 (.txt)：整文件一个文档
//   - Markdown (.md)：按标题切分为多个文档
//   - CSV (.csv)：每行一个文档，首行为表头
//   - JSON / JSONL / YAML (.json, .jsonl, .yaml, .yml)：对象列表，字段 id / text
//
// 文档 ID 由文件名（不含扩展名）派生，分段时追加 ".<n>"，
// 不使用 '#'，因为 '#' 是块 ID 的分隔符。
//
//	reg := loader.NewRegistry()
//	docs, err := reg.LoadDir(ctx, "testdata/corpus")
package loader
