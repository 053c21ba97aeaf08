// Package config 提供 EvalFlow 的配置管理功能。
//
// 配置按 默认值 → YAML 文件 → EVALFLOW_ 前缀环境变量 的顺序叠加，
// 覆盖评估引擎、评分单元、RAG 管线默认值、结果存储（memory / gorm / mongo
// 及 Redis 读缓存）、LLM 后端、日志、遥测与指标。
package config
