// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供评估管线的 Prometheus 指标采集。

Collector 通过 promauto.With 注册在调用方提供的 Registerer 上，
所有指标按 namespace 隔离：

  - 运行：runs_total（runner/task_type/status）、run_duration_seconds、
    run_tokens_total、run_cost_total。
  - 评分与插件：scores_total（scorer/metric）、plugin_failures_total（kind/id）。
  - LLM：请求数、耗时、Token 用量（prompt/completion）与成本，
    由 llm.MetricsMiddleware 写入。
  - 缓存：store.CachedStore 的命中与未命中计数。

CLI 是一次性进程，退出前通过 WriteTextfile 以 textfile 格式导出。
*/
package metrics
