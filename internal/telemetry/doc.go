// Package telemetry 初始化 OpenTelemetry trace/metric SDK，通过 OTLP/gRPC 导出。
// 关闭时不连接任何外部服务，Providers 的访问器回落到全局 noop provider，
// 调用方可以无条件把它们传给 engine。
package telemetry
