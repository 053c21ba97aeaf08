// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 cache 提供基于 Redis 的评测记录缓存，供 store.CachedStore 做读穿缓存。

# 键格式

<prefix>:<SchemaVersion>:<kind>:<id>，kind 目前为 run 与 scores。
记录结构变化时递增 SchemaVersion，旧版本的键随 TTL 过期。

# 错误语义

Load 未命中返回 (false, nil)；无法解码的值被删除并按未命中处理。
客户端不做命令重试，连接或命令失败直接返回给调用方，由调用方决定是否降级。
*/
package cache
