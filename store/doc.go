// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package store 持久化运行记录与评分记录。

Store 接口由引擎在管线末尾调用，提供以下实现：

  - MemoryStore：进程内 map，读写都做深拷贝。
  - GormStore：关系型存储（postgres/mysql/sqlite），记录以 JSON 文本列保存，
    表结构与 internal/migration 的迁移文件一致。
  - MongoStore：runs/scores 两个集合。
  - CachedStore：在任意 Store 前加 Redis 读缓存，并发未命中通过 singleflight 合并。

所有实现返回的记录都是独立副本，调用方修改不会影响已存储的数据。
GetRun 在记录不存在时返回 (nil, nil)；DeleteRun 级联删除评分，记录不存在时
返回 RUN_NOT_FOUND。
*/
package store
