// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 database 为评估记录的关系型存储提供 GORM 连接池管理。

# 核心类型

  - PoolManager：持有 GORM DB 与底层 sql.DB，提供 DB()、Ping()、
    Stats()、GetStats()、WithTransaction() 与 Close()。
  - PoolConfig：最大空闲/打开连接数、连接生命周期与可选的健康检查间隔。

# 驱动

Open 根据驱动名选择方言：postgres、mysql、sqlite（glebarez 纯 Go 实现）
与 sqlite3（cgo 实现）。打开后立即探活，失败时关闭连接并返回错误。

后台健康检查在 Close 时停止。
*/
package database
