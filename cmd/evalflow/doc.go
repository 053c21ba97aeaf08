// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package main 提供 evalflow 命令行入口。

# 概述

cmd/evalflow 把评测引擎包装成 CLI：读取 YAML/JSON 任务文件，
按配置装配日志、遥测、指标、存储与内置插件，然后执行评测并以 JSON 输出结果。

# 子命令

  - run       单个任务评测
  - batch     批量任务评测，失败项跳过
  - scenario  多步场景评测
  - compare   比较两次已存储的运行
  - list      列出执行单元、评分单元、报告单元、定义或已存储的运行
  - migrate   数据库迁移（up / down / steps / force / version / status）
  - version   版本信息

构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置。
*/
package main
