// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package scenario 实现多步骤场景执行器。

场景是按顺序执行的一组原子任务，步骤之间通过 input_map 绑定传递数据：

	input_map:
	  step-2:
	    - from: "step:step-1:intent"
	      to: "detected_intent"

绑定来源支持 "step:<id>:<path>"（之前步骤的输出）与 "input:<field>"（场景初始输入）。
目标路径为点分路径，缺失的中间节点会自动创建。

执行器从不返回错误：任何失败都表现为 status=failed 的 RunRecord，
失败步骤 ID 与错误信息保存在 RunRecord.Error 中，后续步骤不会执行。
*/
package scenario
