// Copyright (c) DashScope Starter Authors.
// Licensed under the MIT License.

/*
Package types 提供 dashscope-starter 的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 config、llm、transport
等上层模块提供统一的类型契约，避免循环依赖。

# 核心类型

  - Message / Role / ToolCall：对话消息与工具调用
  - ToolSchema / ToolResult：工具定义与执行结果
  - Error / ErrorCode：DashScope 上游错误，含 HTTP 状态码、RequestID、Retryable 标记
  - ConfigurationError：连接属性解析失败（缺失 apiKey / baseUrl）
  - BindingError：外部配置值无法绑定到描述符字段
  - TransportError：HTTP 客户端构建器拒绝配置的超时
*/
package types
