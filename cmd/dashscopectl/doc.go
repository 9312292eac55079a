/*
Package main 提供 dashscopectl 命令行程序。

# 概述

dashscopectl 按应用启动时相同的规则加载 spring.ai.dashscope.* 配置
（默认值、配置文件、环境变量、--set），执行条件装配，并把结果以
表格、YAML 或 JSON 输出，便于排查凭据覆盖与能力开关。

# 子命令

  - resolve     展示每个能力解析后的连接（API Key 脱敏），不创建客户端
  - components  执行完整装配，列出注册表中的组件与各能力的装配结果
  - chat        用装配出的对话模型发送一条消息
  - embed       用 primary 向量模型计算文本向量
  - version     显示构建信息

命令输出写 stdout，日志默认写 stderr；配置了 logging.output-paths 时以配置为准。
*/
package main
