// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 llm 提供 DashScope 能力组件的注册表，以及各能力子包的公共入口。

# 概述

[Registry] 保存按名称注册的单例组件（模型、API 客户端、传输构建器、
重试策略、观测注册表等）。装配器在启动阶段向其中注册默认组件，
应用在运行期按名称或按类型取用。

# 按类型查找

  - [Lookup]：按名称取组件并断言为 T
  - [FindAll]：按注册顺序返回所有可赋值给 T 的组件
  - [Has]：是否存在可赋值给 T 的组件，用于判断用户是否已提供覆盖
  - [Unique]：唯一候选；多个候选时取唯一标记为 [Primary] 的一个
  - [IfUnique]：Unique 失败时返回调用方给定的默认值

# 子包

  - chat / embedding / image / speech / rerank：各能力模型
  - providers/dashscope：DashScope HTTP / WebSocket 客户端
  - factory：连接解析与条件装配
  - retry / observability / tools：模型依赖的协作者
*/
package llm
