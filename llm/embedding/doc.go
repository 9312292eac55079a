// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 embedding 提供 DashScope 文本向量模型（text-embedding-v1/v2/v3）。

# 核心类型

  - Model：组合 dashscope.API、MetadataMode、默认 Options、重试策略与观测注册表
  - MetadataMode：ALL / EMBED / INFERENCE / NONE，决定文档元数据是否参与向量化
  - Document：带元数据的待嵌入文档，FormattedContent 按模式拼接文本

# 批量

输入超过 BatchSize 时自动分批，最多 DefaultConcurrency 个批次并发，
任一批次失败即取消其余批次；返回的向量顺序与输入一致。
*/
package embedding
