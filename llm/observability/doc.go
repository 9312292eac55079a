// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 observability 为 DashScope 模型调用提供观测能力。

# 概述

模型对象在每次调用时构造一个 Observation，交给 Registry 分发给
各个 Handler。未配置观测时使用 Noop，调用路径上没有额外开销。

# 核心类型

  - Registry：观测注册表。Noop 为空实现；HandlerRegistry 按顺序
    分发给已注册的 Handler。
  - Handler：观测处理器。TracingHandler 基于 OpenTelemetry Span，
    MetricsHandler 基于 OpenTelemetry Meter；Prometheus 处理器位于
    internal/metrics。
  - ChatModelObservationConvention / EmbeddingModelObservationConvention：
    决定 Observation 名称与标签的约定，可由调用方替换。
*/
package observability
