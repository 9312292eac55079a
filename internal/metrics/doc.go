// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的模型调用指标采集。

# 概述

Collector 通过 promauto 注册指标，所有指标按 namespace 隔离
（对应 spring.ai.dashscope.observations.metrics-namespace）。
Collector 实现 observability.Handler，可直接挂到观测注册表上。

# 主要能力

  - 模型调用：请求总数、耗时、Token 用量（input/output）、在途请求数，
    按 operation/model 分组。
  - 装配：每个能力的装配结果（registered/disabled/overridden）计数。
*/
package metrics
