// Package telemetry 封装 OpenTelemetry SDK 初始化逻辑，
// 按 spring.ai.dashscope.observations 配置 TracerProvider 与 MeterProvider，
// 并据此构造模型使用的观测注册表。
// 观测未启用时使用 noop 实现，不连接任何外部服务。
package telemetry
