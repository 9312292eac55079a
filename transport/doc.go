/*
Package transport 提供 DashScope 能力客户端共享的 HTTP 传输层。

# 核心类型

  - ClientBuilder：同步客户端构建器，携带请求工厂设置（连接超时、读取超时）
  - AsyncClientBuilder：流式（SSE）客户端构建器，不施加读取超时
  - Customizer：启动时修改同步构建器的钩子；ReadTimeoutCustomizer 写入共享读取超时
  - ResponseErrorHandler：把 4xx/5xx 响应映射为 *types.Error

负数超时在 Build 时以 *types.TransportError 拒绝。
*/
package transport
