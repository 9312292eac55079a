// Copyright 2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
# 概述

包 dashscope 提供阿里云 DashScope（百炼）各类服务的底层 API 客户端。
上层模型（chat、embedding、image、speech、rerank）只依赖这里的
客户端，不直接拼装 HTTP 请求。

# 核心结构体

  - API：对话补全与文本向量走 OpenAI 兼容模式（openai-go），
    Rerank 走原生服务端点
  - AgentAPI：百炼应用调用（/api/v1/apps/{appId}/completion），
    支持 SSE 流式
  - ImageAPI：文生图异步任务，提交后按固定间隔轮询
  - SpeechSynthesisAPI：语音合成，基于 WebSocket 双工协议
    （run-task / continue-task / finish-task）
  - AudioTranscriptionAPI：录音文件识别异步任务，结果文档通过预签名 URL 下载

# 传输

同步请求使用 transport.ClientBuilder 构建的客户端，读超时由
ReadTimeoutCustomizer 控制；流式请求使用 AsyncClientBuilder，
不设读超时。失败响应统一交给 transport.ResponseErrorHandler
转换为 *types.Error。
*/
package dashscope
