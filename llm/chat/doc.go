/*
包 chat 提供 DashScope 对话模型。

Model 组合了 dashscope.API、默认参数 Options、重试策略、工具调用管理器
与观测注册表。Call 在模型返回 tool_calls 时自动执行工具并继续对话；
Stream 透传流式增量，不执行工具。

	model := chat.NewModel(api, chat.DefaultOptions(), retry.DefaultRetryPolicy(), manager, observability.Noop, logger)
	resp, err := model.Call(ctx, chat.NewPrompt("你好"))
*/
package chat
