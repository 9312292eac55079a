package types

import (
	"encoding/json"
	"time"
)

// ToolSchema 暴露给模型的函数定义，Parameters 为 JSON Schema
type ToolSchema struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters"`
}

// ToolResult 一次工具执行的结果。Error 非空时 Result 无意义。
type ToolResult struct {
	ToolCallID string          `json:"tool_call_id"`
	Name       string          `json:"name"`
	Result     json.RawMessage `json:"result"`
	Error      string          `json:"error,omitempty"`
	Duration   time.Duration   `json:"duration"`
}

// ToMessage 转为回传给模型的 tool 消息；失败时把错误文本作为内容
func (tr ToolResult) ToMessage() Message {
	content := string(tr.Result)
	if tr.IsError() {
		content = "error: " + tr.Error
	}
	return Message{
		Role:       RoleTool,
		Content:    content,
		Name:       tr.Name,
		ToolCallID: tr.ToolCallID,
	}
}

func (tr ToolResult) IsError() bool { return tr.Error != "" }
