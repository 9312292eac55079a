package types

import (
	"encoding/json"
)

// Role 消息角色，取值与 DashScope 兼容模式的 role 字段一致
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Valid 报告角色是否为 DashScope 接受的取值
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant, RoleTool:
		return true
	}
	return false
}

// ToolCall 模型在 assistant 消息中请求的一次工具调用。
// Arguments 为模型生成的 JSON 参数原文。
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// Message 对话中的一条消息。
// ToolCallID 仅用于 tool 角色，指向触发它的 ToolCall.ID。
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content,omitempty"`
	Name       string     `json:"name,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

func NewSystemMessage(content string) Message    { return Message{Role: RoleSystem, Content: content} }
func NewUserMessage(content string) Message      { return Message{Role: RoleUser, Content: content} }
func NewAssistantMessage(content string) Message { return Message{Role: RoleAssistant, Content: content} }

// HasToolCalls 报告 assistant 消息是否要求调用工具
func (m Message) HasToolCalls() bool {
	return m.Role == RoleAssistant && len(m.ToolCalls) > 0
}
