package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unified error code for DashScope calls.
type ErrorCode string

// Upstream error codes
const (
	ErrInvalidRequest     ErrorCode = "INVALID_REQUEST"
	ErrUnauthorized       ErrorCode = "UNAUTHORIZED"
	ErrForbidden          ErrorCode = "FORBIDDEN"
	ErrNotFound           ErrorCode = "NOT_FOUND"
	ErrRateLimited        ErrorCode = "RATE_LIMITED"
	ErrQuotaExceeded      ErrorCode = "QUOTA_EXCEEDED"
	ErrUpstreamTimeout    ErrorCode = "UPSTREAM_TIMEOUT"
	ErrUpstreamError      ErrorCode = "UPSTREAM_ERROR"
	ErrServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	ErrTaskFailed         ErrorCode = "TASK_FAILED"
)

// Error represents a structured upstream error with code, message, and metadata.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	Provider   string    `json:"provider,omitempty"`
	RequestID  string    `json:"request_id,omitempty"`
	Cause      error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.RequestID != "" {
		msg += " (request_id=" + e.RequestID + ")"
	}
	if e.Cause != nil {
		return msg + ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithHTTPStatus sets the HTTP status code.
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithProvider sets the provider name.
func (e *Error) WithProvider(provider string) *Error {
	e.Provider = provider
	return e
}

// IsRetryable checks if an error, or any error it wraps, is a retryable *Error.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// =============================================================================
// 启动期错误
// =============================================================================

// ConfigurationError 表示某个能力解析连接属性后仍缺少必需字段。
// 启动期致命错误，不做降级。
type ConfigurationError struct {
	// Missing 缺失的字段名: "apiKey" 或 "baseUrl"
	Missing string
	// Capability 能力标签，如 "chat"、"audio.synthesis"
	Capability string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("dashscope %s: %s must be set", e.Capability, e.Missing)
}

// BindingError 表示外部配置值无法绑定到描述符字段。
type BindingError struct {
	Key   string
	Value string
	Cause error
}

func (e *BindingError) Error() string {
	return fmt.Sprintf("failed to bind property %q (value %q): %v", e.Key, e.Value, e.Cause)
}

func (e *BindingError) Unwrap() error {
	return e.Cause
}

// TransportError 表示 HTTP 客户端构建器拒绝了某个传输设置。
type TransportError struct {
	Setting string
	Cause   error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("invalid transport setting %s: %v", e.Setting, e.Cause)
}

func (e *TransportError) Unwrap() error {
	return e.Cause
}
