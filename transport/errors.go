package transport

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/BaSui01/dashscope-starter/types"
)

// DashScope 错误码
const (
	CodeInvalidAPIKey     = "InvalidApiKey"
	CodeAccessDenied      = "AccessDenied"
	CodeWorkspaceNotFound = "WorkspaceNotFound"
	CodeRateLimitExceeded = "Throttling.RateQuota"
	CodeQuotaExceeded     = "Arrearage"
	CodeInvalidParameter  = "InvalidParameter"
	CodeModelNotFound     = "ModelNotFound"
	CodeInternalError     = "InternalError"
	CodeServiceBusy       = "ServiceUnavailable"
)

const maxErrorBody = 64 << 10

// ResponseErrorHandler 判定并转换失败的 HTTP 响应。
type ResponseErrorHandler interface {
	// HasError 判断响应是否表示失败
	HasError(resp *http.Response) bool
	// HandleError 读取失败响应并返回对应错误，不负责关闭 Body
	HandleError(resp *http.Response) error
}

// DefaultResponseErrorHandler 把 4xx/5xx 映射为带重试标记的 *types.Error。
type DefaultResponseErrorHandler struct {
	// Provider 写入错误的 Provider 字段，默认 "dashscope"
	Provider string
}

// NewDefaultResponseErrorHandler 创建默认错误处理器
func NewDefaultResponseErrorHandler() *DefaultResponseErrorHandler {
	return &DefaultResponseErrorHandler{Provider: "dashscope"}
}

// HasError 实现 ResponseErrorHandler
func (h *DefaultResponseErrorHandler) HasError(resp *http.Response) bool {
	return resp.StatusCode >= 400
}

// HandleError 实现 ResponseErrorHandler
func (h *DefaultResponseErrorHandler) HandleError(resp *http.Response) error {
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return MapHTTPError(resp.StatusCode, "", "failed to read error response", "", h.provider()).WithCause(err)
	}
	code, msg, requestID := parseErrorBody(data)
	if requestID == "" {
		requestID = resp.Header.Get("X-Request-Id")
	}
	return MapHTTPError(resp.StatusCode, code, msg, requestID, h.provider())
}

func (h *DefaultResponseErrorHandler) provider() string {
	if h.Provider == "" {
		return "dashscope"
	}
	return h.Provider
}

// parseErrorBody 同时兼容原生接口 {"code","message","request_id"}
// 与 compatible-mode 接口 {"error":{"code","message"}} 两种格式
func parseErrorBody(data []byte) (code, msg, requestID string) {
	var native struct {
		Code      string `json:"code"`
		Message   string `json:"message"`
		RequestID string `json:"request_id"`
		Error     *struct {
			Message string `json:"message"`
			Type    string `json:"type"`
			Code    any    `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &native); err != nil {
		return "", strings.TrimSpace(string(data)), ""
	}
	if native.Error != nil && native.Error.Message != "" {
		code = native.Error.Type
		if s, ok := native.Error.Code.(string); ok && s != "" {
			code = s
		}
		return code, native.Error.Message, native.RequestID
	}
	if native.Message == "" {
		return native.Code, strings.TrimSpace(string(data)), native.RequestID
	}
	return native.Code, native.Message, native.RequestID
}

// MapHTTPError 将 HTTP 状态码与 DashScope 错误码映射为带有合适重试标记的 *types.Error
func MapHTTPError(status int, code, msg, requestID, provider string) *types.Error {
	if code != "" {
		msg = fmt.Sprintf("%s: %s", code, msg)
	}
	e := &types.Error{
		Message:    msg,
		HTTPStatus: status,
		Provider:   provider,
		RequestID:  requestID,
	}

	switch {
	case code == CodeQuotaExceeded:
		e.Code = types.ErrQuotaExceeded
	case code == CodeModelNotFound:
		e.Code = types.ErrNotFound
	case status == http.StatusUnauthorized || code == CodeInvalidAPIKey:
		e.Code = types.ErrUnauthorized
	case status == http.StatusForbidden || code == CodeAccessDenied:
		e.Code = types.ErrForbidden
	case status == http.StatusNotFound || code == CodeWorkspaceNotFound:
		e.Code = types.ErrNotFound
	case status == http.StatusTooManyRequests || strings.HasPrefix(code, "Throttling"):
		e.Code = types.ErrRateLimited
		e.Retryable = true
	case status == http.StatusBadRequest:
		e.Code = types.ErrInvalidRequest
	case status == http.StatusGatewayTimeout:
		e.Code = types.ErrUpstreamTimeout
		e.Retryable = true
	case status == http.StatusServiceUnavailable || code == CodeServiceBusy:
		e.Code = types.ErrServiceUnavailable
		e.Retryable = true
	default:
		e.Code = types.ErrUpstreamError
		e.Retryable = status >= 500
	}
	return e
}
