package transport

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/BaSui01/dashscope-starter/internal/tlsutil"
	"github.com/BaSui01/dashscope-starter/types"
)

// RequestFactorySettings 请求工厂设置。零值表示使用传输层默认值。
type RequestFactorySettings struct {
	// ConnectTimeout 建立连接超时
	ConnectTimeout time.Duration
	// ReadTimeout 读取超时：等待响应头以及响应体相邻两次读取之间的最长间隔
	ReadTimeout time.Duration
}

// WithReadTimeout 返回替换了读取超时的副本。
func (s RequestFactorySettings) WithReadTimeout(d time.Duration) RequestFactorySettings {
	s.ReadTimeout = d
	return s
}

// WithConnectTimeout 返回替换了连接超时的副本。
func (s RequestFactorySettings) WithConnectTimeout(d time.Duration) RequestFactorySettings {
	s.ConnectTimeout = d
	return s
}

func (s RequestFactorySettings) validate() error {
	if s.ConnectTimeout < 0 {
		return &types.TransportError{Setting: "connect-timeout", Cause: errors.New("must not be negative: " + s.ConnectTimeout.String())}
	}
	if s.ReadTimeout < 0 {
		return &types.TransportError{Setting: "read-timeout", Cause: errors.New("must not be negative: " + s.ReadTimeout.String())}
	}
	return nil
}

// =============================================================================
// 同步客户端构建器
// =============================================================================

// ClientBuilder 同步 HTTP 客户端构建器（Builder 模式）。
// 所有非流式的能力客户端共享同一个构建器，由 Customizer 在启动时写入设置。
type ClientBuilder struct {
	mu       sync.RWMutex
	settings RequestFactorySettings
	headers  http.Header
}

// NewClientBuilder 创建同步客户端构建器
func NewClientBuilder() *ClientBuilder {
	return &ClientBuilder{headers: make(http.Header)}
}

// RequestFactory 设置请求工厂参数
func (b *ClientBuilder) RequestFactory(settings RequestFactorySettings) *ClientBuilder {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.settings = settings
	return b
}

// DefaultHeader 添加每个请求都会携带的请求头
func (b *ClientBuilder) DefaultHeader(key, value string) *ClientBuilder {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.headers.Set(key, value)
	return b
}

// Apply 依次执行定制器
func (b *ClientBuilder) Apply(customizers ...Customizer) *ClientBuilder {
	for _, c := range customizers {
		if c != nil {
			c.Customize(b)
		}
	}
	return b
}

// Settings 返回当前请求工厂设置
func (b *ClientBuilder) Settings() RequestFactorySettings {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.settings
}

// Clone 复制构建器，副本上的修改不会影响原构建器
func (b *ClientBuilder) Clone() *ClientBuilder {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return &ClientBuilder{settings: b.settings, headers: b.headers.Clone()}
}

// Build 构建 http.Client。超时设置非法时返回 *types.TransportError。
func (b *ClientBuilder) Build() (*http.Client, error) {
	b.mu.RLock()
	settings := b.settings
	headers := b.headers.Clone()
	b.mu.RUnlock()

	if err := settings.validate(); err != nil {
		return nil, err
	}

	base := b.baseTransport(settings)
	var rt http.RoundTripper = base
	if settings.ReadTimeout > 0 {
		rt = &readTimeoutRoundTripper{next: rt, timeout: settings.ReadTimeout}
	}
	if len(headers) > 0 {
		rt = &headerRoundTripper{next: rt, headers: headers}
	}
	return &http.Client{Transport: rt}, nil
}

func (b *ClientBuilder) baseTransport(settings RequestFactorySettings) *http.Transport {
	t := tlsutil.SecureTransport(settings.ConnectTimeout)
	t.ResponseHeaderTimeout = settings.ReadTimeout
	return t
}

// =============================================================================
// 异步（流式）客户端构建器
// =============================================================================

// AsyncClientBuilder 流式请求使用的客户端构建器。
// 流式响应可能持续很久，因此这里不施加读取超时，也不受 Customizer 影响。
type AsyncClientBuilder struct {
	mu             sync.RWMutex
	connectTimeout time.Duration
	headers        http.Header
}

// NewAsyncClientBuilder 创建流式客户端构建器
func NewAsyncClientBuilder() *AsyncClientBuilder {
	return &AsyncClientBuilder{headers: make(http.Header)}
}

// ConnectTimeout 设置连接超时
func (b *AsyncClientBuilder) ConnectTimeout(d time.Duration) *AsyncClientBuilder {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connectTimeout = d
	return b
}

// DefaultHeader 添加每个请求都会携带的请求头
func (b *AsyncClientBuilder) DefaultHeader(key, value string) *AsyncClientBuilder {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.headers.Set(key, value)
	return b
}

// Build 构建流式 http.Client
func (b *AsyncClientBuilder) Build() (*http.Client, error) {
	b.mu.RLock()
	connectTimeout := b.connectTimeout
	headers := b.headers.Clone()
	b.mu.RUnlock()

	if connectTimeout < 0 {
		return nil, &types.TransportError{Setting: "connect-timeout", Cause: errors.New("must not be negative: " + connectTimeout.String())}
	}

	var rt http.RoundTripper = tlsutil.SecureTransport(connectTimeout)
	if len(headers) > 0 {
		rt = &headerRoundTripper{next: rt, headers: headers}
	}
	return &http.Client{Transport: rt}, nil
}

// =============================================================================
// RoundTripper 装饰器
// =============================================================================

type headerRoundTripper struct {
	next    http.RoundTripper
	headers http.Header
}

func (h *headerRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	for k, vs := range h.headers {
		if req.Header.Get(k) != "" {
			continue
		}
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	return h.next.RoundTrip(req)
}

// readTimeoutRoundTripper 在响应体上施加空闲读取超时：
// 相邻两次 Read 间隔超过 timeout 时取消请求。
type readTimeoutRoundTripper struct {
	next    http.RoundTripper
	timeout time.Duration
}

func (r *readTimeoutRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx, cancel := context.WithCancel(req.Context())
	resp, err := r.next.RoundTrip(req.WithContext(ctx))
	if err != nil {
		cancel()
		return nil, err
	}
	resp.Body = &idleTimeoutBody{
		rc:      resp.Body,
		timeout: r.timeout,
		timer:   time.AfterFunc(r.timeout, cancel),
		cancel:  cancel,
	}
	return resp, nil
}

type idleTimeoutBody struct {
	rc      io.ReadCloser
	timeout time.Duration
	timer   *time.Timer
	cancel  context.CancelFunc
}

func (b *idleTimeoutBody) Read(p []byte) (int, error) {
	n, err := b.rc.Read(p)
	if err == nil {
		b.timer.Reset(b.timeout)
	}
	return n, err
}

func (b *idleTimeoutBody) Close() error {
	b.timer.Stop()
	err := b.rc.Close()
	b.cancel()
	return err
}
