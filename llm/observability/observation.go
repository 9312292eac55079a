package observability

import (
	"context"
	"sync"
	"time"
)

// Observation 一次模型调用的观测上下文
type Observation struct {
	Name            string
	ContextualName  string
	LowCardinality  map[string]string
	HighCardinality map[string]string

	Start    time.Time
	Duration time.Duration
	Err      error

	PromptTokens     int
	CompletionTokens int

	// 供 Handler 在 OnStart/OnStop 之间传递私有状态
	mu    sync.Mutex
	state map[any]any
}

// Put 保存 handler 私有状态
func (o *Observation) Put(key, value any) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state == nil {
		o.state = make(map[any]any)
	}
	o.state[key] = value
}

// Get 读取 handler 私有状态
func (o *Observation) Get(key any) (any, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	v, ok := o.state[key]
	return v, ok
}

// Status 返回 "success" 或 "error"
func (o *Observation) Status() string {
	if o.Err != nil {
		return "error"
	}
	return "success"
}

// Handler 观测处理器：追踪、指标等
type Handler interface {
	OnStart(ctx context.Context, o *Observation) context.Context
	OnStop(ctx context.Context, o *Observation)
}

// Registry 观测注册表，模型通过它开始/结束一次观测。
type Registry interface {
	Start(ctx context.Context, o *Observation) context.Context
	Stop(ctx context.Context, o *Observation)
	// IsNoop 为 true 时模型可以跳过构造 Observation
	IsNoop() bool
}

// =============================================================================
// Noop
// =============================================================================

type noopRegistry struct{}

// Noop 不做任何事的注册表，未配置观测时使用
var Noop Registry = noopRegistry{}

func (noopRegistry) Start(ctx context.Context, _ *Observation) context.Context { return ctx }
func (noopRegistry) Stop(context.Context, *Observation)                        {}
func (noopRegistry) IsNoop() bool                                              { return true }

// =============================================================================
// HandlerRegistry
// =============================================================================

// HandlerRegistry 依次分发给已注册 Handler 的注册表
type HandlerRegistry struct {
	mu       sync.RWMutex
	handlers []Handler
}

// NewRegistry 创建注册表
func NewRegistry(handlers ...Handler) *HandlerRegistry {
	return &HandlerRegistry{handlers: handlers}
}

// AddHandler 追加处理器
func (r *HandlerRegistry) AddHandler(h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers = append(r.handlers, h)
}

// Start 实现 Registry
func (r *HandlerRegistry) Start(ctx context.Context, o *Observation) context.Context {
	o.Start = time.Now()
	for _, h := range r.snapshot() {
		ctx = h.OnStart(ctx, o)
	}
	return ctx
}

// Stop 实现 Registry，按注册的逆序调用
func (r *HandlerRegistry) Stop(ctx context.Context, o *Observation) {
	if o.Duration == 0 && !o.Start.IsZero() {
		o.Duration = time.Since(o.Start)
	}
	hs := r.snapshot()
	for i := len(hs) - 1; i >= 0; i-- {
		hs[i].OnStop(ctx, o)
	}
}

// IsNoop 实现 Registry
func (r *HandlerRegistry) IsNoop() bool {
	return len(r.snapshot()) == 0
}

func (r *HandlerRegistry) snapshot() []Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Handler(nil), r.handlers...)
}

// Observe 在一次观测中执行 fn。registry 为 nil 或 noop 时直接执行。
// fn 可以在返回前把 token 用量写入 Observation。
func Observe[T any](ctx context.Context, registry Registry, o *Observation, fn func(ctx context.Context) (T, error)) (T, error) {
	if registry == nil || registry.IsNoop() {
		return fn(ctx)
	}
	ctx = registry.Start(ctx, o)
	res, err := fn(ctx)
	o.Err = err
	registry.Stop(ctx, o)
	return res, err
}
