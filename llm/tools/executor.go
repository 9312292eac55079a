package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/BaSui01/dashscope-starter/types"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ToolFunc defines the tool function signature.
type ToolFunc func(ctx context.Context, args json.RawMessage) (json.RawMessage, error)

// ToolMetadata describes tool metadata.
type ToolMetadata struct {
	Schema    types.ToolSchema // Tool JSON Schema
	RateLimit *RateLimitConfig // Rate limit config (optional)
	Timeout   time.Duration    // Execution timeout (default 30s)
}

// RateLimitConfig defines rate limit configuration.
type RateLimitConfig struct {
	MaxCalls int           // Maximum calls
	Window   time.Duration // Time window
}

// ToolCallingManager resolves tool definitions for a chat request and
// executes the tool calls returned by the model.
type ToolCallingManager interface {
	ResolveToolDefinitions(names []string) ([]types.ToolSchema, error)
	ExecuteToolCalls(ctx context.Context, calls []types.ToolCall) []types.ToolResult
}

// ====== 实现：Registry ======

// Registry 工具注册中心
type Registry struct {
	mu       sync.RWMutex
	tools    map[string]ToolFunc
	metadata map[string]ToolMetadata
	limiters map[string]*rate.Limiter
	logger   *zap.Logger
}

// NewRegistry 创建工具注册中心。
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		tools:    make(map[string]ToolFunc),
		metadata: make(map[string]ToolMetadata),
		limiters: make(map[string]*rate.Limiter),
		logger:   logger,
	}
}

func (r *Registry) Register(name string, fn ToolFunc, metadata ToolMetadata) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %s already registered", name)
	}

	if metadata.Schema.Name == "" {
		metadata.Schema.Name = name
	}
	if metadata.Schema.Name != name {
		return fmt.Errorf("tool name mismatch: schema.Name=%s, register name=%s", metadata.Schema.Name, name)
	}
	if metadata.Timeout == 0 {
		metadata.Timeout = 30 * time.Second
	}

	r.tools[name] = fn
	r.metadata[name] = metadata

	if rl := metadata.RateLimit; rl != nil && rl.MaxCalls > 0 && rl.Window > 0 {
		every := rl.Window / time.Duration(rl.MaxCalls)
		r.limiters[name] = rate.NewLimiter(rate.Every(every), rl.MaxCalls)
	}

	r.logger.Info("tool registered", zap.String("name", name), zap.Duration("timeout", metadata.Timeout))
	return nil
}

func (r *Registry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[name]; !exists {
		return fmt.Errorf("tool %s not found", name)
	}

	delete(r.tools, name)
	delete(r.metadata, name)
	delete(r.limiters, name)

	r.logger.Info("tool unregistered", zap.String("name", name))
	return nil
}

func (r *Registry) Get(name string) (ToolFunc, ToolMetadata, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	fn, ok := r.tools[name]
	if !ok {
		return nil, ToolMetadata{}, fmt.Errorf("tool %s not found", name)
	}
	return fn, r.metadata[name], nil
}

func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

func (r *Registry) allow(name string) bool {
	r.mu.RLock()
	limiter, ok := r.limiters[name]
	r.mu.RUnlock()
	if !ok {
		return true
	}
	return limiter.Allow()
}

// ====== 实现：DefaultToolCallingManager ======

// DefaultToolCallingManager 基于 Registry 的工具调用管理器
type DefaultToolCallingManager struct {
	registry *Registry
	logger   *zap.Logger
}

var _ ToolCallingManager = (*DefaultToolCallingManager)(nil)

// NewDefaultToolCallingManager 创建默认的工具调用管理器。registry 为 nil 时使用空注册中心。
func NewDefaultToolCallingManager(registry *Registry, logger *zap.Logger) *DefaultToolCallingManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if registry == nil {
		registry = NewRegistry(logger)
	}
	return &DefaultToolCallingManager{
		registry: registry,
		logger:   logger.With(zap.String("component", "tool_calling")),
	}
}

// Registry 返回底层注册中心
func (m *DefaultToolCallingManager) Registry() *Registry {
	return m.registry
}

// ResolveToolDefinitions 按名称返回工具 Schema，任一名称未注册即报错
func (m *DefaultToolCallingManager) ResolveToolDefinitions(names []string) ([]types.ToolSchema, error) {
	schemas := make([]types.ToolSchema, 0, len(names))
	for _, name := range names {
		_, meta, err := m.registry.Get(name)
		if err != nil {
			return nil, err
		}
		schemas = append(schemas, meta.Schema)
	}
	return schemas, nil
}

// ExecuteToolCalls 并发执行工具调用，结果顺序与 calls 一致
func (m *DefaultToolCallingManager) ExecuteToolCalls(ctx context.Context, calls []types.ToolCall) []types.ToolResult {
	results := make([]types.ToolResult, len(calls))

	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(idx int, c types.ToolCall) {
			defer wg.Done()
			results[idx] = m.executeOne(ctx, c)
		}(i, call)
	}
	wg.Wait()

	return results
}

func (m *DefaultToolCallingManager) executeOne(ctx context.Context, call types.ToolCall) types.ToolResult {
	start := time.Now()
	result := types.ToolResult{
		ToolCallID: call.ID,
		Name:       call.Name,
	}

	fn, meta, err := m.registry.Get(call.Name)
	if err != nil {
		result.Error = fmt.Sprintf("tool not found: %s", err.Error())
		result.Duration = time.Since(start)
		m.logger.Error("tool not found", zap.String("name", call.Name), zap.Error(err))
		return result
	}

	if !m.registry.allow(call.Name) {
		result.Error = "rate limit exceeded"
		result.Duration = time.Since(start)
		m.logger.Warn("rate limit exceeded", zap.String("name", call.Name))
		return result
	}

	if len(call.Arguments) > 0 && !json.Valid(call.Arguments) {
		result.Error = "invalid arguments: not valid JSON"
		result.Duration = time.Since(start)
		m.logger.Error("invalid tool arguments", zap.String("name", call.Name))
		return result
	}

	execCtx, cancel := context.WithTimeout(ctx, meta.Timeout)
	defer cancel()

	type outcome struct {
		res json.RawMessage
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := fn(execCtx, call.Arguments)
		done <- outcome{res, err}
	}()

	select {
	case o := <-done:
		result.Duration = time.Since(start)
		if o.err != nil {
			result.Error = o.err.Error()
			m.logger.Error("tool execution failed",
				zap.String("name", call.Name),
				zap.Error(o.err),
				zap.Duration("duration", result.Duration))
		} else {
			result.Result = o.res
			m.logger.Debug("tool executed",
				zap.String("name", call.Name),
				zap.Duration("duration", result.Duration))
		}
	case <-execCtx.Done():
		result.Error = fmt.Sprintf("execution timeout after %s", meta.Timeout)
		result.Duration = time.Since(start)
		m.logger.Error("tool execution timeout",
			zap.String("name", call.Name),
			zap.Duration("timeout", meta.Timeout))
	}

	return result
}
