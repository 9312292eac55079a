package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net"
	"time"

	"github.com/BaSui01/dashscope-starter/types"
	"go.uber.org/zap"
)

// RetryPolicy 定义模型调用的重试策略
// 对应 spring.ai.retry.* 配置：总尝试次数 + 指数退避 + 客户端错误开关
type RetryPolicy struct {
	MaxAttempts     int                                               // 总尝试次数（含首次），<=1 表示不重试
	InitialInterval time.Duration                                     // 初始退避间隔
	MaxInterval     time.Duration                                     // 最大退避间隔
	Multiplier      float64                                           // 退避倍数
	Jitter          bool                                              // 是否添加 ±25% 随机抖动
	OnClientErrors  bool                                              // 4xx 错误是否也重试
	ShouldRetry     func(err error) bool                              // 自定义判定，覆盖默认判定
	OnRetry         func(attempt int, err error, delay time.Duration) // 重试回调
}

// DefaultRetryPolicy 返回与 spring.ai.retry 默认值一致的策略
func DefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:     10,
		InitialInterval: 2 * time.Second,
		MaxInterval:     3 * time.Minute,
		Multiplier:      5,
	}
}

// Retryer 重试器接口
type Retryer interface {
	// Do 执行函数，失败时根据策略重试
	Do(ctx context.Context, fn func() error) error

	// DoWithResult 执行函数并返回结果，失败时根据策略重试
	DoWithResult(ctx context.Context, fn func() (any, error)) (any, error)
}

type backoffRetryer struct {
	policy RetryPolicy
	logger *zap.Logger
}

// NewBackoffRetryer 创建指数退避重试器。policy 会被复制，之后修改原值不影响重试器。
func NewBackoffRetryer(policy *RetryPolicy, logger *zap.Logger) Retryer {
	if policy == nil {
		policy = DefaultRetryPolicy()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	p := *policy
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.InitialInterval <= 0 {
		p.InitialInterval = 2 * time.Second
	}
	if p.MaxInterval < p.InitialInterval {
		p.MaxInterval = p.InitialInterval
	}
	if p.Multiplier < 1.0 {
		p.Multiplier = 1.0
	}

	return &backoffRetryer{policy: p, logger: logger}
}

// Do 实现 Retryer.Do
func (r *backoffRetryer) Do(ctx context.Context, fn func() error) error {
	_, err := r.DoWithResult(ctx, func() (any, error) {
		return nil, fn()
	})
	return err
}

// DoWithResult 实现 Retryer.DoWithResult
func (r *backoffRetryer) DoWithResult(ctx context.Context, fn func() (any, error)) (any, error) {
	var lastErr error

	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := r.calculateDelay(attempt - 1)

			r.logger.Debug("retrying model call",
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", r.policy.MaxAttempts),
				zap.Duration("delay", delay),
				zap.Error(lastErr),
			)
			if r.policy.OnRetry != nil {
				r.policy.OnRetry(attempt, lastErr, delay)
			}

			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, fmt.Errorf("retry canceled: %w", ctx.Err())
			case <-timer.C:
			}
		}

		result, err := fn()
		if err == nil {
			if attempt > 1 {
				r.logger.Info("retry succeeded", zap.Int("attempt", attempt))
			}
			return result, nil
		}
		lastErr = err

		if !r.isRetryable(err) {
			return nil, err
		}
	}

	r.logger.Warn("retry attempts exhausted",
		zap.Int("attempts", r.policy.MaxAttempts),
		zap.Error(lastErr),
	)
	if r.policy.MaxAttempts == 1 {
		return nil, lastErr
	}
	return nil, fmt.Errorf("failed after %d attempts: %w", r.policy.MaxAttempts, lastErr)
}

// calculateDelay 指数退避：initial * multiplier^(n-1)，上限 MaxInterval
func (r *backoffRetryer) calculateDelay(n int) time.Duration {
	delay := float64(r.policy.InitialInterval) * math.Pow(r.policy.Multiplier, float64(n-1))
	if delay > float64(r.policy.MaxInterval) {
		delay = float64(r.policy.MaxInterval)
	}

	if r.policy.Jitter {
		jitter := delay * 0.25
		delay = delay + (rand.Float64()*2-1)*jitter
	}
	if delay < float64(r.policy.InitialInterval) {
		delay = float64(r.policy.InitialInterval)
	}
	return time.Duration(delay)
}

func (r *backoffRetryer) isRetryable(err error) bool {
	if r.policy.ShouldRetry != nil {
		return r.policy.ShouldRetry(err)
	}
	return IsTransient(err, r.policy.OnClientErrors)
}

// IsTransient 默认的可重试判定：
//   - context 取消/超时不重试
//   - *types.Error 按 Retryable 标记；onClientErrors 为 true 时 4xx 也重试
//   - 网络错误重试
//   - 被 WrapRetryable 包装的错误重试
func IsTransient(err error, onClientErrors bool) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if IsRetryableError(err) {
		return true
	}

	var upstream *types.Error
	if errors.As(err, &upstream) {
		if upstream.Retryable {
			return true
		}
		return onClientErrors && upstream.HTTPStatus >= 400 && upstream.HTTPStatus < 500
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}

// RetryableError 显式标记为可重试的错误
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// IsRetryableError 检查错误是否被 WrapRetryable 包装。
// 与 types.IsRetryable 不同：后者检查 *types.Error 的 Retryable 字段。
func IsRetryableError(err error) bool {
	var retryableErr *RetryableError
	return errors.As(err, &retryableErr)
}

// WrapRetryable 将错误包装为可重试错误
func WrapRetryable(err error) error {
	if err == nil {
		return nil
	}
	return &RetryableError{Err: err}
}
