package dashscope

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/BaSui01/dashscope-starter/types"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Task statuses reported by the task service.
const (
	TaskPending   = "PENDING"
	TaskRunning   = "RUNNING"
	TaskSucceeded = "SUCCEEDED"
	TaskFailed    = "FAILED"
	TaskCanceled  = "CANCELED"
	TaskUnknown   = "UNKNOWN"
)

// DefaultPollInterval is the minimum interval between two task status queries.
const DefaultPollInterval = time.Second

type taskEnvelope struct {
	RequestID string          `json:"request_id"`
	Output    json.RawMessage `json:"output"`
	Usage     json.RawMessage `json:"usage,omitempty"`
}

type taskStatus struct {
	TaskID     string `json:"task_id"`
	TaskStatus string `json:"task_status"`
	Code       string `json:"code,omitempty"`
	Message    string `json:"message,omitempty"`
}

// poller submits asynchronous tasks and waits for them to settle.
type poller struct {
	*base
	interval time.Duration
}

func (p *poller) submit(ctx context.Context, path string, body any) (string, error) {
	var env taskEnvelope
	if err := p.doJSON(ctx, http.MethodPost, path, body, &env, map[string]string{headerAsync: "enable"}); err != nil {
		return "", err
	}
	var st taskStatus
	if err := json.Unmarshal(env.Output, &st); err != nil {
		return "", fmt.Errorf("dashscope: decode task output: %w", err)
	}
	if st.TaskID == "" {
		return "", types.NewError(types.ErrUpstreamError, "task id missing in response").WithProvider("dashscope")
	}
	p.logger.Debug("task submitted", zap.String("task_id", st.TaskID), zap.String("status", st.TaskStatus))
	return st.TaskID, nil
}

// wait polls the task until it reaches a terminal status and returns its envelope.
func (p *poller) wait(ctx context.Context, taskID string) (*taskEnvelope, error) {
	interval := p.interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	limiter := rate.NewLimiter(rate.Every(interval), 1)

	for {
		if err := limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("dashscope: wait task %s: %w", taskID, err)
		}

		var env taskEnvelope
		if err := p.doJSON(ctx, http.MethodGet, taskPath+taskID, nil, &env, nil); err != nil {
			return nil, err
		}
		var st taskStatus
		if err := json.Unmarshal(env.Output, &st); err != nil {
			return nil, fmt.Errorf("dashscope: decode task output: %w", err)
		}

		switch st.TaskStatus {
		case TaskSucceeded:
			return &env, nil
		case TaskFailed, TaskCanceled, TaskUnknown:
			e := types.NewError(types.ErrTaskFailed, fmt.Sprintf("task %s %s: %s %s", taskID, st.TaskStatus, st.Code, st.Message)).
				WithProvider("dashscope")
			e.RequestID = env.RequestID
			return nil, e
		default:
			p.logger.Debug("task pending", zap.String("task_id", taskID), zap.String("status", st.TaskStatus))
		}
	}
}
