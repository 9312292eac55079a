package image

import (
	"context"
	"slices"

	"github.com/BaSui01/dashscope-starter/llm/providers/dashscope"
	"github.com/BaSui01/dashscope-starter/llm/retry"
	"github.com/BaSui01/dashscope-starter/types"
	"go.uber.org/zap"
)

// Model DashScope 图像模型. 生成以异步任务进行：提交后轮询直至结束.
type Model struct {
	api      *dashscope.ImageAPI
	defaults Options
	retryer  retry.Retryer
	logger   *zap.Logger
}

var _ Provider = (*Model)(nil)

// NewModel 创建图像模型.
func NewModel(api *dashscope.ImageAPI, opts Options, policy *retry.RetryPolicy, logger *zap.Logger) *Model {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "dashscope_image_model"))
	return &Model{
		api:      api,
		defaults: opts,
		retryer:  retry.NewBackoffRetryer(policy, logger),
		logger:   logger,
	}
}

func (m *Model) Name() string             { return "dashscope-image" }
func (m *Model) SupportedSizes() []string { return slices.Clone(supportedSizes) }
func (m *Model) DefaultOptions() Options  { return m.defaults }
func (m *Model) API() *dashscope.ImageAPI { return m.api }

// Generate 提交生成任务并等待结果. 只有提交阶段按策略重试，
// 轮询阶段的失败直接返回.
func (m *Model) Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error) {
	if req == nil || req.Prompt == "" {
		return nil, types.NewError(types.ErrInvalidRequest, "prompt is required")
	}
	opts := m.defaults.Merge(req.Options)
	if opts.Size != "" && !slices.Contains(supportedSizes, opts.Size) {
		m.logger.Warn("size not in supported list, passing through", zap.String("size", opts.Size))
	}

	taskID, err := retry.DoWithResultTyped(m.retryer, ctx, func() (string, error) {
		return m.api.Submit(ctx, dashscope.ImageRequest{
			Model:          opts.Model,
			Prompt:         req.Prompt,
			NegativePrompt: opts.NegativePrompt,
			RefImage:       opts.RefImage,
			Style:          opts.Style,
			Size:           opts.Size,
			N:              opts.N,
			Seed:           opts.Seed,
		})
	})
	if err != nil {
		return nil, err
	}
	m.logger.Debug("image task submitted", zap.String("task_id", taskID), zap.String("model", opts.Model))

	resp, err := m.api.Wait(ctx, taskID)
	if err != nil {
		return nil, err
	}

	out := &GenerateResponse{TaskID: resp.TaskID, Model: opts.Model}
	for _, r := range resp.Results {
		if r.URL != "" {
			out.Images = append(out.Images, ImageData{URL: r.URL})
			continue
		}
		out.Rejected = append(out.Rejected, Rejection{Code: r.Code, Message: r.Message})
	}
	out.Usage.ImagesGenerated = resp.ImageCount
	if out.Usage.ImagesGenerated == 0 {
		out.Usage.ImagesGenerated = len(out.Images)
	}
	return out, nil
}

// Call 以单个文本提示生成图像.
func (m *Model) Call(ctx context.Context, prompt string) (*GenerateResponse, error) {
	return m.Generate(ctx, &GenerateRequest{Prompt: prompt})
}
