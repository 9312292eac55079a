package dashscope

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/BaSui01/dashscope-starter/types"
)

// ImageAPI is the DashScope text-to-image client. Generation runs as an
// asynchronous task that is polled until it settles.
type ImageAPI struct {
	*poller
}

// NewImageAPI creates the image client.
func NewImageAPI(baseURL, apiKey string, opts ...Option) (*ImageAPI, error) {
	b, err := newBase(baseURL, apiKey, "dashscope_image_api", opts)
	if err != nil {
		return nil, err
	}
	return &ImageAPI{poller: &poller{base: b, interval: b.pollInterval}}, nil
}

// ImageRequest is a text-to-image request.
type ImageRequest struct {
	Model          string
	Prompt         string
	NegativePrompt string
	RefImage       string
	Style          string
	Size           string
	N              *int
	Seed           *int
}

// ImageResult is one generated image, or the reason it was not produced.
type ImageResult struct {
	URL     string `json:"url,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// ImageResponse is a settled image task.
type ImageResponse struct {
	TaskID     string
	RequestID  string
	Results    []ImageResult
	ImageCount int
}

type imageBody struct {
	Model string `json:"model"`
	Input struct {
		Prompt         string `json:"prompt"`
		NegativePrompt string `json:"negative_prompt,omitempty"`
		RefImg         string `json:"ref_img,omitempty"`
	} `json:"input"`
	Parameters struct {
		Style string `json:"style,omitempty"`
		Size  string `json:"size,omitempty"`
		N     *int   `json:"n,omitempty"`
		Seed  *int   `json:"seed,omitempty"`
	} `json:"parameters"`
}

// Submit starts an image task and returns its id.
func (a *ImageAPI) Submit(ctx context.Context, req ImageRequest) (string, error) {
	if req.Prompt == "" {
		return "", types.NewError(types.ErrInvalidRequest, "prompt is required")
	}

	var body imageBody
	body.Model = req.Model
	body.Input.Prompt = req.Prompt
	body.Input.NegativePrompt = req.NegativePrompt
	body.Input.RefImg = req.RefImage
	body.Parameters.Style = req.Style
	body.Parameters.Size = req.Size
	body.Parameters.N = req.N
	body.Parameters.Seed = req.Seed

	return a.submit(ctx, imageSynthesisPath, body)
}

// Wait polls an image task until it settles.
func (a *ImageAPI) Wait(ctx context.Context, taskID string) (*ImageResponse, error) {
	env, err := a.wait(ctx, taskID)
	if err != nil {
		return nil, err
	}

	var out struct {
		Results []ImageResult `json:"results"`
	}
	if err := json.Unmarshal(env.Output, &out); err != nil {
		return nil, fmt.Errorf("dashscope: decode image output: %w", err)
	}
	var usage struct {
		ImageCount int `json:"image_count"`
	}
	if len(env.Usage) > 0 {
		_ = json.Unmarshal(env.Usage, &usage)
	}

	return &ImageResponse{
		TaskID:     taskID,
		RequestID:  env.RequestID,
		Results:    out.Results,
		ImageCount: usage.ImageCount,
	}, nil
}

// Generate submits an image task and waits for it.
func (a *ImageAPI) Generate(ctx context.Context, req ImageRequest) (*ImageResponse, error) {
	taskID, err := a.Submit(ctx, req)
	if err != nil {
		return nil, err
	}
	return a.Wait(ctx, taskID)
}
