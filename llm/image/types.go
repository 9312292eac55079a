// 包图像提供 DashScope 文生图模型（通义万相）.
package image

import (
	"context"
)

// 默认图像参数
const (
	DefaultModel = "wanx-v1"
	DefaultSize  = "1024*1024"
)

// supportedSizes wanx-v1 支持的输出尺寸
var supportedSizes = []string{"1024*1024", "720*1280", "768*1152", "1280*720"}

// Options 图像模型参数，绑定自 spring.ai.dashscope.image.options.
type Options struct {
	Model          string `yaml:"model"`
	N              *int   `yaml:"n"` // Number of images
	Size           string `yaml:"size"`
	Style          string `yaml:"style"` // <auto>, <photography>, <anime> ...
	NegativePrompt string `yaml:"negative-prompt"`
	RefImage       string `yaml:"ref-image"`
	Seed           *int   `yaml:"seed"`
}

// DefaultOptions 返回默认图像参数.
func DefaultOptions() Options {
	return Options{Model: DefaultModel}
}

// Merge 用 override 中已设置的字段覆盖 o.
func (o Options) Merge(override *Options) Options {
	if override == nil {
		return o
	}
	out := o
	if override.Model != "" {
		out.Model = override.Model
	}
	if override.N != nil {
		out.N = override.N
	}
	if override.Size != "" {
		out.Size = override.Size
	}
	if override.Style != "" {
		out.Style = override.Style
	}
	if override.NegativePrompt != "" {
		out.NegativePrompt = override.NegativePrompt
	}
	if override.RefImage != "" {
		out.RefImage = override.RefImage
	}
	if override.Seed != nil {
		out.Seed = override.Seed
	}
	return out
}

// 生成请求代表图像生成请求 。
type GenerateRequest struct {
	Prompt  string
	Options *Options
}

// 生成响应(Generate Response)代表图像生成的响应.
// Images 只包含成功生成的图像，被拒绝的条目记录在 Rejected 中.
type GenerateResponse struct {
	TaskID   string
	Model    string
	Images   []ImageData
	Rejected []Rejection
	Usage    ImageUsage
}

// ImageData代表生成的图像.
type ImageData struct {
	URL string
}

// Rejection 单张未生成图像的原因（如内容审核未通过）.
type Rejection struct {
	Code    string
	Message string
}

// ImageUsage代表使用统计.
type ImageUsage struct {
	ImagesGenerated int
}

// 提供方定义了图像生成提供者接口.
type Provider interface {
	// 从文本提示生成图像 。
	Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error)

	// 名称返回提供者名称 。
	Name() string

	// 支持的返回大小支持的图像大小 。
	SupportedSizes() []string
}
