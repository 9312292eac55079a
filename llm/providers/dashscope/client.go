package dashscope

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/BaSui01/dashscope-starter/transport"
	"go.uber.org/zap"
)

const (
	// DefaultHTTPBaseURL is the default HTTP endpoint.
	DefaultHTTPBaseURL = "https://dashscope.aliyuncs.com"

	// DefaultWebSocketURL is the duplex inference endpoint used by speech synthesis.
	DefaultWebSocketURL = "wss://dashscope.aliyuncs.com/api-ws/v1/inference"

	compatibleModePath = "/compatible-mode/v1/"
	rerankPath         = "/api/v1/services/rerank/text-rerank/text-rerank"
	imageSynthesisPath = "/api/v1/services/aigc/text2image/image-synthesis"
	transcriptionPath  = "/api/v1/services/audio/asr/transcription"
	taskPath           = "/api/v1/tasks/"

	headerWorkspace = "X-DashScope-WorkSpace"
	headerAsync     = "X-DashScope-Async"
	headerSSE       = "X-DashScope-SSE"
)

var errMissingAPIKey = errors.New("dashscope: API key is required")

// clientConfig holds the client configuration.
type clientConfig struct {
	workspaceID  string
	builder      *transport.ClientBuilder
	asyncBuilder *transport.AsyncClientBuilder
	errorHandler transport.ResponseErrorHandler
	logger       *zap.Logger
	pollInterval time.Duration
	wsURL        string
}

// Option configures an API client.
type Option func(*clientConfig)

// WithWorkspace sets the workspace ID for resource isolation.
func WithWorkspace(workspaceID string) Option {
	return func(c *clientConfig) {
		c.workspaceID = workspaceID
	}
}

// WithClientBuilder sets the builder for the synchronous HTTP client.
func WithClientBuilder(b *transport.ClientBuilder) Option {
	return func(c *clientConfig) {
		c.builder = b
	}
}

// WithAsyncClientBuilder sets the builder for the streaming HTTP client.
func WithAsyncClientBuilder(b *transport.AsyncClientBuilder) Option {
	return func(c *clientConfig) {
		c.asyncBuilder = b
	}
}

// WithErrorHandler sets the handler that converts failed responses into errors.
func WithErrorHandler(h transport.ResponseErrorHandler) Option {
	return func(c *clientConfig) {
		c.errorHandler = h
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *clientConfig) {
		c.logger = logger
	}
}

// WithPollInterval sets the minimum interval between task status queries.
func WithPollInterval(d time.Duration) Option {
	return func(c *clientConfig) {
		c.pollInterval = d
	}
}

// WithWebSocketURL sets the duplex inference endpoint.
func WithWebSocketURL(url string) Option {
	return func(c *clientConfig) {
		c.wsURL = url
	}
}

// base is shared by every HTTP-backed API client.
type base struct {
	baseURL      string
	apiKey       string
	workspaceID  string
	client       *http.Client
	asyncClient  *http.Client
	settings     transport.RequestFactorySettings
	errorHandler transport.ResponseErrorHandler
	logger       *zap.Logger
	pollInterval time.Duration
}

func newBase(baseURL, apiKey, component string, opts []Option) (*base, error) {
	if apiKey == "" {
		return nil, errMissingAPIKey
	}
	if baseURL == "" {
		baseURL = DefaultHTTPBaseURL
	}

	cfg := &clientConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.builder == nil {
		cfg.builder = transport.NewClientBuilder()
	}
	if cfg.asyncBuilder == nil {
		cfg.asyncBuilder = transport.NewAsyncClientBuilder()
	}
	if cfg.errorHandler == nil {
		cfg.errorHandler = transport.NewDefaultResponseErrorHandler()
	}
	if cfg.logger == nil {
		cfg.logger = zap.NewNop()
	}

	client, err := cfg.builder.Build()
	if err != nil {
		return nil, err
	}
	asyncClient, err := cfg.asyncBuilder.Build()
	if err != nil {
		return nil, err
	}

	return &base{
		baseURL:      strings.TrimRight(baseURL, "/"),
		apiKey:       apiKey,
		workspaceID:  cfg.workspaceID,
		client:       client,
		asyncClient:  asyncClient,
		settings:     cfg.builder.Settings(),
		errorHandler: cfg.errorHandler,
		logger:       cfg.logger.With(zap.String("component", component)),
		pollInterval: cfg.pollInterval,
	}, nil
}

// BaseURL returns the effective base URL.
func (b *base) BaseURL() string { return b.baseURL }

// APIKey returns the API key the client authenticates with.
func (b *base) APIKey() string { return b.apiKey }

// WorkspaceID returns the workspace ID, empty when unscoped.
func (b *base) WorkspaceID() string { return b.workspaceID }

// Settings returns the request-factory settings the sync client was built with.
func (b *base) Settings() transport.RequestFactorySettings { return b.settings }

func (b *base) url(path string) string {
	return b.baseURL + path
}

func (b *base) setHeaders(req *http.Request, extra map[string]string) {
	req.Header.Set("Authorization", "Bearer "+b.apiKey)
	req.Header.Set("Content-Type", "application/json")
	if b.workspaceID != "" {
		req.Header.Set(headerWorkspace, b.workspaceID)
	}
	for k, v := range extra {
		req.Header.Set(k, v)
	}
}

// send issues the request and returns the response when the error handler accepts it.
func (b *base) send(ctx context.Context, client *http.Client, method, path string, body any, extra map[string]string) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("dashscope: marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, b.url(path), reader)
	if err != nil {
		return nil, fmt.Errorf("dashscope: create request: %w", err)
	}
	b.setHeaders(req, extra)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("dashscope: %s %s: %w", method, path, err)
	}
	if b.errorHandler.HasError(resp) {
		defer resp.Body.Close()
		return nil, b.errorHandler.HandleError(resp)
	}
	return resp, nil
}

// doJSON sends body as JSON and decodes the response into out.
func (b *base) doJSON(ctx context.Context, method, path string, body, out any, extra map[string]string) error {
	resp, err := b.send(ctx, b.client, method, path, body, extra)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("dashscope: decode response: %w", err)
	}
	return nil
}

// Usage reports token consumption.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}
