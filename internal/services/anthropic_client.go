package services

import (
	"context"
	"strings"
	"sync"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"apple2chat/internal/logger"
	"apple2chat/pkg/chattypes"
)

// defaultAnthropicMaxTokens is used when the model config sets no max_tokens;
// the Messages API requires one.
const defaultAnthropicMaxTokens = 1024

// AnthropicClient implements the LLMClient interface for Anthropic's Messages API.
// The SDK client is created lazily on the first request; instances are
// shared across sessions, so setup is guarded by mu.
type AnthropicClient struct {
	options ProviderOptions
	mu      sync.Mutex
	client  *anthropic.Client
}

// NewAnthropicClient creates a new Anthropic client with lazy initialization.
func NewAnthropicClient(opts ProviderOptions) *AnthropicClient {
	return &AnthropicClient{options: opts}
}

// GetProviderName returns the provider name for this client.
func (c *AnthropicClient) GetProviderName() string {
	return "anthropic"
}

// IsConfigured returns true if the client has a valid API key.
func (c *AnthropicClient) IsConfigured() bool {
	return c.options.APIKey != ""
}

// initializeClientIfNeeded initializes the Anthropic client if it hasn't been initialized yet.
func (c *AnthropicClient) initializeClientIfNeeded() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil {
		return nil
	}

	if c.options.APIKey == "" {
		return chattypes.NewConfigurationError("anthropic API key not configured")
	}

	options := []option.RequestOption{option.WithAPIKey(c.options.APIKey), option.WithMaxRetries(0)}
	if c.options.BaseURL != "" {
		options = append(options, option.WithBaseURL(c.options.BaseURL))
	}
	if c.options.HTTPClient != nil {
		options = append(options, option.WithHTTPClient(c.options.HTTPClient))
	}

	client := anthropic.NewClient(options...)
	c.client = &client
	logger.Debug("Anthropic client initialized", "provider", "anthropic")
	return nil
}

// SendChatCompletion sends a chat completion request to Anthropic.
func (c *AnthropicClient) SendChatCompletion(ctx context.Context, req *chattypes.CompletionRequest) (string, error) {
	logger.Debug("Anthropic SendChatCompletion starting", "model", req.Model.BaseModel)

	if err := c.initializeClientIfNeeded(); err != nil {
		return "", err
	}

	message, err := c.client.Messages.New(ctx, c.buildParams(req))
	if err != nil {
		logger.Error("Anthropic request failed", "error", err)
		return "", wrapProviderError("anthropic", "completion request failed", err)
	}

	var content strings.Builder
	for _, block := range message.Content {
		content.WriteString(block.Text)
	}
	if content.Len() == 0 {
		return "", emptyResponseError("anthropic")
	}

	logger.Debug("Anthropic response received", "content_length", content.Len())
	return content.String(), nil
}

// StreamChatCompletion streams text deltas from the Messages API.
func (c *AnthropicClient) StreamChatCompletion(ctx context.Context, req *chattypes.CompletionRequest) (<-chan chattypes.StreamChunk, error) {
	if err := c.initializeClientIfNeeded(); err != nil {
		return nil, err
	}

	stream := c.client.Messages.NewStreaming(ctx, c.buildParams(req))

	ch := make(chan chattypes.StreamChunk)
	go func() {
		defer close(ch)
		defer func() { _ = stream.Close() }()

		for stream.Next() {
			event := stream.Current()
			delta, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent)
			if !ok || delta.Delta.Text == "" {
				continue
			}
			if !sendChunk(ctx, ch, chattypes.StreamChunk{Content: delta.Delta.Text}) {
				return
			}
		}

		if err := stream.Err(); err != nil {
			logger.Error("Anthropic streaming failed", "error", err)
			sendChunk(ctx, ch, chattypes.StreamChunk{Error: wrapProviderError("anthropic", "streaming request failed", err)})
			return
		}
		sendChunk(ctx, ch, chattypes.StreamChunk{Done: true})
	}()

	return ch, nil
}

// buildParams converts a completion request into Messages API parameters.
// System turns are folded into the system prompt since the API has no system role.
func (c *AnthropicClient) buildParams(req *chattypes.CompletionRequest) anthropic.MessageNewParams {
	messages := make([]anthropic.MessageParam, 0, len(req.Messages))
	system := make([]string, 0, 1)
	if req.SystemPrompt != "" {
		system = append(system, req.SystemPrompt)
	}

	for _, msg := range req.Messages {
		switch msg.Role {
		case chattypes.RoleUser:
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		case chattypes.RoleAssistant:
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
		case chattypes.RoleSystem:
			system = append(system, msg.Content)
		}
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model.BaseModel),
		MaxTokens: defaultAnthropicMaxTokens,
		Messages:  messages,
	}
	if len(system) > 0 {
		params.System = []anthropic.TextBlockParam{{Text: strings.Join(system, "\n\n")}}
	}
	c.applyModelParameters(&params, req.Model)
	return params
}

// applyModelParameters applies model configuration parameters to the Anthropic request.
func (c *AnthropicClient) applyModelParameters(params *anthropic.MessageNewParams, modelConfig *chattypes.ModelConfig) {
	if modelConfig.Parameters == nil {
		return
	}
	if temp, ok := floatParam(modelConfig.Parameters, "temperature"); ok {
		params.Temperature = anthropic.Float(temp)
	}
	if maxTokens, ok := intParam(modelConfig.Parameters, "max_tokens"); ok && maxTokens > 0 {
		params.MaxTokens = maxTokens
	}
	if topP, ok := floatParam(modelConfig.Parameters, "top_p"); ok {
		params.TopP = anthropic.Float(topP)
	}
}
