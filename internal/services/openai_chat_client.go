package services

import (
	"context"
	"fmt"
	"sync"

	"apple2chat/internal/logger"
	"apple2chat/pkg/chattypes"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// GroqBaseURL is Groq's OpenAI-compatible endpoint.
const GroqBaseURL = "https://api.groq.com/openai/v1"

// OpenAIClient implements the LLMClient interface for OpenAI's chat completions API
// and for OpenAI-compatible providers such as Groq.
// The SDK client is created lazily on the first request; instances are
// shared across sessions, so setup is guarded by mu.
type OpenAIClient struct {
	provider string
	options  ProviderOptions

	mu     sync.Mutex
	client *openai.Client
}

// NewOpenAIClient creates a client for OpenAI itself.
func NewOpenAIClient(opts ProviderOptions) *OpenAIClient {
	return &OpenAIClient{provider: "openai", options: opts}
}

// NewGroqClient creates a client for Groq's OpenAI-compatible endpoint.
func NewGroqClient(opts ProviderOptions) *OpenAIClient {
	if opts.BaseURL == "" {
		opts.BaseURL = GroqBaseURL
	}
	return &OpenAIClient{provider: "groq", options: opts}
}

// GetProviderName returns the provider name for this client.
func (c *OpenAIClient) GetProviderName() string {
	return c.provider
}

// IsConfigured returns true if the client has a valid API key.
func (c *OpenAIClient) IsConfigured() bool {
	return c.options.APIKey != ""
}

// initializeClientIfNeeded initializes the SDK client if it hasn't been initialized yet.
func (c *OpenAIClient) initializeClientIfNeeded() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil {
		return nil
	}

	if c.options.APIKey == "" {
		return chattypes.NewConfigurationError("%s API key not configured", c.provider)
	}

	options := []option.RequestOption{option.WithAPIKey(c.options.APIKey)}
	if c.options.BaseURL != "" {
		options = append(options, option.WithBaseURL(c.options.BaseURL))
	}
	if c.options.HTTPClient != nil {
		options = append(options, option.WithHTTPClient(c.options.HTTPClient))
	}
	// Retries are not part of the relay contract.
	options = append(options, option.WithMaxRetries(0))

	client := openai.NewClient(options...)
	c.client = &client
	logger.Debug("OpenAI client initialized", "provider", c.provider, "base_url", c.options.BaseURL)
	return nil
}

// SendChatCompletion sends a chat completion request and returns the reply text.
func (c *OpenAIClient) SendChatCompletion(ctx context.Context, req *chattypes.CompletionRequest) (string, error) {
	logger.Debug("SendChatCompletion starting", "provider", c.provider, "model", req.Model.BaseModel)

	if err := c.initializeClientIfNeeded(); err != nil {
		return "", err
	}

	params := c.buildParams(req)
	completion, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		logger.Error("Completion request failed", "provider", c.provider, "error", err)
		return "", wrapProviderError(c.provider, "completion request failed", err)
	}

	if len(completion.Choices) == 0 {
		return "", chattypes.NewExternalServiceError(c.provider, "no response choices returned", nil)
	}

	content := completion.Choices[0].Message.Content
	if content == "" {
		return "", emptyResponseError(c.provider)
	}

	logger.Debug("Completion received", "provider", c.provider, "content_length", len(content))
	return content, nil
}

// StreamChatCompletion streams the reply as content deltas.
func (c *OpenAIClient) StreamChatCompletion(ctx context.Context, req *chattypes.CompletionRequest) (<-chan chattypes.StreamChunk, error) {
	if err := c.initializeClientIfNeeded(); err != nil {
		return nil, err
	}

	params := c.buildParams(req)
	stream := c.client.Chat.Completions.NewStreaming(ctx, params)

	ch := make(chan chattypes.StreamChunk)
	go func() {
		defer close(ch)
		defer func() { _ = stream.Close() }()

		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 {
				continue
			}
			if delta := chunk.Choices[0].Delta.Content; delta != "" {
				if !sendChunk(ctx, ch, chattypes.StreamChunk{Content: delta}) {
					return
				}
			}
		}

		if err := stream.Err(); err != nil {
			logger.Error("Streaming request failed", "provider", c.provider, "error", err)
			sendChunk(ctx, ch, chattypes.StreamChunk{Error: wrapProviderError(c.provider, "streaming request failed", err)})
			return
		}
		sendChunk(ctx, ch, chattypes.StreamChunk{Done: true})
	}()

	return ch, nil
}

// buildParams converts a completion request into SDK parameters.
func (c *OpenAIClient) buildParams(req *chattypes.CompletionRequest) openai.ChatCompletionNewParams {
	messages := c.convertMessagesToOpenAI(req.Messages)
	if req.SystemPrompt != "" {
		messages = append([]openai.ChatCompletionMessageParamUnion{openai.SystemMessage(req.SystemPrompt)}, messages...)
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(req.Model.BaseModel),
		Messages: messages,
	}
	c.applyModelParameters(&params, req.Model)
	return params
}

// convertMessagesToOpenAI converts transcript turns to OpenAI format.
func (c *OpenAIClient) convertMessagesToOpenAI(turns []chattypes.Message) []openai.ChatCompletionMessageParamUnion {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(turns))
	for _, msg := range turns {
		switch msg.Role {
		case chattypes.RoleUser:
			messages = append(messages, openai.UserMessage(msg.Content))
		case chattypes.RoleAssistant:
			messages = append(messages, openai.AssistantMessage(msg.Content))
		case chattypes.RoleSystem:
			messages = append(messages, openai.SystemMessage(msg.Content))
		}
	}
	return messages
}

// applyModelParameters applies model configuration parameters to the request.
func (c *OpenAIClient) applyModelParameters(params *openai.ChatCompletionNewParams, modelConfig *chattypes.ModelConfig) {
	if modelConfig.Parameters == nil {
		return
	}
	if temp, ok := floatParam(modelConfig.Parameters, "temperature"); ok {
		params.Temperature = openai.Float(temp)
	}
	if maxTokens, ok := intParam(modelConfig.Parameters, "max_tokens"); ok && maxTokens > 0 {
		params.MaxTokens = openai.Int(maxTokens)
	}
	if topP, ok := floatParam(modelConfig.Parameters, "top_p"); ok {
		params.TopP = openai.Float(topP)
	}
}

// String identifies the client in logs without exposing the key.
func (c *OpenAIClient) String() string {
	return fmt.Sprintf("OpenAIClient(%s)", c.provider)
}
