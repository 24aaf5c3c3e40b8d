package services

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"apple2chat/internal/logger"
	"apple2chat/pkg/chattypes"

	"google.golang.org/genai"
)

// GeminiClient implements the LLMClient interface for the Google Gemini API.
// The SDK client is created lazily on the first request; instances are
// shared across sessions, so setup is guarded by mu.
type GeminiClient struct {
	options ProviderOptions
	mu      sync.Mutex
	client  *genai.Client
}

// NewGeminiClient creates a new Gemini client with lazy initialization.
func NewGeminiClient(opts ProviderOptions) *GeminiClient {
	return &GeminiClient{options: opts}
}

// GetProviderName returns the provider name for this client.
func (c *GeminiClient) GetProviderName() string {
	return "gemini"
}

// IsConfigured returns true if the client has a valid API key.
func (c *GeminiClient) IsConfigured() bool {
	return c.options.APIKey != ""
}

// initializeClientIfNeeded initializes the Gemini client if it hasn't been initialized yet.
func (c *GeminiClient) initializeClientIfNeeded(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil {
		return nil
	}

	if c.options.APIKey == "" {
		return chattypes.NewConfigurationError("google API key not configured")
	}

	clientConfig := &genai.ClientConfig{
		APIKey:  c.options.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if c.options.BaseURL != "" {
		clientConfig.HTTPOptions = genai.HTTPOptions{BaseURL: c.options.BaseURL}
	}
	if c.options.HTTPClient != nil {
		clientConfig.HTTPClient = c.options.HTTPClient
	}

	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return chattypes.NewExternalServiceError("gemini", "failed to create client", err)
	}

	c.client = client
	logger.Debug("Gemini client initialized", "provider", "gemini")
	return nil
}

// SendChatCompletion sends a chat completion request to Google Gemini.
func (c *GeminiClient) SendChatCompletion(ctx context.Context, req *chattypes.CompletionRequest) (string, error) {
	logger.Debug("Gemini SendChatCompletion starting", "model", req.Model.BaseModel)

	if err := c.initializeClientIfNeeded(ctx); err != nil {
		return "", err
	}

	result, err := c.client.Models.GenerateContent(ctx, req.Model.BaseModel, c.convertMessagesToGemini(req.Messages), c.buildGenerationConfig(req))
	if err != nil {
		logger.Error("Gemini request failed", "error", err)
		return "", wrapProviderError("gemini", "completion request failed", err)
	}

	content := c.extractText(result)
	if content == "" {
		return "", emptyResponseError("gemini")
	}

	logger.Debug("Gemini response received", "content_length", len(content))
	return content, nil
}

// StreamChatCompletion streams text parts as they arrive.
func (c *GeminiClient) StreamChatCompletion(ctx context.Context, req *chattypes.CompletionRequest) (<-chan chattypes.StreamChunk, error) {
	if err := c.initializeClientIfNeeded(ctx); err != nil {
		return nil, err
	}

	contents := c.convertMessagesToGemini(req.Messages)
	config := c.buildGenerationConfig(req)

	ch := make(chan chattypes.StreamChunk)
	go func() {
		defer close(ch)

		for result, err := range c.client.Models.GenerateContentStream(ctx, req.Model.BaseModel, contents, config) {
			if err != nil {
				logger.Error("Gemini streaming failed", "error", err)
				sendChunk(ctx, ch, chattypes.StreamChunk{Error: wrapProviderError("gemini", "streaming request failed", err)})
				return
			}
			if text := c.extractText(result); text != "" {
				if !sendChunk(ctx, ch, chattypes.StreamChunk{Content: text}) {
					return
				}
			}
		}
		sendChunk(ctx, ch, chattypes.StreamChunk{Done: true})
	}()

	return ch, nil
}

// convertMessagesToGemini converts transcript turns to Gemini contents.
// Gemini names the assistant role "model"; system turns are sent as prefixed user turns.
func (c *GeminiClient) convertMessagesToGemini(turns []chattypes.Message) []*genai.Content {
	contents := make([]*genai.Content, 0, len(turns))
	for _, msg := range turns {
		var role, text string
		switch msg.Role {
		case chattypes.RoleUser:
			role, text = genai.RoleUser, msg.Content
		case chattypes.RoleAssistant:
			role, text = genai.RoleModel, msg.Content
		case chattypes.RoleSystem:
			role, text = genai.RoleUser, "System: "+msg.Content
		default:
			continue
		}
		contents = append(contents, genai.NewContentFromText(text, genai.Role(role)))
	}
	return contents
}

// buildGenerationConfig creates a Gemini generation config from the request.
func (c *GeminiClient) buildGenerationConfig(req *chattypes.CompletionRequest) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{}
	if req.SystemPrompt != "" {
		config.SystemInstruction = genai.NewContentFromText(req.SystemPrompt, genai.RoleUser)
	}

	params := req.Model.Parameters
	if params == nil {
		return config
	}
	if temp, ok := floatParam(params, "temperature"); ok {
		temp32 := float32(temp)
		config.Temperature = &temp32
	}
	if maxTokens, ok := intParam(params, "max_tokens"); ok && maxTokens > 0 {
		config.MaxOutputTokens = int32(maxTokens)
	}
	return config
}

// extractText concatenates the non-thought text parts of all candidates.
func (c *GeminiClient) extractText(result *genai.GenerateContentResponse) string {
	if result == nil {
		return ""
	}
	var b strings.Builder
	for _, candidate := range result.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part.Text == "" || part.Thought {
				continue
			}
			b.WriteString(part.Text)
		}
	}
	return b.String()
}

// String identifies the client in logs without exposing the key.
func (c *GeminiClient) String() string {
	return fmt.Sprintf("GeminiClient(%s)", c.options.BaseURL)
}
