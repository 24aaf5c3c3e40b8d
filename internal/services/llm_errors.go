package services

import (
	"context"
	"errors"
	"net/http"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/openai/openai-go"
	"google.golang.org/genai"

	"apple2chat/pkg/chattypes"
)

// ProviderOptions configures a completion client.
type ProviderOptions struct {
	APIKey     string
	BaseURL    string       // Empty means the SDK default endpoint
	HTTPClient *http.Client // Optional; nil uses the SDK default client
}

// wrapProviderError converts an SDK failure into an ExternalServiceError,
// carrying the HTTP status when the SDK exposes one.
func wrapProviderError(provider, message string, err error) error {
	svcErr := chattypes.NewExternalServiceError(provider, message, err)

	var openaiErr *openai.Error
	var anthropicErr *anthropic.Error
	var geminiErr genai.APIError
	switch {
	case errors.As(err, &openaiErr):
		svcErr.StatusCode = openaiErr.StatusCode
	case errors.As(err, &anthropicErr):
		svcErr.StatusCode = anthropicErr.StatusCode
	case errors.As(err, &geminiErr):
		svcErr.StatusCode = geminiErr.Code
	case errors.Is(err, context.Canceled):
		svcErr.Message = message + " (request cancelled)"
	case errors.Is(err, context.DeadlineExceeded):
		svcErr.Message = message + " (request timed out)"
	}
	return svcErr
}

// emptyResponseError reports a completion that carried no text.
func emptyResponseError(provider string) error {
	return chattypes.NewExternalServiceError(provider, "empty response content", nil)
}

// sendChunk delivers a chunk unless the consumer has gone away.
func sendChunk(ctx context.Context, ch chan<- chattypes.StreamChunk, chunk chattypes.StreamChunk) bool {
	select {
	case ch <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}

// floatParam reads a numeric model parameter as float64.
func floatParam(params map[string]any, key string) (float64, bool) {
	switch v := params[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	}
	return 0, false
}

// intParam reads an integral model parameter.
func intParam(params map[string]any, key string) (int64, bool) {
	switch v := params[key].(type) {
	case int:
		return int64(v), true
	case int64:
		return v, true
	case float64:
		return int64(v), true
	}
	return 0, false
}
