package services

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"apple2chat/pkg/chattypes"
)

func TestClientFactoryService_NotInitialized(t *testing.T) {
	service := NewClientFactoryService()
	assert.Equal(t, "client_factory", service.Name())

	_, err := service.GetClientForProvider("groq", "gsk-test-000001")
	assert.EqualError(t, err, "client factory service not initialized")
}

func TestClientFactoryService_GetClientForProvider(t *testing.T) {
	tests := []struct {
		name     string
		provider string
		apiKey   string
		wantType any
		wantErr  string
	}{
		{name: "groq", provider: "groq", apiKey: "gsk-test-000001", wantType: &OpenAIClient{}},
		{name: "openai", provider: "openai", apiKey: "sk-test-0000001", wantType: &OpenAIClient{}},
		{name: "anthropic", provider: "anthropic", apiKey: "sk-ant-test-001", wantType: &AnthropicClient{}},
		{name: "gemini", provider: "gemini", apiKey: "gemini-test-001", wantType: &GeminiClient{}},
		{name: "empty provider", provider: "", apiKey: "key-0000000001", wantErr: "provider cannot be empty"},
		{name: "empty key", provider: "groq", apiKey: "", wantErr: "API key cannot be empty for provider 'groq'"},
		{name: "unsupported", provider: "moonshot", apiKey: "key-0000000001", wantErr: "unsupported provider 'moonshot'"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setupTestServices(t, nil)
			factory := mustLookup[*ClientFactoryService](t, "client_factory")

			client, err := factory.GetClientForProvider(tt.provider, tt.apiKey)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				assert.Equal(t, chattypes.KindConfiguration, chattypes.KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.wantType, client)
			assert.Equal(t, tt.provider, client.GetProviderName())
		})
	}
}

func TestClientFactoryService_Caching(t *testing.T) {
	setupTestServices(t, nil)
	factory := mustLookup[*ClientFactoryService](t, "client_factory")

	first, id, err := factory.GetClientWithID("groq", "gsk-test-000001")
	require.NoError(t, err)
	assert.Regexp(t, `^groq:[0-9a-f]{8}$`, id)

	second, id2, err := factory.GetClientWithID("groq", "gsk-test-000001")
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, id, id2)

	third, id3, err := factory.GetClientWithID("groq", "gsk-test-000002")
	require.NoError(t, err)
	assert.NotSame(t, first, third)
	assert.NotEqual(t, id, id3)
	assert.Equal(t, 2, factory.GetCachedClientCount())

	factory.ClearCache()
	assert.Equal(t, 0, factory.GetCachedClientCount())
}

func TestClientFactoryService_BaseURLOverride(t *testing.T) {
	fake := newFakeProvider(t, "from the fake endpoint")
	setupTestServices(t, map[string]string{
		"APPLE2CHAT_GROQ_BASE_URL": fake.URL + "/openai/v1",
		"APPLE2CHAT_BASE_URL":      "http://127.0.0.1:1/unused",
	})
	factory := mustLookup[*ClientFactoryService](t, "client_factory")

	assert.Equal(t, fake.URL+"/openai/v1", factory.baseURL("groq"))
	assert.Equal(t, "http://127.0.0.1:1/unused", factory.baseURL("openai"))

	client, err := factory.GetClientForProvider("groq", "gsk-test-000001")
	require.NoError(t, err)
	reply, err := client.SendChatCompletion(context.Background(), testRequest("llama-3.3-70b-versatile"))
	require.NoError(t, err)
	assert.Equal(t, "from the fake endpoint", reply)

	exchange := factory.LastProviderExchange()
	require.NotNil(t, exchange)
	assert.Equal(t, http.MethodPost, exchange.Method)
	assert.Equal(t, http.StatusOK, exchange.StatusCode)
	assert.Equal(t, "Bearer gsk***", exchange.Headers["Authorization"])
}

func TestClientFactoryService_RequestTimeout(t *testing.T) {
	setupTestServices(t, map[string]string{"APPLE2CHAT_REQUEST_TIMEOUT": "30"})
	factory := mustLookup[*ClientFactoryService](t, "client_factory")

	client := factory.httpClient()
	require.NotNil(t, client)
	assert.Equal(t, 30.0, client.Timeout.Seconds())

	setupTestServices(t, nil)
	factory = mustLookup[*ClientFactoryService](t, "client_factory")
	client = factory.httpClient()
	assert.Zero(t, client.Timeout)
	assert.IsType(t, &providerTransport{}, client.Transport)
}
