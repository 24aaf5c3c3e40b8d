package services

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"time"

	appcontext "apple2chat/internal/context"
	"apple2chat/internal/logger"
	"apple2chat/pkg/chattypes"
)

// SupportedProviders lists the providers the factory can build clients for.
var SupportedProviders = []string{"groq", "openai", "anthropic", "gemini"}

// ClientFactoryService creates completion clients and caches them in the
// global context, keyed by provider and a hash of the API key.
type ClientFactoryService struct {
	initialized   bool
	configuration *ConfigurationService
	transport     *providerTransport
}

// NewClientFactoryService creates a new ClientFactoryService instance.
func NewClientFactoryService() *ClientFactoryService {
	return &ClientFactoryService{
		initialized: false,
	}
}

// Name returns the service name "client_factory" for registration.
func (f *ClientFactoryService) Name() string {
	return "client_factory"
}

// Initialize sets up the ClientFactoryService for operation.
func (f *ClientFactoryService) Initialize() error {
	if f.initialized {
		return nil
	}
	logger.ServiceOperation("client_factory", "initialize", "starting")

	configuration, err := Lookup[*ConfigurationService]("configuration")
	if err != nil {
		return fmt.Errorf("client factory requires configuration: %w", err)
	}
	f.configuration = configuration
	f.transport = newProviderTransport(http.DefaultTransport)
	f.initialized = true

	logger.ServiceOperation("client_factory", "initialize", "completed")
	return nil
}

// GetClientForProvider returns a cached or new client for the provider and API key.
func (f *ClientFactoryService) GetClientForProvider(provider, apiKey string) (chattypes.LLMClient, error) {
	client, _, err := f.GetClientWithID(provider, apiKey)
	return client, err
}

// GetClientWithID returns the client together with its cache ID ("provider:hash8").
func (f *ClientFactoryService) GetClientWithID(provider, apiKey string) (chattypes.LLMClient, string, error) {
	if !f.initialized {
		return nil, "", fmt.Errorf("client factory service not initialized")
	}

	if provider == "" {
		return nil, "", chattypes.NewConfigurationError("provider cannot be empty")
	}
	if apiKey == "" {
		return nil, "", chattypes.NewConfigurationError("API key cannot be empty for provider '%s'", provider)
	}

	clientID := f.generateClientID(provider, apiKey)
	cache := appcontext.GetGlobalContext().LLMClients()
	if client, exists := cache.GetClient(clientID); exists {
		logger.Debug("Returning cached provider client", "provider", provider, "clientID", clientID)
		return client, clientID, nil
	}

	opts := ProviderOptions{
		APIKey:     apiKey,
		BaseURL:    f.baseURL(provider),
		HTTPClient: f.httpClient(),
	}

	var client chattypes.LLMClient
	switch provider {
	case "groq":
		client = NewGroqClient(opts)
	case "openai":
		client = NewOpenAIClient(opts)
	case "anthropic":
		client = NewAnthropicClient(opts)
	case "gemini":
		client = NewGeminiClient(opts)
	default:
		return nil, "", chattypes.NewConfigurationError("unsupported provider '%s'. Supported providers: %s",
			provider, strings.Join(SupportedProviders, ", "))
	}

	cache.StoreClient(clientID, client)
	logger.Debug("Created new provider client", "provider", provider, "clientID", clientID)
	return client, clientID, nil
}

// ClearCache removes all cached clients.
func (f *ClientFactoryService) ClearCache() {
	appcontext.GetGlobalContext().LLMClients().ClearAllClients()
	logger.Debug("Client cache cleared")
}

// GetCachedClientCount returns the number of cached clients.
func (f *ClientFactoryService) GetCachedClientCount() int {
	return appcontext.GetGlobalContext().LLMClients().ClientCount()
}

// generateClientID creates a client ID for the given provider and API key.
// Format: "provider:hashed-api-key" (e.g., "groq:a1b2c3d4")
func (f *ClientFactoryService) generateClientID(provider, apiKey string) string {
	hash := sha256.Sum256([]byte(apiKey))
	return fmt.Sprintf("%s:%s", provider, hex.EncodeToString(hash[:])[:8])
}

// baseURL returns the endpoint override for a provider:
// APPLE2CHAT_<P>_BASE_URL, then APPLE2CHAT_BASE_URL, else the SDK default.
func (f *ClientFactoryService) baseURL(provider string) string {
	specific, _ := f.configuration.GetConfigValue(fmt.Sprintf("APPLE2CHAT_%s_BASE_URL", strings.ToUpper(provider)))
	if specific != "" {
		return specific
	}
	generic, _ := f.configuration.GetConfigValue("APPLE2CHAT_BASE_URL")
	return generic
}

// httpClient returns the client shared by all providers. It logs each call
// and honors APPLE2CHAT_REQUEST_TIMEOUT (seconds; unset means no timeout).
func (f *ClientFactoryService) httpClient() *http.Client {
	client := &http.Client{Transport: f.transport}
	if seconds := f.configuration.GetIntValue("APPLE2CHAT_REQUEST_TIMEOUT", 0); seconds > 0 {
		client.Timeout = time.Duration(seconds) * time.Second
	}
	return client
}

// LastProviderExchange returns the most recent provider round trip, or nil.
func (f *ClientFactoryService) LastProviderExchange() *ProviderExchange {
	if !f.initialized {
		return nil
	}
	return f.transport.LastExchange()
}
