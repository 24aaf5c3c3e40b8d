package services

import (
	"fmt"
	"strconv"
	"strings"

	appcontext "apple2chat/internal/context"
	"apple2chat/internal/logger"
	"apple2chat/pkg/chattypes"
)

// minAPIKeyLength is the shortest credential accepted as plausible.
const minAPIKeyLength = 10

// ConfigurationService provides configuration management for apple2chat.
// It is stateless: all values live in the context's configuration map.
type ConfigurationService struct {
	initialized bool
}

// NewConfigurationService creates a new ConfigurationService instance.
func NewConfigurationService() *ConfigurationService {
	return &ConfigurationService{
		initialized: false,
	}
}

// Name returns the service name "configuration" for registration.
func (c *ConfigurationService) Name() string {
	return "configuration"
}

// Initialize loads configuration from all sources.
// Priority (highest to lowest): Environment variables > Local .env > Config .env > Defaults
func (c *ConfigurationService) Initialize() error {
	if c.initialized {
		return nil
	}

	cfg := appcontext.GetGlobalContext().Configuration()
	cfg.SetConfigMap(make(map[string]string))

	if err := cfg.LoadDefaults(); err != nil {
		return fmt.Errorf("failed to load defaults: %w", err)
	}
	if err := cfg.LoadConfigDotEnv(); err != nil {
		return fmt.Errorf("failed to load config .env: %w", err)
	}
	if err := cfg.LoadLocalDotEnv(); err != nil {
		return fmt.Errorf("failed to load local .env: %w", err)
	}
	if err := cfg.LoadEnvironmentVariables(appcontext.ProviderEnvPrefixes); err != nil {
		return fmt.Errorf("failed to load environment variables: %w", err)
	}

	c.initialized = true
	logger.ServiceOperation("configuration", "initialize", "completed")
	return nil
}

// GetAPIKey returns the configured credential for a provider.
// Lookup order: APPLE2CHAT_<P>_API_KEY, <P>_API_KEY, APPLE2CHAT_API_KEY.
// A missing or implausibly short key yields a ConfigurationError.
func (c *ConfigurationService) GetAPIKey(provider string) (string, error) {
	if !c.initialized {
		return "", fmt.Errorf("configuration service not initialized")
	}

	upper := strings.ToUpper(provider)
	candidates := []string{
		fmt.Sprintf("APPLE2CHAT_%s_API_KEY", upper),
		fmt.Sprintf("%s_API_KEY", upper),
		"APPLE2CHAT_API_KEY",
	}
	// Gemini keys are commonly exported as GOOGLE_API_KEY
	if provider == "gemini" {
		candidates = append(candidates[:2], "GOOGLE_API_KEY", "APPLE2CHAT_API_KEY")
	}

	cfg := appcontext.GetGlobalContext().Configuration()
	for _, key := range candidates {
		value, exists := cfg.GetConfigValue(key)
		if !exists || strings.TrimSpace(value) == "" {
			continue
		}
		if err := ValidateAPIKey(value); err != nil {
			return "", chattypes.NewConfigurationError("API key for %s (%s) appears to be too short", provider, key)
		}
		return strings.TrimSpace(value), nil
	}

	return "", chattypes.NewConfigurationError(
		"API key not configured for provider %s (expected %s or %s)", provider, candidates[0], candidates[1])
}

// ValidateAPIKey checks that a credential looks plausible.
func ValidateAPIKey(key string) error {
	if len(strings.TrimSpace(key)) < minAPIKeyLength {
		return chattypes.NewConfigurationError("API key appears to be too short")
	}
	return nil
}

// GetConfigValue retrieves a configuration value by key.
// Returns empty string if the value doesn't exist (no error).
func (c *ConfigurationService) GetConfigValue(key string) (string, error) {
	if !c.initialized {
		return "", fmt.Errorf("configuration service not initialized")
	}

	value, _ := appcontext.GetGlobalContext().Configuration().GetConfigValue(key)
	return value, nil
}

// GetIntValue returns an integer configuration value, or def when unset or unparsable.
func (c *ConfigurationService) GetIntValue(key string, def int) int {
	value, err := c.GetConfigValue(key)
	if err != nil || strings.TrimSpace(value) == "" {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		logger.Warn("Ignoring non-integer configuration value", "key", key, "value", value)
		return def
	}
	return n
}

// SetConfigValue sets a configuration value. Used by CLI flag overrides and tests.
func (c *ConfigurationService) SetConfigValue(key, value string) error {
	if !c.initialized {
		return fmt.Errorf("configuration service not initialized")
	}

	appcontext.GetGlobalContext().Configuration().SetConfigValue(key, value)
	return nil
}

// LoadConfiguration reloads all configuration sources.
func (c *ConfigurationService) LoadConfiguration() error {
	if !c.initialized {
		return fmt.Errorf("configuration service not initialized")
	}

	c.initialized = false
	return c.Initialize()
}

// HasAnyAPIKey reports whether a usable credential exists for the provider.
func (c *ConfigurationService) HasAnyAPIKey(provider string) bool {
	_, err := c.GetAPIKey(provider)
	return err == nil
}
