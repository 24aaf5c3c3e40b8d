package context

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/joho/godotenv"
)

// ProviderEnvPrefixes lists the environment variable prefixes that are copied
// into the configuration map.
var ProviderEnvPrefixes = []string{"APPLE2CHAT_", "GROQ_", "OPENAI_", "ANTHROPIC_", "GOOGLE_", "GEMINI_"}

// ConfigurationSubcontext manages the configuration map and where it is loaded from.
type ConfigurationSubcontext interface {
	// Configuration map operations
	GetConfigMap() map[string]string
	SetConfigMap(configMap map[string]string)
	GetConfigValue(key string) (string, bool)
	SetConfigValue(key, value string)

	// Configuration loading operations, lowest priority first
	LoadDefaults() error
	LoadConfigDotEnv() error
	LoadLocalDotEnv() error
	LoadEnvironmentVariables(prefixes []string) error

	// Environment and filesystem access with test overrides
	GetEnv(key string) string
	SetTestEnvOverride(key, value string)
	ClearAllTestEnvOverrides()
	SetTestWorkingDir(path string)
	SetTestConfigDir(path string)
	GetUserConfigDir() (string, error)
	GetWorkingDir() (string, error)
	FileExists(path string) bool
}

type configurationSubcontext struct {
	parent *AppContext

	configMap   map[string]string
	configMutex sync.RWMutex

	testEnvOverrides map[string]string
	testWorkingDir   string
	testConfigDir    string
	testMutex        sync.RWMutex
}

func newConfigurationSubcontext(parent *AppContext) *configurationSubcontext {
	return &configurationSubcontext{
		parent:           parent,
		configMap:        make(map[string]string),
		testEnvOverrides: make(map[string]string),
	}
}

func (c *configurationSubcontext) isTestMode() bool {
	return c.parent != nil && c.parent.IsTestMode()
}

// GetConfigMap returns a copy of the configuration map.
func (c *configurationSubcontext) GetConfigMap() map[string]string {
	c.configMutex.RLock()
	defer c.configMutex.RUnlock()

	result := make(map[string]string, len(c.configMap))
	for key, value := range c.configMap {
		result[key] = value
	}
	return result
}

// SetConfigMap replaces the entire configuration map.
func (c *configurationSubcontext) SetConfigMap(configMap map[string]string) {
	c.configMutex.Lock()
	defer c.configMutex.Unlock()

	c.configMap = make(map[string]string, len(configMap))
	for key, value := range configMap {
		c.configMap[key] = value
	}
}

// GetConfigValue retrieves a configuration value by key.
func (c *configurationSubcontext) GetConfigValue(key string) (string, bool) {
	c.configMutex.RLock()
	defer c.configMutex.RUnlock()

	value, exists := c.configMap[key]
	return value, exists
}

// SetConfigValue sets a configuration value.
func (c *configurationSubcontext) SetConfigValue(key, value string) {
	c.configMutex.Lock()
	defer c.configMutex.Unlock()

	c.configMap[key] = value
}

// LoadDefaults sets up default configuration values.
func (c *configurationSubcontext) LoadDefaults() error {
	defaults := map[string]string{
		"APPLE2CHAT_API_KEY":              "",
		"APPLE2CHAT_PROVIDER":             "groq",
		"APPLE2CHAT_MAX_CONTEXT_MESSAGES": "100",
	}

	for key, value := range defaults {
		c.SetConfigValue(key, value)
	}
	return nil
}

// LoadConfigDotEnv loads the .env file from the user's config directory (~/.config/apple2chat/.env).
func (c *configurationSubcontext) LoadConfigDotEnv() error {
	configDir, err := c.GetUserConfigDir()
	if err != nil || configDir == "" {
		return nil // Config directory access failure is not fatal
	}

	envPath := filepath.Join(configDir, ".env")
	if !c.FileExists(envPath) {
		return nil
	}

	return c.loadDotEnvFile(envPath)
}

// LoadLocalDotEnv loads the .env file from the current working directory.
func (c *configurationSubcontext) LoadLocalDotEnv() error {
	workDir, err := c.GetWorkingDir()
	if err != nil {
		return fmt.Errorf("failed to get working directory: %w", err)
	}
	if workDir == "" {
		return nil
	}

	envPath := filepath.Join(workDir, ".env")
	if !c.FileExists(envPath) {
		return nil
	}

	return c.loadDotEnvFile(envPath)
}

// LoadEnvironmentVariables copies prefixed environment variables into the configuration map.
// This has the highest priority and overrides file-based configuration.
// In test mode only test overrides are consulted.
func (c *configurationSubcontext) LoadEnvironmentVariables(prefixes []string) error {
	var environ map[string]string
	if c.isTestMode() {
		c.testMutex.RLock()
		environ = make(map[string]string, len(c.testEnvOverrides))
		for key, value := range c.testEnvOverrides {
			environ[key] = value
		}
		c.testMutex.RUnlock()
	} else {
		environ = make(map[string]string)
		for _, env := range os.Environ() {
			if key, value, ok := strings.Cut(env, "="); ok {
				environ[key] = value
			}
		}
	}

	for key, value := range environ {
		for _, prefix := range prefixes {
			if strings.HasPrefix(key, prefix) {
				c.SetConfigValue(key, value)
				break
			}
		}
	}

	return nil
}

// loadDotEnvFile parses a .env file and stores all values in the configuration map.
func (c *configurationSubcontext) loadDotEnvFile(envPath string) error {
	data, err := os.ReadFile(envPath)
	if err != nil {
		return fmt.Errorf("failed to read .env file %s: %w", envPath, err)
	}

	envMap, err := godotenv.Unmarshal(string(data))
	if err != nil {
		return fmt.Errorf("failed to parse .env file %s: %w", envPath, err)
	}

	for key, value := range envMap {
		c.SetConfigValue(key, value)
	}
	return nil
}

// GetEnv returns an environment variable, or its test override in test mode.
func (c *configurationSubcontext) GetEnv(key string) string {
	if c.isTestMode() {
		c.testMutex.RLock()
		defer c.testMutex.RUnlock()
		return c.testEnvOverrides[key]
	}
	return os.Getenv(key)
}

// SetTestEnvOverride sets a test-specific environment variable.
func (c *configurationSubcontext) SetTestEnvOverride(key, value string) {
	c.testMutex.Lock()
	defer c.testMutex.Unlock()
	c.testEnvOverrides[key] = value
}

// ClearAllTestEnvOverrides removes every test environment override.
func (c *configurationSubcontext) ClearAllTestEnvOverrides() {
	c.testMutex.Lock()
	defer c.testMutex.Unlock()
	c.testEnvOverrides = make(map[string]string)
}

// SetTestWorkingDir points local .env lookup at path while in test mode.
func (c *configurationSubcontext) SetTestWorkingDir(path string) {
	c.testMutex.Lock()
	defer c.testMutex.Unlock()
	c.testWorkingDir = path
}

// SetTestConfigDir points config .env lookup at path while in test mode.
func (c *configurationSubcontext) SetTestConfigDir(path string) {
	c.testMutex.Lock()
	defer c.testMutex.Unlock()
	c.testConfigDir = path
}

// GetUserConfigDir returns ~/.config/apple2chat (or the test override).
// In test mode without an override it returns "" so nothing is loaded.
func (c *configurationSubcontext) GetUserConfigDir() (string, error) {
	if c.isTestMode() {
		c.testMutex.RLock()
		defer c.testMutex.RUnlock()
		return c.testConfigDir, nil
	}

	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "apple2chat"), nil
}

// GetWorkingDir returns the working directory (or the test override).
// In test mode without an override it returns "" so nothing is loaded.
func (c *configurationSubcontext) GetWorkingDir() (string, error) {
	if c.isTestMode() {
		c.testMutex.RLock()
		defer c.testMutex.RUnlock()
		return c.testWorkingDir, nil
	}
	return os.Getwd()
}

// FileExists reports whether path exists and is a regular file.
func (c *configurationSubcontext) FileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
