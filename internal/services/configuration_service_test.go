package services

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"apple2chat/internal/context"
	"apple2chat/pkg/chattypes"
)

func setupConfigurationService(t *testing.T, env map[string]string) *ConfigurationService {
	t.Helper()
	ctx := context.NewTestContext()
	for key, value := range env {
		ctx.Configuration().SetTestEnvOverride(key, value)
	}
	service := NewConfigurationService()
	require.NoError(t, service.Initialize())
	return service
}

func TestConfigurationService_Name(t *testing.T) {
	service := NewConfigurationService()
	assert.Equal(t, "configuration", service.Name())
}

func TestConfigurationService_Initialize(t *testing.T) {
	service := setupConfigurationService(t, nil)
	assert.True(t, service.initialized)

	provider, err := service.GetConfigValue("APPLE2CHAT_PROVIDER")
	require.NoError(t, err)
	assert.Equal(t, "groq", provider)
	assert.Equal(t, 100, service.GetIntValue("APPLE2CHAT_MAX_CONTEXT_MESSAGES", 0))
}

func TestConfigurationService_NotInitialized(t *testing.T) {
	service := NewConfigurationService()

	_, err := service.GetAPIKey("groq")
	assert.EqualError(t, err, "configuration service not initialized")

	_, err = service.GetConfigValue("X")
	assert.EqualError(t, err, "configuration service not initialized")

	assert.EqualError(t, service.SetConfigValue("X", "y"), "configuration service not initialized")
	assert.EqualError(t, service.LoadConfiguration(), "configuration service not initialized")
}

func TestConfigurationService_GetAPIKey(t *testing.T) {
	tests := []struct {
		name     string
		provider string
		env      map[string]string
		want     string
		wantErr  string
	}{
		{
			name:     "provider specific prefixed key wins",
			provider: "groq",
			env: map[string]string{
				"APPLE2CHAT_GROQ_API_KEY": "gsk-prefixed-0001",
				"GROQ_API_KEY":            "gsk-plain-000002",
				"APPLE2CHAT_API_KEY":      "generic-key-0003",
			},
			want: "gsk-prefixed-0001",
		},
		{
			name:     "plain provider key",
			provider: "groq",
			env:      map[string]string{"GROQ_API_KEY": "gsk-plain-000002"},
			want:     "gsk-plain-000002",
		},
		{
			name:     "generic fallback",
			provider: "openai",
			env:      map[string]string{"APPLE2CHAT_API_KEY": "generic-key-0003"},
			want:     "generic-key-0003",
		},
		{
			name:     "gemini reads GOOGLE_API_KEY",
			provider: "gemini",
			env:      map[string]string{"GOOGLE_API_KEY": "google-key-00004"},
			want:     "google-key-00004",
		},
		{
			name:     "whitespace is trimmed",
			provider: "anthropic",
			env:      map[string]string{"ANTHROPIC_API_KEY": "  sk-ant-000000005  "},
			want:     "sk-ant-000000005",
		},
		{
			name:     "missing key",
			provider: "groq",
			wantErr:  "API key not configured for provider groq",
		},
		{
			name:     "short key",
			provider: "groq",
			env:      map[string]string{"GROQ_API_KEY": "short"},
			wantErr:  "appears to be too short",
		},
		{
			name:     "other provider's key is not used",
			provider: "groq",
			env:      map[string]string{"OPENAI_API_KEY": "sk-openai-000006"},
			wantErr:  "API key not configured",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service := setupConfigurationService(t, tt.env)

			key, err := service.GetAPIKey(tt.provider)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				var cfgErr *chattypes.ConfigurationError
				assert.ErrorAs(t, err, &cfgErr)
				assert.False(t, service.HasAnyAPIKey(tt.provider))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, key)
			assert.True(t, service.HasAnyAPIKey(tt.provider))
		})
	}
}

func TestValidateAPIKey(t *testing.T) {
	assert.NoError(t, ValidateAPIKey("0123456789"))
	assert.Error(t, ValidateAPIKey("012345678"))
	assert.Error(t, ValidateAPIKey("   abc    "))
	assert.Equal(t, chattypes.KindConfiguration, chattypes.KindOf(ValidateAPIKey("")))
}

func TestConfigurationService_GetIntValue(t *testing.T) {
	service := setupConfigurationService(t, map[string]string{
		"APPLE2CHAT_MAX_CONTEXT_MESSAGES": "12",
		"APPLE2CHAT_REQUEST_TIMEOUT":      "soon",
	})

	assert.Equal(t, 12, service.GetIntValue("APPLE2CHAT_MAX_CONTEXT_MESSAGES", 100))
	assert.Equal(t, 7, service.GetIntValue("APPLE2CHAT_REQUEST_TIMEOUT", 7))
	assert.Equal(t, 3, service.GetIntValue("APPLE2CHAT_MISSING", 3))
}

func TestConfigurationService_DotEnvPriority(t *testing.T) {
	ctx := context.NewTestContext()
	configDir := t.TempDir()
	workDir := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(configDir, ".env"),
		[]byte("GROQ_API_KEY=config-dir-key-1\nAPPLE2CHAT_PROVIDER=openai\n"), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(workDir, ".env"),
		[]byte("GROQ_API_KEY=local-dir-key-02\n"), 0600))

	cfg := ctx.Configuration()
	cfg.SetTestConfigDir(configDir)
	cfg.SetTestWorkingDir(workDir)

	service := NewConfigurationService()
	require.NoError(t, service.Initialize())

	key, err := service.GetAPIKey("groq")
	require.NoError(t, err)
	assert.Equal(t, "local-dir-key-02", key)

	provider, _ := service.GetConfigValue("APPLE2CHAT_PROVIDER")
	assert.Equal(t, "openai", provider)

	cfg.SetTestEnvOverride("GROQ_API_KEY", "environment-key-3")
	require.NoError(t, service.LoadConfiguration())
	key, err = service.GetAPIKey("groq")
	require.NoError(t, err)
	assert.Equal(t, "environment-key-3", key)
}

func TestConfigurationService_SetConfigValue(t *testing.T) {
	service := setupConfigurationService(t, nil)

	require.NoError(t, service.SetConfigValue("APPLE2CHAT_API_KEY", "cli-flag-key-01"))
	key, err := service.GetAPIKey("gemini")
	require.NoError(t, err)
	assert.Equal(t, "cli-flag-key-01", key)
}
