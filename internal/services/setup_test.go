package services

import (
	"testing"

	"github.com/stretchr/testify/require"

	"apple2chat/internal/context"
	"apple2chat/internal/testutils"
)

// setupTestServices installs a fresh test context and a global registry holding
// the core services, initialized with the given environment overrides.
func setupTestServices(t *testing.T, env map[string]string) *context.AppContext {
	t.Helper()

	testutils.ResetTestCounters()
	ctx := context.NewTestContext()
	for key, value := range env {
		ctx.Configuration().SetTestEnvOverride(key, value)
	}

	original := GetGlobalRegistry()
	t.Cleanup(func() { SetGlobalRegistry(original) })

	registry := NewRegistry()
	SetGlobalRegistry(registry)
	require.NoError(t, registry.RegisterService(NewConfigurationService()))
	require.NoError(t, registry.RegisterService(NewCatalogService()))
	require.NoError(t, registry.RegisterService(NewChatSessionService()))
	require.NoError(t, registry.RegisterService(NewClientFactoryService()))
	require.NoError(t, registry.RegisterService(NewMarkdownService()))
	require.NoError(t, registry.RegisterService(NewRelayService()))
	require.NoError(t, registry.InitializeAll())
	return ctx
}

func mustLookup[T interface {
	Name() string
	Initialize() error
}](t *testing.T, name string) T {
	t.Helper()
	service, err := Lookup[T](name)
	require.NoError(t, err)
	return service
}
