package services

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"apple2chat/internal/context"
	"apple2chat/internal/testutils"
	"apple2chat/pkg/chattypes"
)

func TestChatSessionService_NotInitialized(t *testing.T) {
	service := NewChatSessionService()
	assert.Equal(t, "chat_session", service.Name())

	_, _, err := service.GetOrCreateSession("")
	assert.EqualError(t, err, "chat session service not initialized")
	_, err = service.AddMessage(chattypes.NewChatSession("id", testutils.GetCurrentTime(nil), "m"), "user", "hi")
	assert.EqualError(t, err, "chat session service not initialized")
	assert.Equal(t, "", service.Provider())
}

func TestChatSessionService_InitializeRequiresDependencies(t *testing.T) {
	original := GetGlobalRegistry()
	defer SetGlobalRegistry(original)
	SetGlobalRegistry(NewRegistry())

	err := NewChatSessionService().Initialize()
	assert.ErrorContains(t, err, "requires configuration")
}

func TestChatSessionService_GetOrCreateSession(t *testing.T) {
	ctx := setupTestServices(t, nil)
	service := mustLookup[*ChatSessionService](t, "chat_session")

	session, created, err := service.GetOrCreateSession("")
	require.NoError(t, err)
	assert.True(t, created)
	assert.True(t, testutils.IsValidUUID(session.ID))
	assert.Equal(t, "llama-3.3-70b-versatile", session.Model())
	assert.Equal(t, 0, session.Len())

	again, created, err := service.GetOrCreateSession(session.ID)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Same(t, session, again)

	other, created, err := service.GetOrCreateSession("unknown-cookie")
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, session.ID, other.ID)
	assert.Equal(t, 2, ctx.Sessions().Size())

	fetched, err := service.GetSession(other.ID)
	require.NoError(t, err)
	assert.Same(t, other, fetched)
	_, err = service.GetSession("missing")
	assert.EqualError(t, err, "session 'missing' not found")
}

func TestChatSessionService_DefaultModelFromConfig(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{name: "catalog default", env: nil, want: "llama-3.3-70b-versatile"},
		{name: "configured model", env: map[string]string{"APPLE2CHAT_MODEL": "llama-3.1-8b-instant"}, want: "llama-3.1-8b-instant"},
		{name: "unknown configured model falls back", env: map[string]string{"APPLE2CHAT_MODEL": "llama2-70b-4096"}, want: "llama-3.3-70b-versatile"},
		{name: "other provider", env: map[string]string{"APPLE2CHAT_PROVIDER": "anthropic"}, want: "claude-3-5-haiku-latest"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setupTestServices(t, tt.env)
			service := mustLookup[*ChatSessionService](t, "chat_session")
			model, err := service.DefaultModel()
			require.NoError(t, err)
			assert.Equal(t, tt.want, model)
		})
	}
}

func TestChatSessionService_AddMessage(t *testing.T) {
	setupTestServices(t, nil)
	service := mustLookup[*ChatSessionService](t, "chat_session")
	session, _, err := service.GetOrCreateSession("")
	require.NoError(t, err)

	tests := []struct {
		name    string
		role    string
		content string
		want    string
		wantErr string
	}{
		{name: "user turn trimmed", role: "user", content: "  Hello  ", want: "Hello"},
		{name: "assistant turn", role: "assistant", content: "Hi there", want: "Hi there"},
		{name: "empty content", role: "user", content: "", wantErr: "Message content cannot be empty"},
		{name: "whitespace content", role: "user", content: " \n\t ", wantErr: "Message content cannot be empty"},
		{name: "invalid role", role: "robot", content: "beep", wantErr: "invalid role: robot"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := session.Len()
			msg, err := service.AddMessage(session, tt.role, tt.content)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				assert.Equal(t, chattypes.KindValidation, chattypes.KindOf(err))
				assert.Equal(t, before, session.Len())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, msg.Content)
			assert.Equal(t, chattypes.Role(tt.role), msg.Role)
			assert.Equal(t, before+1, session.Len())
		})
	}

	messages := session.Messages()
	require.Len(t, messages, 2)
	assert.True(t, messages[0].Timestamp.Before(messages[1].Timestamp))
}

func TestChatSessionService_SelectModel(t *testing.T) {
	setupTestServices(t, nil)
	service := mustLookup[*ChatSessionService](t, "chat_session")
	session, _, err := service.GetOrCreateSession("")
	require.NoError(t, err)

	require.NoError(t, service.SelectModel(session, "llama-3.1-8b-instant"))
	assert.Equal(t, "llama-3.1-8b-instant", session.Model())

	err = service.SelectModel(session, "gpt-4o")
	require.Error(t, err)
	assert.Equal(t, "Model gpt-4o not in available models", err.Error())
	assert.Equal(t, "llama-3.1-8b-instant", session.Model())
}

func TestChatSessionService_ReconcileModelAfterUpdate(t *testing.T) {
	setupTestServices(t, nil)
	service := mustLookup[*ChatSessionService](t, "chat_session")
	catalog := mustLookup[*CatalogService](t, "catalog")

	session, _, err := service.GetOrCreateSession("")
	require.NoError(t, err)
	require.NoError(t, service.SelectModel(session, "llama-3.1-8b-instant"))

	require.NoError(t, catalog.UpdateModels("groq", []string{"openai/gpt-oss-20b", "llama-3.3-70b-versatile"}))
	same, _, err := service.GetOrCreateSession(session.ID)
	require.NoError(t, err)
	assert.Equal(t, "llama-3.3-70b-versatile", same.Model())
}

func TestChatSessionService_APIKey(t *testing.T) {
	setupTestServices(t, map[string]string{"GROQ_API_KEY": "gsk-configured-01"})
	service := mustLookup[*ChatSessionService](t, "chat_session")
	session, _, err := service.GetOrCreateSession("")
	require.NoError(t, err)

	key, err := service.ResolveAPIKey(session)
	require.NoError(t, err)
	assert.Equal(t, "gsk-configured-01", key)

	require.NoError(t, service.SetAPIKey(session, " gsk-session-0002 "))
	key, err = service.ResolveAPIKey(session)
	require.NoError(t, err)
	assert.Equal(t, "gsk-session-0002", key)
	assert.True(t, session.Settings().HasAPIKey)

	err = service.SetAPIKey(session, "tiny")
	assert.Equal(t, chattypes.KindConfiguration, chattypes.KindOf(err))
	assert.Equal(t, "gsk-session-0002", session.APIKey())

	require.NoError(t, service.SetAPIKey(session, "   "))
	assert.False(t, session.Settings().HasAPIKey)
}

func TestChatSessionService_ResolveAPIKeyMissing(t *testing.T) {
	setupTestServices(t, nil)
	service := mustLookup[*ChatSessionService](t, "chat_session")
	session, _, err := service.GetOrCreateSession("")
	require.NoError(t, err)

	_, err = service.ResolveAPIKey(session)
	var cfgErr *chattypes.ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestChatSessionService_ChainOfThought(t *testing.T) {
	setupTestServices(t, nil)
	service := mustLookup[*ChatSessionService](t, "chat_session")
	session, _, err := service.GetOrCreateSession("")
	require.NoError(t, err)

	require.NoError(t, service.SetChainOfThought(session, true))
	assert.True(t, session.ChainOfThought())
	require.NoError(t, service.SetChainOfThought(session, false))
	assert.False(t, session.ChainOfThought())
}

func TestChatSessionService_SessionsAreIsolated(t *testing.T) {
	setupTestServices(t, nil)
	service := mustLookup[*ChatSessionService](t, "chat_session")

	a, _, _ := service.GetOrCreateSession("")
	b, _, _ := service.GetOrCreateSession("")
	for i := 0; i < 3; i++ {
		_, err := service.AddMessage(a, "user", fmt.Sprintf("a-%d", i))
		require.NoError(t, err)
	}
	assert.Equal(t, 3, a.Len())
	assert.Equal(t, 0, b.Len())
}

func TestChatSessionService_EvictionEndsSession(t *testing.T) {
	ctx := setupTestServices(t, nil)
	ctx.SetMaxSessions(2)
	service := mustLookup[*ChatSessionService](t, "chat_session")

	first, _, _ := service.GetOrCreateSession("")
	_, _, _ = service.GetOrCreateSession("")
	_, _, _ = service.GetOrCreateSession("")

	_, ok := context.GetGlobalContext().Sessions().Get(first.ID)
	assert.False(t, ok)
}
