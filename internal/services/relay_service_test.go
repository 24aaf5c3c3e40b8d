package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"apple2chat/pkg/chattypes"
)

// fakeLLMClient replays scripted replies and records every request.
type fakeLLMClient struct {
	mu       sync.Mutex
	replies  []string
	err      error
	chunks   []chattypes.StreamChunk
	requests []*chattypes.CompletionRequest
	block    chan struct{}
}

func (f *fakeLLMClient) record(req *chattypes.CompletionRequest) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
}

func (f *fakeLLMClient) lastRequest() *chattypes.CompletionRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

func (f *fakeLLMClient) SendChatCompletion(ctx context.Context, req *chattypes.CompletionRequest) (string, error) {
	f.record(req)
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if f.err != nil {
		return "", f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.replies) == 0 {
		return fmt.Sprintf("reply %d", len(f.requests)), nil
	}
	reply := f.replies[0]
	f.replies = f.replies[1:]
	return reply, nil
}

func (f *fakeLLMClient) StreamChatCompletion(_ context.Context, req *chattypes.CompletionRequest) (<-chan chattypes.StreamChunk, error) {
	f.record(req)
	if f.err != nil {
		return nil, f.err
	}
	ch := make(chan chattypes.StreamChunk, len(f.chunks))
	for _, chunk := range f.chunks {
		ch <- chunk
	}
	close(ch)
	return ch, nil
}

func (f *fakeLLMClient) GetProviderName() string { return "groq" }
func (f *fakeLLMClient) IsConfigured() bool      { return true }

type fakeClientProvider struct {
	client *fakeLLMClient
	keys   []string
}

func (p *fakeClientProvider) GetClientForProvider(_ string, apiKey string) (chattypes.LLMClient, error) {
	p.keys = append(p.keys, apiKey)
	return p.client, nil
}

func setupRelay(t *testing.T, env map[string]string, client *fakeLLMClient) (*RelayService, *ChatSessionService, *chattypes.ChatSession) {
	t.Helper()
	setupTestServices(t, env)
	relay := mustLookup[*RelayService](t, "relay")
	relay.SetClientProvider(&fakeClientProvider{client: client})
	sessions := mustLookup[*ChatSessionService](t, "chat_session")
	session, _, err := sessions.GetOrCreateSession("")
	require.NoError(t, err)
	return relay, sessions, session
}

var withKey = map[string]string{"GROQ_API_KEY": "gsk-test-000001"}

func TestRelayService_NotInitialized(t *testing.T) {
	relay := NewRelayService()
	assert.Equal(t, "relay", relay.Name())
	_, err := relay.Submit(context.Background(), "id", "hi")
	assert.EqualError(t, err, "relay service not initialized")
}

func TestRelayService_SubmitHello(t *testing.T) {
	client := &fakeLLMClient{replies: []string{"Hi! How can I help?"}}
	relay, _, session := setupRelay(t, withKey, client)

	reply, err := relay.Submit(context.Background(), session.ID, "Hello")
	require.NoError(t, err)
	assert.Equal(t, chattypes.RoleAssistant, reply.Role)
	assert.Equal(t, "Hi! How can I help?", reply.Content)

	messages := session.Messages()
	require.Len(t, messages, 2)
	assert.Equal(t, chattypes.RoleUser, messages[0].Role)
	assert.Equal(t, "Hello", messages[0].Content)
	assert.Equal(t, reply, messages[1])

	req := client.lastRequest()
	assert.Equal(t, "llama-3.3-70b-versatile", req.Model.BaseModel)
	assert.Equal(t, 0.0, req.Model.Parameters["temperature"])
	assert.Empty(t, req.SystemPrompt)
	require.Len(t, req.Messages, 1)
}

func TestRelayService_NSubmissionsAlternate(t *testing.T) {
	client := &fakeLLMClient{}
	relay, _, session := setupRelay(t, withKey, client)

	const n = 7
	for i := 0; i < n; i++ {
		_, err := relay.Submit(context.Background(), session.ID, fmt.Sprintf("question %d", i))
		require.NoError(t, err)
	}

	messages := session.Messages()
	require.Len(t, messages, 2*n)
	for i, msg := range messages {
		if i%2 == 0 {
			assert.Equal(t, chattypes.RoleUser, msg.Role)
			assert.Equal(t, fmt.Sprintf("question %d", i/2), msg.Content)
		} else {
			assert.Equal(t, chattypes.RoleAssistant, msg.Role)
		}
		if i > 0 {
			assert.True(t, msg.Timestamp.After(messages[i-1].Timestamp))
		}
	}

	// Each request carries the whole transcript so far.
	assert.Len(t, client.lastRequest().Messages, 2*n-1)
}

func TestRelayService_EmptyInputRejected(t *testing.T) {
	for _, input := range []string{"", "   ", "\n\t"} {
		t.Run(fmt.Sprintf("%q", input), func(t *testing.T) {
			client := &fakeLLMClient{}
			relay, _, session := setupRelay(t, withKey, client)

			_, err := relay.Submit(context.Background(), session.ID, input)
			var valErr *chattypes.ValidationError
			require.ErrorAs(t, err, &valErr)
			assert.Equal(t, 0, session.Len())
			assert.Empty(t, client.requests)
		})
	}
}

func TestRelayService_MissingCredential(t *testing.T) {
	client := &fakeLLMClient{}
	relay, _, session := setupRelay(t, nil, client)

	for attempt := 1; attempt <= 3; attempt++ {
		_, err := relay.Submit(context.Background(), session.ID, fmt.Sprintf("attempt %d", attempt))
		var cfgErr *chattypes.ConfigurationError
		require.ErrorAs(t, err, &cfgErr)
		assert.Equal(t, attempt, session.Len())
	}
	for _, msg := range session.Messages() {
		assert.Equal(t, chattypes.RoleUser, msg.Role)
	}
	assert.Empty(t, client.requests)
}

func TestRelayService_SessionKeyOverride(t *testing.T) {
	client := &fakeLLMClient{}
	setupTestServices(t, nil)
	relay := mustLookup[*RelayService](t, "relay")
	provider := &fakeClientProvider{client: client}
	relay.SetClientProvider(provider)
	sessions := mustLookup[*ChatSessionService](t, "chat_session")
	session, _, err := sessions.GetOrCreateSession("")
	require.NoError(t, err)

	require.NoError(t, sessions.SetAPIKey(session, "gsk-from-the-ui-1"))
	_, err = relay.Submit(context.Background(), session.ID, "Hello")
	require.NoError(t, err)
	assert.Equal(t, []string{"gsk-from-the-ui-1"}, provider.keys)
}

func TestRelayService_APIFailure(t *testing.T) {
	client := &fakeLLMClient{replies: []string{"first reply"}}
	relay, _, session := setupRelay(t, withKey, client)

	_, err := relay.Submit(context.Background(), session.ID, "Hello")
	require.NoError(t, err)
	before := session.Messages()

	client.err = errors.New("connection reset by peer")
	for attempt := 1; attempt <= 2; attempt++ {
		_, err = relay.Submit(context.Background(), session.ID, "Again?")
		var svcErr *chattypes.ExternalServiceError
		require.ErrorAs(t, err, &svcErr)
		assert.Equal(t, "groq", svcErr.Provider)
	}

	after := session.Messages()
	require.Len(t, after, len(before)+2)
	assert.Equal(t, before, after[:len(before)])
	assert.Equal(t, chattypes.RoleUser, after[len(after)-1].Role)
	assert.Equal(t, chattypes.RoleUser, after[len(after)-2].Role)
}

func TestRelayService_EmptyReplyIsExternalError(t *testing.T) {
	client := &fakeLLMClient{replies: []string{"   "}}
	relay, _, session := setupRelay(t, withKey, client)

	_, err := relay.Submit(context.Background(), session.ID, "Hello")
	assert.Equal(t, chattypes.KindExternalService, chattypes.KindOf(err))
	assert.Equal(t, 1, session.Len())
}

func TestRelayService_ChainOfThought(t *testing.T) {
	client := &fakeLLMClient{}
	relay, sessions, session := setupRelay(t, withKey, client)
	require.NoError(t, sessions.SetChainOfThought(session, true))

	_, err := relay.Submit(context.Background(), session.ID, "Why is the sky blue?")
	require.NoError(t, err)

	req := client.lastRequest()
	assert.Equal(t, ChainOfThoughtPrompt, req.SystemPrompt)
	for _, msg := range session.Messages() {
		assert.NotEqual(t, chattypes.RoleSystem, msg.Role)
	}
}

func TestRelayService_ContextWindow(t *testing.T) {
	client := &fakeLLMClient{}
	relay, _, session := setupRelay(t, map[string]string{
		"GROQ_API_KEY":                    "gsk-test-000001",
		"APPLE2CHAT_MAX_CONTEXT_MESSAGES": "4",
		"APPLE2CHAT_MAX_TOKENS":           "512",
	}, client)

	for i := 0; i < 5; i++ {
		_, err := relay.Submit(context.Background(), session.ID, fmt.Sprintf("q%d", i))
		require.NoError(t, err)
	}

	assert.Equal(t, 10, session.Len(), "stored transcript is never trimmed")
	req := client.lastRequest()
	require.Len(t, req.Messages, 3, "window of 4 drops a leading assistant turn")
	assert.Equal(t, chattypes.RoleUser, req.Messages[0].Role)
	assert.Equal(t, "q3", req.Messages[0].Content)
	assert.Equal(t, "q4", req.Messages[2].Content)
	assert.Equal(t, 512, req.Model.Parameters["max_tokens"])
}

func TestRelayService_SelectedModelIsUsed(t *testing.T) {
	client := &fakeLLMClient{}
	relay, sessions, session := setupRelay(t, withKey, client)
	require.NoError(t, sessions.SelectModel(session, "llama-3.1-8b-instant"))

	_, err := relay.Submit(context.Background(), session.ID, "Hello")
	require.NoError(t, err)
	assert.Equal(t, "llama-3.1-8b-instant", client.lastRequest().Model.BaseModel)
}

func TestRelayService_BusySession(t *testing.T) {
	client := &fakeLLMClient{block: make(chan struct{})}
	relay, _, session := setupRelay(t, withKey, client)

	done := make(chan error, 1)
	go func() {
		_, err := relay.Submit(context.Background(), session.ID, "slow question")
		done <- err
	}()

	require.Eventually(t, func() bool {
		client.mu.Lock()
		defer client.mu.Unlock()
		return len(client.requests) == 1
	}, time.Second, 5*time.Millisecond)

	_, err := relay.Submit(context.Background(), session.ID, "impatient question")
	var busy *chattypes.BusyError
	require.ErrorAs(t, err, &busy)
	assert.Equal(t, session.ID, busy.SessionID)

	close(client.block)
	require.NoError(t, <-done)
	assert.Equal(t, 2, session.Len())

	_, err = relay.Submit(context.Background(), session.ID, "next question")
	assert.NoError(t, err)
}

func TestRelayService_CancelledRequest(t *testing.T) {
	client := &fakeLLMClient{block: make(chan struct{})}
	relay, _, session := setupRelay(t, withKey, client)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := relay.Submit(ctx, session.ID, "Hello")
	assert.Equal(t, chattypes.KindExternalService, chattypes.KindOf(err))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, session.Len())
}

func TestRelayService_UserTurnHook(t *testing.T) {
	client := &fakeLLMClient{}
	relay, _, session := setupRelay(t, withKey, client)

	var seen []chattypes.Message
	_, err := relay.Submit(context.Background(), session.ID, "  Hello  ", WithUserTurnHook(func(m chattypes.Message) {
		seen = append(seen, m)
	}))
	require.NoError(t, err)
	require.Len(t, seen, 1)
	assert.Equal(t, "Hello", seen[0].Content)
}

func TestRelayService_SubmitStream(t *testing.T) {
	client := &fakeLLMClient{chunks: []chattypes.StreamChunk{
		{Content: "Hel"}, {Content: "lo"}, {Content: ", world"}, {Done: true},
	}}
	relay, _, session := setupRelay(t, withKey, client)

	var chunks []string
	reply, err := relay.SubmitStream(context.Background(), session.ID, "Hi", func(c string) {
		chunks = append(chunks, c)
		// The assistant turn is not visible until the stream completes.
		assert.Equal(t, 1, session.Len())
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Hel", "lo", ", world"}, chunks)
	assert.Equal(t, "Hello, world", reply.Content)
	assert.Equal(t, 2, session.Len())
}

func TestRelayService_SubmitStreamFailures(t *testing.T) {
	tests := []struct {
		name   string
		chunks []chattypes.StreamChunk
		err    error
	}{
		{
			name:   "mid-stream error discards partial text",
			chunks: []chattypes.StreamChunk{{Content: "partial "}, {Error: chattypes.NewExternalServiceError("groq", "stream broke", nil)}},
		},
		{
			name:   "stream closed without done",
			chunks: []chattypes.StreamChunk{{Content: "partial"}},
		},
		{
			name:   "stream could not start",
			err:    errors.New("dial tcp: refused"),
			chunks: nil,
		},
		{
			name:   "only whitespace",
			chunks: []chattypes.StreamChunk{{Content: "  "}, {Done: true}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &fakeLLMClient{chunks: tt.chunks, err: tt.err}
			relay, _, session := setupRelay(t, withKey, client)

			_, err := relay.SubmitStream(context.Background(), session.ID, "Hi", nil)
			assert.Equal(t, chattypes.KindExternalService, chattypes.KindOf(err))
			messages := session.Messages()
			require.Len(t, messages, 1)
			assert.Equal(t, chattypes.RoleUser, messages[0].Role)
		})
	}
}

func TestRelayService_UnknownSession(t *testing.T) {
	relay, _, _ := setupRelay(t, withKey, &fakeLLMClient{})
	_, err := relay.Submit(context.Background(), "no-such-session", "Hello")
	assert.EqualError(t, err, "session 'no-such-session' not found")
}
