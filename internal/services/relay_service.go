package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"

	"apple2chat/internal/logger"
	"apple2chat/pkg/chattypes"
)

// ChainOfThoughtPrompt is sent as the system prompt when a session enables chain of thought.
const ChainOfThoughtPrompt = "Think through the problem step by step, showing your reasoning, before giving your final answer."

// ClientProvider hands out completion clients for a provider and credential.
// ClientFactoryService is the production implementation.
type ClientProvider interface {
	GetClientForProvider(provider, apiKey string) (chattypes.LLMClient, error)
}

// SubmitOption customizes a single submission.
type SubmitOption func(*submitOptions)

type submitOptions struct {
	onUserTurn func(chattypes.Message)
}

// WithUserTurnHook registers a callback invoked right after the user's turn is appended.
func WithUserTurnHook(fn func(chattypes.Message)) SubmitOption {
	return func(o *submitOptions) {
		o.onUserTurn = fn
	}
}

// RelayService is the conversation relay: it appends the user's turn, forwards
// the transcript to the completion API and appends the reply.
type RelayService struct {
	initialized   bool
	sessions      *ChatSessionService
	configuration *ConfigurationService
	clients       ClientProvider
	log           *log.Logger
}

// NewRelayService creates a new RelayService instance.
func NewRelayService() *RelayService {
	return &RelayService{
		initialized: false,
	}
}

// Name returns the service name "relay" for registration.
func (r *RelayService) Name() string {
	return "relay"
}

// Initialize wires the relay to the session, configuration and client factory services.
func (r *RelayService) Initialize() error {
	if r.initialized {
		return nil
	}

	sessions, err := Lookup[*ChatSessionService]("chat_session")
	if err != nil {
		return fmt.Errorf("relay requires chat sessions: %w", err)
	}
	configuration, err := Lookup[*ConfigurationService]("configuration")
	if err != nil {
		return fmt.Errorf("relay requires configuration: %w", err)
	}
	if r.clients == nil {
		factory, err := Lookup[*ClientFactoryService]("client_factory")
		if err != nil {
			return fmt.Errorf("relay requires client factory: %w", err)
		}
		r.clients = factory
	}

	r.sessions = sessions
	r.configuration = configuration
	r.log = logger.NewStyledLogger("relay")
	r.initialized = true
	return nil
}

// SetClientProvider replaces the source of completion clients.
func (r *RelayService) SetClientProvider(clients ClientProvider) {
	r.clients = clients
}

// Submit relays one user message and returns the appended assistant turn.
//
// Empty input fails with a ValidationError and leaves the transcript untouched.
// Otherwise the user turn is appended first; a missing credential
// (ConfigurationError) or a failed API call (ExternalServiceError) leaves that
// turn in place and appends nothing else.
func (r *RelayService) Submit(ctx context.Context, sessionID, userText string, opts ...SubmitOption) (chattypes.Message, error) {
	session, client, req, err := r.begin(sessionID, userText, opts)
	if err != nil {
		return chattypes.Message{}, err
	}
	defer session.End()

	r.log.Debug("Sending completion", "session", session.ID, "provider", client.GetProviderName(), "model", req.Model.BaseModel, "turns", len(req.Messages))
	reply, err := client.SendChatCompletion(ctx, req)
	if err != nil {
		return chattypes.Message{}, r.fail(session, client.GetProviderName(), err)
	}

	return r.finish(session, client.GetProviderName(), reply)
}

// SubmitStream is Submit over the provider's incremental stream. onChunk is
// called for every partial chunk. The assistant turn is appended only after
// the stream completes; a mid-stream failure discards the partial text.
func (r *RelayService) SubmitStream(ctx context.Context, sessionID, userText string, onChunk func(string), opts ...SubmitOption) (chattypes.Message, error) {
	session, client, req, err := r.begin(sessionID, userText, opts)
	if err != nil {
		return chattypes.Message{}, err
	}
	defer session.End()

	provider := client.GetProviderName()
	r.log.Debug("Streaming completion", "session", session.ID, "provider", provider, "model", req.Model.BaseModel, "turns", len(req.Messages))

	stream, err := client.StreamChatCompletion(ctx, req)
	if err != nil {
		return chattypes.Message{}, r.fail(session, provider, err)
	}

	var reply strings.Builder
	for {
		select {
		case <-ctx.Done():
			return chattypes.Message{}, r.fail(session, provider, ctx.Err())
		case chunk, ok := <-stream:
			if !ok {
				return chattypes.Message{}, r.fail(session, provider, errors.New("stream ended before completion"))
			}
			if chunk.Error != nil {
				return chattypes.Message{}, r.fail(session, provider, chunk.Error)
			}
			if chunk.Content != "" {
				reply.WriteString(chunk.Content)
				if onChunk != nil {
					onChunk(chunk.Content)
				}
			}
			if chunk.Done {
				return r.finish(session, provider, reply.String())
			}
		}
	}
}

// begin validates input, claims the session, appends the user turn and
// prepares the outbound request. On success the caller must call session.End.
func (r *RelayService) begin(sessionID, userText string, opts []SubmitOption) (*chattypes.ChatSession, chattypes.LLMClient, *chattypes.CompletionRequest, error) {
	if !r.initialized {
		return nil, nil, nil, fmt.Errorf("relay service not initialized")
	}

	options := submitOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	session, err := r.sessions.GetSession(sessionID)
	if err != nil {
		return nil, nil, nil, err
	}
	if _, err := r.sessions.ValidateContent(userText); err != nil {
		return nil, nil, nil, err
	}
	if !session.TryBegin() {
		return nil, nil, nil, &chattypes.BusyError{SessionID: session.ID}
	}

	release := true
	defer func() {
		if release {
			session.End()
		}
	}()

	userTurn, err := r.sessions.AddMessage(session, string(chattypes.RoleUser), userText)
	if err != nil {
		return nil, nil, nil, err
	}
	if options.onUserTurn != nil {
		options.onUserTurn(userTurn)
	}

	provider := r.sessions.Provider()
	apiKey, err := r.sessions.ResolveAPIKey(session)
	if err != nil {
		r.log.Warn("No credential for submission", "session", session.ID, "provider", provider)
		return nil, nil, nil, err
	}
	client, err := r.clients.GetClientForProvider(provider, apiKey)
	if err != nil {
		return nil, nil, nil, err
	}

	release = false
	return session, client, r.buildRequest(session, provider), nil
}

// buildRequest assembles the context window, system prompt and model parameters.
func (r *RelayService) buildRequest(session *chattypes.ChatSession, provider string) *chattypes.CompletionRequest {
	req := &chattypes.CompletionRequest{
		Messages: r.contextWindow(session),
		Model: &chattypes.ModelConfig{
			Provider:   provider,
			BaseModel:  session.Model(),
			Parameters: map[string]any{"temperature": 0.0},
		},
	}
	if maxTokens := r.configuration.GetIntValue("APPLE2CHAT_MAX_TOKENS", 0); maxTokens > 0 {
		req.Model.Parameters["max_tokens"] = maxTokens
	}
	if session.ChainOfThought() {
		req.SystemPrompt = ChainOfThoughtPrompt
	}
	return req
}

// contextWindow returns the most recent turns sent to the provider. The window
// always opens on a user turn.
func (r *RelayService) contextWindow(session *chattypes.ChatSession) []chattypes.Message {
	limit := r.configuration.GetIntValue("APPLE2CHAT_MAX_CONTEXT_MESSAGES", 100)
	turns := session.RecentMessages(limit)
	for len(turns) > 1 && turns[0].Role != chattypes.RoleUser {
		turns = turns[1:]
	}
	return turns
}

// finish appends the assistant turn for a successful reply.
func (r *RelayService) finish(session *chattypes.ChatSession, provider, reply string) (chattypes.Message, error) {
	if strings.TrimSpace(reply) == "" {
		return chattypes.Message{}, r.fail(session, provider, emptyResponseError(provider))
	}

	msg, err := r.sessions.AddMessage(session, string(chattypes.RoleAssistant), reply)
	if err != nil {
		return chattypes.Message{}, err
	}
	r.log.Info("Reply appended", "session", session.ID, "provider", provider, "length", len(msg.Content), "turns", session.Len())
	return msg, nil
}

// fail logs a failed call and makes sure it surfaces as a classified error.
func (r *RelayService) fail(session *chattypes.ChatSession, provider string, err error) error {
	var cfgErr *chattypes.ConfigurationError
	var svcErr *chattypes.ExternalServiceError
	if !errors.As(err, &cfgErr) && !errors.As(err, &svcErr) {
		err = wrapProviderError(provider, "completion request failed", err)
	}
	r.log.Error("Completion failed", "session", session.ID, "provider", provider, "error", err)
	return err
}
