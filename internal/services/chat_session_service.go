package services

import (
	"fmt"
	"strings"

	"apple2chat/internal/context"
	"apple2chat/internal/logger"
	"apple2chat/internal/testutils"
	"apple2chat/pkg/chattypes"
)

// ChatSessionService manages per-browser chat sessions and their transcripts.
// Sessions are stored in the global context's LRU session store.
type ChatSessionService struct {
	initialized   bool
	configuration *ConfigurationService
	catalog       *CatalogService
}

// NewChatSessionService creates a new ChatSessionService instance.
func NewChatSessionService() *ChatSessionService {
	return &ChatSessionService{
		initialized: false,
	}
}

// Name returns the service name "chat_session" for registration.
func (c *ChatSessionService) Name() string {
	return "chat_session"
}

// Initialize resolves the configuration and catalog services it depends on.
func (c *ChatSessionService) Initialize() error {
	if c.initialized {
		return nil
	}

	configuration, err := Lookup[*ConfigurationService]("configuration")
	if err != nil {
		return fmt.Errorf("chat session service requires configuration: %w", err)
	}
	catalog, err := Lookup[*CatalogService]("catalog")
	if err != nil {
		return fmt.Errorf("chat session service requires catalog: %w", err)
	}

	c.configuration = configuration
	c.catalog = catalog
	c.initialized = true
	return nil
}

// Provider returns the configured completion provider.
func (c *ChatSessionService) Provider() string {
	if !c.initialized {
		return ""
	}
	provider, _ := c.configuration.GetConfigValue("APPLE2CHAT_PROVIDER")
	if provider == "" {
		return "groq"
	}
	return strings.ToLower(provider)
}

// DefaultModel returns the model new sessions start with: the configured
// APPLE2CHAT_MODEL when it is available, else the provider's catalog default.
func (c *ChatSessionService) DefaultModel() (string, error) {
	if !c.initialized {
		return "", fmt.Errorf("chat session service not initialized")
	}

	provider := c.Provider()
	if configured, _ := c.configuration.GetConfigValue("APPLE2CHAT_MODEL"); configured != "" {
		if c.catalog.IsValidModel(provider, configured) {
			return configured, nil
		}
		logger.Warn("Configured model not available, using provider default", "model", configured, "provider", provider)
	}
	return c.catalog.DefaultModel(provider)
}

// GetSession returns an existing session by ID.
func (c *ChatSessionService) GetSession(id string) (*chattypes.ChatSession, error) {
	if !c.initialized {
		return nil, fmt.Errorf("chat session service not initialized")
	}

	session, ok := context.GetGlobalContext().Sessions().Get(id)
	if !ok {
		return nil, fmt.Errorf("session '%s' not found", id)
	}
	return session, nil
}

// GetOrCreateSession returns the session with the given ID, creating a new one
// (with a fresh ID) when id is empty or unknown. The boolean reports creation.
func (c *ChatSessionService) GetOrCreateSession(id string) (*chattypes.ChatSession, bool, error) {
	if !c.initialized {
		return nil, false, fmt.Errorf("chat session service not initialized")
	}

	appCtx := context.GetGlobalContext()
	if id != "" {
		if session, ok := appCtx.Sessions().Get(id); ok {
			c.ReconcileModel(session)
			return session, false, nil
		}
	}

	model, err := c.DefaultModel()
	if err != nil {
		return nil, false, err
	}

	session := chattypes.NewChatSession(testutils.GenerateUUID(appCtx), testutils.GetCurrentTime(appCtx), model)
	appCtx.Sessions().Put(session)
	logger.Debug("Created chat session", "session", session.ID, "model", model)
	return session, true, nil
}

// SessionCount returns the number of live sessions.
func (c *ChatSessionService) SessionCount() int {
	return context.GetGlobalContext().Sessions().Size()
}

// ValidateContent trims message content and rejects blank input.
func (c *ChatSessionService) ValidateContent(content string) (string, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return "", chattypes.NewValidationError("Message content cannot be empty")
	}
	return trimmed, nil
}

// AddMessage validates role and content and appends a new turn to the session transcript.
func (c *ChatSessionService) AddMessage(session *chattypes.ChatSession, role, content string) (chattypes.Message, error) {
	if !c.initialized {
		return chattypes.Message{}, fmt.Errorf("chat session service not initialized")
	}

	validRole, err := chattypes.ParseRole(role)
	if err != nil {
		return chattypes.Message{}, err
	}
	validContent, err := c.ValidateContent(content)
	if err != nil {
		return chattypes.Message{}, err
	}

	appCtx := context.GetGlobalContext()
	msg := chattypes.Message{
		ID:        testutils.GenerateUUID(appCtx),
		Role:      validRole,
		Content:   validContent,
		Timestamp: testutils.GetCurrentTime(appCtx),
	}
	session.Append(msg)
	return msg, nil
}

// AvailableModels returns the models selectable for the configured provider.
func (c *ChatSessionService) AvailableModels() ([]chattypes.CatalogModel, error) {
	if !c.initialized {
		return nil, fmt.Errorf("chat session service not initialized")
	}
	return c.catalog.AvailableModels(c.Provider())
}

// SelectModel changes the session's model. Models outside the available list
// are rejected with a ValidationError.
func (c *ChatSessionService) SelectModel(session *chattypes.ChatSession, model string) error {
	if !c.initialized {
		return fmt.Errorf("chat session service not initialized")
	}

	model = strings.TrimSpace(model)
	if !c.catalog.IsValidModel(c.Provider(), model) {
		return chattypes.NewValidationError("Model %s not in available models", model)
	}
	session.SetModel(model)
	return nil
}

// ReconcileModel resets the session to the default model if its selection is no longer available.
func (c *ChatSessionService) ReconcileModel(session *chattypes.ChatSession) {
	if !c.initialized || c.catalog.IsValidModel(c.Provider(), session.Model()) {
		return
	}
	if model, err := c.DefaultModel(); err == nil {
		logger.Debug("Selected model no longer available", "session", session.ID, "from", session.Model(), "to", model)
		session.SetModel(model)
	}
}

// SetAPIKey sets the session credential override. A blank key clears it.
func (c *ChatSessionService) SetAPIKey(session *chattypes.ChatSession, key string) error {
	if !c.initialized {
		return fmt.Errorf("chat session service not initialized")
	}

	key = strings.TrimSpace(key)
	if key == "" {
		session.SetAPIKey("")
		return nil
	}
	if err := ValidateAPIKey(key); err != nil {
		return err
	}
	session.SetAPIKey(key)
	return nil
}

// SetChainOfThought toggles the step-by-step reasoning prompt for the session.
func (c *ChatSessionService) SetChainOfThought(session *chattypes.ChatSession, enabled bool) error {
	if !c.initialized {
		return fmt.Errorf("chat session service not initialized")
	}
	session.SetChainOfThought(enabled)
	return nil
}

// ResolveAPIKey returns the session override or the configured provider key.
func (c *ChatSessionService) ResolveAPIKey(session *chattypes.ChatSession) (string, error) {
	if !c.initialized {
		return "", fmt.Errorf("chat session service not initialized")
	}
	if key := session.APIKey(); key != "" {
		return key, nil
	}
	return c.configuration.GetAPIKey(c.Provider())
}
