package server

import (
	"html/template"
	"net/http"

	"apple2chat/internal/data/embedded"
	"apple2chat/internal/services"
	"apple2chat/internal/testutils"
	"apple2chat/internal/version"
	"apple2chat/pkg/chattypes"
)

// pageData is the input of the index template.
type pageData struct {
	PageTitle    string
	Configured   bool
	Provider     string
	ProviderName string
	AllowUIKey   bool
	Stream       bool
	Models       []chattypes.CatalogModel
	Settings     chattypes.SessionSettings
	Transcript   []turnView
}

// session returns the caller's chat session, starting a new one (and setting
// the cookie) when the cookie is missing, malformed or refers to an evicted session.
func (s *Server) session(w http.ResponseWriter, r *http.Request) (*chattypes.ChatSession, error) {
	var id string
	if cookie, err := r.Cookie(SessionCookieName); err == nil && testutils.IsValidUUID(cookie.Value) {
		id = cookie.Value
	}

	session, created, err := s.sessions.GetOrCreateSession(id)
	if err != nil {
		return nil, err
	}
	if created {
		http.SetCookie(w, &http.Cookie{
			Name:     SessionCookieName,
			Value:    session.ID,
			Path:     "/",
			HttpOnly: true,
			Secure:   r.TLS != nil,
			SameSite: http.SameSiteStrictMode,
		})
	}
	return session, nil
}

// view renders a turn for the browser. Assistant turns are Markdown; the
// rendered HTML is sanitized before it reaches the page.
func (s *Server) view(msg chattypes.Message) turnView {
	v := turnView{
		ID:        msg.ID,
		Role:      msg.Role,
		Content:   msg.Content,
		Timestamp: msg.Timestamp,
	}
	if msg.Role != chattypes.RoleAssistant {
		v.HTML = escapeText(msg.Content)
		return v
	}

	rendered, err := s.markdown.RenderHTML(msg.Content)
	if err != nil {
		s.log.Warn("Markdown rendering failed, sending plain text", "error", err)
		v.HTML = escapeText(msg.Content)
		return v
	}
	v.HTML = template.HTML(rendered)
	return v
}

func (s *Server) transcript(session *chattypes.ChatSession) []turnView {
	messages := session.Messages()
	views := make([]turnView, 0, len(messages))
	for _, msg := range messages {
		views = append(views, s.view(msg))
	}
	return views
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	session, err := s.session(w, r)
	if err != nil {
		writeError(w, err)
		return
	}

	provider := s.sessions.Provider()
	data := pageData{
		PageTitle:    PageTitle,
		Provider:     provider,
		ProviderName: provider,
		AllowUIKey:   s.cfg.AllowUIKey,
		Stream:       s.cfg.Stream,
		Settings:     session.Settings(),
		Transcript:   s.transcript(session),
	}
	if p, err := s.catalog.GetProvider(provider); err == nil && p.Name != "" {
		data.ProviderName = p.Name
	}
	if _, err := s.sessions.ResolveAPIKey(session); err == nil {
		data.Configured = true
	}
	if data.Models, err = s.sessions.AvailableModels(); err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.page.Execute(w, data); err != nil {
		s.log.Error("Page rendering failed", "error", err)
	}
}

func (s *Server) handleStylesheet(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/css; charset=utf-8")
	_, _ = w.Write(s.theme.Stylesheet())
}

func (s *Server) handleThemeCSS(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/css; charset=utf-8")
	_, _ = w.Write([]byte(s.theme.ThemeCSS()))
}

func (s *Server) handleScript(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/javascript; charset=utf-8")
	_, _ = w.Write(embedded.ClientScript)
}

func (s *Server) handleTranscript(w http.ResponseWriter, r *http.Request) {
	session, err := s.session(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, transcriptResponse{
		Messages: s.transcript(session),
		Settings: session.Settings(),
	})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	session, err := s.session(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	reply, err := s.relay.Submit(r.Context(), session.ID, req.Message)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, chatResponse{
		Transcript: s.transcript(session),
		Reply:      s.view(reply),
	})
}

// handleChatStream relays one message and streams the reply as server-sent
// events: "turn" once the user turn is recorded, "chunk" per partial text,
// then "done" with the assistant turn or "error". Failures before the user
// turn is recorded are plain JSON errors.
func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	session, err := s.session(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	started := false
	start := func() {
		if started {
			return
		}
		started = true
		h := w.Header()
		h.Set("Content-Type", "text/event-stream")
		h.Set("Connection", "keep-alive")
		h.Set("X-Accel-Buffering", "no")
		w.WriteHeader(http.StatusOK)
	}
	send := func(event string, v any) {
		start()
		if err := writeEvent(w, flusher, event, v); err != nil {
			s.log.Debug("Event write failed", "event", event, "error", err)
		}
	}

	onTurn := services.WithUserTurnHook(func(msg chattypes.Message) {
		send("turn", s.view(msg))
	})
	onChunk := func(text string) {
		send("chunk", map[string]string{"content": text})
	}

	reply, err := s.relay.SubmitStream(r.Context(), session.ID, req.Message, onChunk, onTurn)
	if err != nil {
		if !started {
			writeError(w, err)
			return
		}
		send("error", errorPayload(err))
		return
	}
	send("done", s.view(reply))
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	session, err := s.session(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	models, err := s.sessions.AvailableModels()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, modelsResponse{
		Provider: s.sessions.Provider(),
		Models:   models,
		Selected: session.Model(),
	})
}

func (s *Server) handleSelectModel(w http.ResponseWriter, r *http.Request) {
	session, err := s.session(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req modelRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := s.sessions.SelectModel(session, req.Model); err != nil {
		writeError(w, err)
		return
	}
	s.log.Info("Model selected", "session", session.ID, "model", req.Model)
	writeJSON(w, http.StatusOK, settingsResponse{Settings: session.Settings()})
}

func (s *Server) handleSetKey(w http.ResponseWriter, r *http.Request) {
	if !s.cfg.AllowUIKey {
		writeJSON(w, http.StatusForbidden, errorResponse{Error: errorBody{
			Kind:    chattypes.KindConfiguration,
			Message: "Entering an API key in the page is disabled",
		}})
		return
	}
	session, err := s.session(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req keyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := s.sessions.SetAPIKey(session, req.APIKey); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settingsResponse{Settings: session.Settings()})
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	session, err := s.session(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req settingsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.ChainOfThought != nil {
		if err := s.sessions.SetChainOfThought(session, *req.ChainOfThought); err != nil {
			writeError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, settingsResponse{Settings: session.Settings()})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"version":  version.GetVersion(),
		"provider": s.sessions.Provider(),
		"sessions": s.sessions.SessionCount(),
	})
}
