// Package server serves the apple2chat web page and its JSON/SSE API.
//
// Endpoints:
//   - GET  /                  - Chat page
//   - GET  /static/style.css  - Active stylesheet
//   - GET  /static/theme.css  - Theme colours as CSS variables
//   - GET  /static/app.js     - Browser client
//   - GET  /api/transcript    - Current session transcript
//   - POST /api/chat          - Relay one message
//   - POST /api/chat/stream   - Relay one message as server-sent events
//   - GET  /api/models        - Selectable models
//   - POST /api/model         - Select a model
//   - POST /api/key           - Set the session API key
//   - POST /api/settings      - Toggle chain of thought
//   - GET  /healthz           - Health check
package server

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"apple2chat/internal/data/embedded"
	"apple2chat/internal/logger"
	"apple2chat/internal/services"
)

const (
	// DefaultAddr matches the port the page has always been served on.
	DefaultAddr = "127.0.0.1:8501"

	// MaxRequestBodySize bounds JSON request bodies (64KB).
	MaxRequestBodySize = 64 * 1024

	// SessionCookieName identifies the browser session.
	SessionCookieName = "apple2chat_session"

	// PageTitle is the browser tab title.
	PageTitle = "Apple ][e Chat"

	shutdownTimeout = 10 * time.Second
)

// Config holds the web server options.
type Config struct {
	Addr       string
	AllowUIKey bool       // Show the API key field and accept POST /api/key
	Stream     bool       // Browser client uses /api/chat/stream
	RateLimit  rate.Limit // Requests per second per client IP on /api routes
	RateBurst  int
}

// DefaultConfig returns the defaults used by the serve command.
func DefaultConfig() Config {
	return Config{
		Addr:       DefaultAddr,
		AllowUIKey: true,
		Stream:     true,
		RateLimit:  rate.Limit(2),
		RateBurst:  10,
	}
}

// Server is the HTTP front-end of the relay.
type Server struct {
	cfg    Config
	router *http.ServeMux
	server *http.Server
	page   *template.Template
	log    *log.Logger

	sessions      *services.ChatSessionService
	relay         *services.RelayService
	configuration *services.ConfigurationService
	catalog       *services.CatalogService
	markdown      *services.MarkdownService
	theme         *services.ThemeService
	limiter       *ipRateLimiter
}

// New creates a Server backed by the services in the global registry.
func New(cfg Config) (*Server, error) {
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}

	s := &Server{
		cfg:     cfg,
		router:  http.NewServeMux(),
		log:     logger.NewStyledLogger("server"),
		limiter: newIPRateLimiter(cfg.RateLimit, cfg.RateBurst),
	}

	var err error
	if s.sessions, err = services.Lookup[*services.ChatSessionService]("chat_session"); err != nil {
		return nil, err
	}
	if s.relay, err = services.Lookup[*services.RelayService]("relay"); err != nil {
		return nil, err
	}
	if s.configuration, err = services.Lookup[*services.ConfigurationService]("configuration"); err != nil {
		return nil, err
	}
	if s.catalog, err = services.Lookup[*services.CatalogService]("catalog"); err != nil {
		return nil, err
	}
	if s.markdown, err = services.Lookup[*services.MarkdownService]("markdown"); err != nil {
		return nil, err
	}
	if s.theme, err = services.Lookup[*services.ThemeService]("theme"); err != nil {
		return nil, err
	}

	s.page, err = template.New("index").Parse(embedded.IndexTemplate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse page template: %w", err)
	}

	s.setupRoutes()
	return s, nil
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("GET /{$}", s.handleIndex)
	s.router.HandleFunc("GET /static/style.css", s.handleStylesheet)
	s.router.HandleFunc("GET /static/theme.css", s.handleThemeCSS)
	s.router.HandleFunc("GET /static/app.js", s.handleScript)

	s.router.HandleFunc("GET /api/transcript", s.handleTranscript)
	s.router.HandleFunc("POST /api/chat", s.handleChat)
	s.router.HandleFunc("POST /api/chat/stream", s.handleChatStream)
	s.router.HandleFunc("GET /api/models", s.handleModels)
	s.router.HandleFunc("POST /api/model", s.handleSelectModel)
	s.router.HandleFunc("POST /api/key", s.handleSetKey)
	s.router.HandleFunc("POST /api/settings", s.handleSettings)

	s.router.HandleFunc("GET /healthz", s.handleHealth)
}

// Handler returns the router wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	return Chain(
		RecoveryMiddleware(s.log),
		SecurityHeadersMiddleware(),
		LoggingMiddleware(s.log),
		RateLimitMiddleware(s.limiter, s.log),
		BodyLimitMiddleware(MaxRequestBodySize),
	)(s.router)
}

// Serve listens on the configured address until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Addr, err)
	}
	return s.ServeListener(ctx, listener)
}

// ServeListener is Serve on an existing listener.
func (s *Server) ServeListener(ctx context.Context, listener net.Listener) error {
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("Server started", "addr", listener.Addr().String(), "provider", s.sessions.Provider())
		errCh <- s.server.Serve(listener)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	return nil
}
