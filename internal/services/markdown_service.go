package services

import (
	"bytes"
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
	"github.com/microcosm-cc/bluemonday"
	"github.com/muesli/termenv"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"

	"apple2chat/internal/logger"
)

// MarkdownService renders assistant replies: sanitized HTML for the web page
// and ANSI output for the terminal client.
type MarkdownService struct {
	initialized bool
	markdown    goldmark.Markdown
	policy      *bluemonday.Policy

	mu        sync.Mutex
	style     string
	wordWrap  int
	renderers map[string]*glamour.TermRenderer
}

// NewMarkdownService creates a new MarkdownService instance.
func NewMarkdownService() *MarkdownService {
	return &MarkdownService{
		initialized: false,
		wordWrap:    80,
		renderers:   make(map[string]*glamour.TermRenderer),
	}
}

// Name returns the service name "markdown" for registration.
func (m *MarkdownService) Name() string {
	return "markdown"
}

// Initialize builds the HTML pipeline. Terminal renderers are created on first use.
func (m *MarkdownService) Initialize() error {
	if m.initialized {
		return nil
	}

	m.markdown = goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithRendererOptions(html.WithHardWraps()),
	)
	m.policy = bluemonday.UGCPolicy()
	m.initialized = true

	logger.Debug("MarkdownService initialized successfully")
	return nil
}

// RenderHTML converts markdown to sanitized HTML. Raw HTML in the source is
// escaped by goldmark and anything unsafe left over is stripped by the policy.
func (m *MarkdownService) RenderHTML(markdown string) (string, error) {
	if !m.initialized {
		return "", fmt.Errorf("markdown service not initialized")
	}

	var buf bytes.Buffer
	if err := m.markdown.Convert([]byte(markdown), &buf); err != nil {
		return "", fmt.Errorf("failed to render markdown: %w", err)
	}
	return m.policy.Sanitize(buf.String()), nil
}

// SetTerminalStyle selects the glamour style: "auto", "dark", "light", "notty" or "ascii".
func (m *MarkdownService) SetTerminalStyle(style string) error {
	if !m.initialized {
		return fmt.Errorf("markdown service not initialized")
	}
	style = strings.ToLower(strings.TrimSpace(style))
	switch style {
	case "auto", "dark", "light", "notty", "ascii":
	default:
		return fmt.Errorf("unknown markdown style '%s'", style)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.style = style
	return nil
}

// SetWordWrap sets the word wrap width for terminal rendering.
func (m *MarkdownService) SetWordWrap(width int) error {
	if !m.initialized {
		return fmt.Errorf("markdown service not initialized")
	}
	if width <= 0 {
		return fmt.Errorf("word wrap width must be positive, got %d", width)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.wordWrap = width
	m.renderers = make(map[string]*glamour.TermRenderer)
	logger.Debug("MarkdownService word wrap updated", "width", width)
	return nil
}

// RenderTerminal renders markdown to ANSI terminal output.
func (m *MarkdownService) RenderTerminal(markdown string) (string, error) {
	if !m.initialized {
		return "", fmt.Errorf("markdown service not initialized")
	}
	if strings.TrimSpace(markdown) == "" {
		return "", fmt.Errorf("markdown content cannot be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	style := m.resolveStyle()
	renderer, ok := m.renderers[style]
	if !ok {
		var err error
		renderer, err = glamour.NewTermRenderer(
			glamour.WithStandardStyle(style),
			glamour.WithWordWrap(m.wordWrap),
		)
		if err != nil {
			return "", fmt.Errorf("failed to create markdown renderer: %w", err)
		}
		m.renderers[style] = renderer
	}

	rendered, err := renderer.Render(markdown)
	if err != nil {
		return "", fmt.Errorf("failed to render markdown with style '%s': %w", style, err)
	}
	return rendered, nil
}

// resolveStyle maps "auto" to a concrete style from the terminal's capabilities.
func (m *MarkdownService) resolveStyle() string {
	if m.style != "" && m.style != "auto" {
		return m.style
	}
	output := termenv.DefaultOutput()
	if output.Profile == termenv.Ascii {
		return "notty"
	}
	if output.HasDarkBackground() {
		return "dark"
	}
	return "light"
}
