package services

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/charmbracelet/lipgloss"
	"github.com/fsnotify/fsnotify"

	"apple2chat/internal/data/embedded"
	"apple2chat/internal/logger"
	"apple2chat/pkg/chattypes"
)

var hexColorPattern = regexp.MustCompile(`^#([0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

// ThemeService owns the page skin: the [theme] colour settings and the stylesheet.
// Both are cosmetic; load failures fall back to the embedded defaults.
type ThemeService struct {
	initialized bool

	mu             sync.RWMutex
	theme          chattypes.ThemeConfig
	stylesheet     []byte
	stylesheetPath string
}

// TerminalTheme holds lipgloss styles derived from the theme for the terminal client.
type TerminalTheme struct {
	Title     lipgloss.Style
	Prompt    lipgloss.Style
	User      lipgloss.Style
	Assistant lipgloss.Style
	Info      lipgloss.Style
	Error     lipgloss.Style
}

// NewThemeService creates a new ThemeService instance.
func NewThemeService() *ThemeService {
	return &ThemeService{
		initialized: false,
	}
}

// Name returns the service name "theme" for registration.
func (t *ThemeService) Name() string {
	return "theme"
}

// Initialize loads the embedded default theme and stylesheet.
func (t *ThemeService) Initialize() error {
	if t.initialized {
		return nil
	}

	theme, err := ParseTheme(embedded.DefaultThemeData, chattypes.ThemeConfig{})
	if err != nil {
		return fmt.Errorf("failed to load default theme: %w", err)
	}

	t.mu.Lock()
	t.theme = theme
	t.stylesheet = embedded.StyleSheetData
	t.mu.Unlock()

	t.initialized = true
	return nil
}

// ParseTheme decodes a [theme] TOML document. Keys it leaves out keep their
// value from base. Colours must be #RGB or #RRGGBB.
func ParseTheme(data []byte, base chattypes.ThemeConfig) (chattypes.ThemeConfig, error) {
	file := chattypes.ThemeFile{Theme: base}
	if _, err := toml.Decode(string(data), &file); err != nil {
		return chattypes.ThemeConfig{}, fmt.Errorf("failed to parse theme: %w", err)
	}

	theme := file.Theme
	colors := map[string]string{
		"primaryColor":             theme.PrimaryColor,
		"backgroundColor":          theme.BackgroundColor,
		"secondaryBackgroundColor": theme.SecondaryBackgroundColor,
		"textColor":                theme.TextColor,
	}
	for key, value := range colors {
		if value != "" && !hexColorPattern.MatchString(value) {
			return chattypes.ThemeConfig{}, fmt.Errorf("invalid %s '%s': expected #RGB or #RRGGBB", key, value)
		}
	}
	if strings.ContainsAny(theme.Font, ";{}<>") {
		return chattypes.ThemeConfig{}, fmt.Errorf("invalid font '%s'", theme.Font)
	}
	return theme, nil
}

// LoadThemeFile applies a Streamlit-style config.toml on top of the current theme.
func (t *ThemeService) LoadThemeFile(path string) error {
	if !t.initialized {
		return fmt.Errorf("theme service not initialized")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read theme config: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	theme, err := ParseTheme(data, t.theme)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	t.theme = theme
	logger.Debug("Theme loaded", "path", path)
	return nil
}

// Theme returns the active theme settings.
func (t *ThemeService) Theme() chattypes.ThemeConfig {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.theme
}

// ThemeCSS renders the theme as CSS custom properties consumed by the stylesheet.
func (t *ThemeService) ThemeCSS() string {
	theme := t.Theme()
	var b strings.Builder
	b.WriteString(":root {\n")
	write := func(name, value string) {
		if value != "" {
			fmt.Fprintf(&b, "  --%s: %s;\n", name, value)
		}
	}
	write("primary-color", theme.PrimaryColor)
	write("background-color", theme.BackgroundColor)
	write("secondary-background-color", theme.SecondaryBackgroundColor)
	write("text-color", theme.TextColor)
	write("font", theme.Font)
	b.WriteString("}\n")
	return b.String()
}

// LoadStylesheet replaces the stylesheet with the file at path. A missing file
// is not an error: a warning is logged and the embedded stylesheet stays active.
func (t *ThemeService) LoadStylesheet(path string) error {
	if !t.initialized {
		return fmt.Errorf("theme service not initialized")
	}

	t.mu.Lock()
	t.stylesheetPath = path
	t.mu.Unlock()
	return t.reloadStylesheet()
}

func (t *ThemeService) reloadStylesheet() error {
	t.mu.RLock()
	path := t.stylesheetPath
	t.mu.RUnlock()
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		logger.Warn("Style.css not found, using built-in stylesheet", "path", path)
		t.mu.Lock()
		t.stylesheet = embedded.StyleSheetData
		t.mu.Unlock()
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read stylesheet: %w", err)
	}

	t.mu.Lock()
	t.stylesheet = data
	t.mu.Unlock()
	logger.Debug("Stylesheet loaded", "path", path, "bytes", len(data))
	return nil
}

// Stylesheet returns the active stylesheet.
func (t *ThemeService) Stylesheet() []byte {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.stylesheet
}

// WatchStylesheet reloads the stylesheet whenever its file is written or
// recreated, until ctx is cancelled. The parent directory is watched so that
// editors that replace the file on save are handled.
func (t *ThemeService) WatchStylesheet(ctx context.Context) error {
	t.mu.RLock()
	path := t.stylesheetPath
	t.mu.RUnlock()
	if path == "" {
		return fmt.Errorf("no stylesheet file configured")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(path), err)
	}

	target := filepath.Clean(path)
	go func() {
		defer func() { _ = watcher.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Remove) {
					if err := t.reloadStylesheet(); err != nil {
						logger.Warn("Stylesheet reload failed", "path", path, "error", err)
					} else {
						logger.Info("Stylesheet reloaded", "path", path)
					}
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("Stylesheet watcher error", "error", err)
			}
		}
	}()

	logger.Debug("Watching stylesheet", "path", path)
	return nil
}

// TerminalTheme derives terminal styles from the theme colours.
func (t *ThemeService) TerminalTheme() TerminalTheme {
	theme := t.Theme()
	primary := lipgloss.Color(orDefault(theme.PrimaryColor, "#33FF33"))
	text := lipgloss.Color(orDefault(theme.TextColor, "#33FF33"))
	secondary := lipgloss.Color(orDefault(theme.SecondaryBackgroundColor, "#001100"))

	return TerminalTheme{
		Title:     lipgloss.NewStyle().Bold(true).Foreground(primary),
		Prompt:    lipgloss.NewStyle().Foreground(primary),
		User:      lipgloss.NewStyle().Foreground(text),
		Assistant: lipgloss.NewStyle().Foreground(text).Background(secondary),
		Info:      lipgloss.NewStyle().Faint(true).Foreground(text),
		Error:     lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF3333")),
	}
}

func orDefault(value, def string) string {
	if value == "" {
		return def
	}
	return value
}
