// Package shell provides the interactive terminal client for apple2chat.
// It reads lines with readline, relays them through the same services as the
// web page and renders replies with glamour.
package shell

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"

	"apple2chat/internal/services"
	"apple2chat/pkg/chattypes"
)

// Prompt is the Applesoft BASIC prompt character.
const Prompt = "] "

// ErrExit is returned by ProcessInput when the user asks to leave.
var ErrExit = errors.New("exit requested")

// Shell is a terminal chat session.
type Shell struct {
	out     io.Writer
	stream  bool
	styles  services.TerminalTheme
	session *chattypes.ChatSession

	sessions *services.ChatSessionService
	relay    *services.RelayService
	markdown *services.MarkdownService
}

// New creates a Shell writing to out, with a fresh chat session.
func New(out io.Writer, stream bool) (*Shell, error) {
	sessions, err := services.Lookup[*services.ChatSessionService]("chat_session")
	if err != nil {
		return nil, err
	}
	relay, err := services.Lookup[*services.RelayService]("relay")
	if err != nil {
		return nil, err
	}
	markdown, err := services.Lookup[*services.MarkdownService]("markdown")
	if err != nil {
		return nil, err
	}
	theme, err := services.Lookup[*services.ThemeService]("theme")
	if err != nil {
		return nil, err
	}

	session, _, err := sessions.GetOrCreateSession("")
	if err != nil {
		return nil, err
	}

	return &Shell{
		out:      out,
		stream:   stream,
		styles:   theme.TerminalTheme(),
		session:  session,
		sessions: sessions,
		relay:    relay,
		markdown: markdown,
	}, nil
}

// Session returns the chat session driven by this shell.
func (s *Shell) Session() *chattypes.ChatSession {
	return s.session
}

// Banner prints the start-up screen.
func (s *Shell) Banner() {
	s.println(s.styles.Title.Render("APPLE ][ e CHAT INTERFACE"))
	s.println(s.styles.Info.Render(fmt.Sprintf("Provider: %s  Model: %s", s.sessions.Provider(), s.session.Model())))
	if _, err := s.sessions.ResolveAPIKey(s.session); err != nil {
		s.println(s.styles.Error.Render(err.Error()))
		s.println(s.styles.Info.Render("Use /key <api-key> to set one for this session."))
	}
	s.println(s.styles.Info.Render("Type /help for commands."))
	s.println(s.styles.Prompt.Render("]READY"))
}

// Run reads lines until /exit, EOF or ctx is cancelled.
func (s *Shell) Run(ctx context.Context) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:            s.styles.Prompt.Render(Prompt),
		AutoComplete:      s.completer(),
		InterruptPrompt:   "^C",
		EOFPrompt:         "/exit",
		HistorySearchFold: true,
	})
	if err != nil {
		return fmt.Errorf("failed to start line editor: %w", err)
	}
	defer func() { _ = rl.Close() }()

	s.out = rl.Stdout()
	s.Banner()

	go func() {
		<-ctx.Done()
		_ = rl.Close()
	}()

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if line == "" {
				return nil
			}
			continue
		}
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return err
		}

		if err := s.ProcessInput(ctx, line); errors.Is(err, ErrExit) {
			return nil
		}
	}
}

func (s *Shell) completer() *readline.PrefixCompleter {
	models := func(string) []string {
		available, err := s.sessions.AvailableModels()
		if err != nil {
			return nil
		}
		ids := make([]string, 0, len(available))
		for _, model := range available {
			ids = append(ids, model.ID)
		}
		return ids
	}
	return readline.NewPrefixCompleter(
		readline.PcItem("/help"),
		readline.PcItem("/models"),
		readline.PcItem("/model", readline.PcItemDynamic(models)),
		readline.PcItem("/cot", readline.PcItem("on"), readline.PcItem("off")),
		readline.PcItem("/key"),
		readline.PcItem("/history"),
		readline.PcItem("/exit"),
	)
}

// ProcessInput handles one line: a slash command or a chat message.
// Errors are printed; only ErrExit is returned.
func (s *Shell) ProcessInput(ctx context.Context, line string) error {
	input := strings.TrimSpace(line)
	if input == "" {
		return nil
	}

	if !strings.HasPrefix(input, "/") {
		s.submit(ctx, input)
		return nil
	}

	command, arg, _ := strings.Cut(input, " ")
	arg = strings.TrimSpace(arg)

	var err error
	switch command {
	case "/exit", "/quit":
		return ErrExit
	case "/help":
		s.help()
	case "/models":
		err = s.listModels()
	case "/model":
		err = s.selectModel(arg)
	case "/cot":
		err = s.chainOfThought(arg)
	case "/key":
		err = s.setKey(arg)
	case "/history":
		s.history()
	default:
		err = chattypes.NewValidationError("unknown command %s (type /help)", command)
	}
	if err != nil {
		s.printError(err)
	}
	return nil
}

func (s *Shell) submit(ctx context.Context, text string) {
	if s.session.ChainOfThought() {
		s.println(s.styles.Info.Render("Processing with chain of thought..."))
	}

	if !s.stream {
		reply, err := s.relay.Submit(ctx, s.session.ID, text)
		if err != nil {
			s.printError(err)
			return
		}
		s.printReply(reply.Content)
		return
	}

	streamed := false
	_, err := s.relay.SubmitStream(ctx, s.session.ID, text, func(chunk string) {
		streamed = true
		_, _ = io.WriteString(s.out, chunk)
	})
	if streamed {
		s.println("")
	}
	if err != nil {
		s.printError(err)
	}
}

func (s *Shell) printReply(content string) {
	rendered, err := s.markdown.RenderTerminal(content)
	if err != nil {
		s.println(s.styles.Assistant.Render(content))
		return
	}
	_, _ = io.WriteString(s.out, rendered)
}

func (s *Shell) help() {
	lines := []string{
		"/models          list available models",
		"/model NAME      select a model",
		"/cot on|off      toggle chain of thought",
		"/key KEY         set the API key for this session (blank clears)",
		"/history         show the transcript",
		"/exit            leave",
	}
	for _, line := range lines {
		s.println(s.styles.Info.Render(line))
	}
}

func (s *Shell) listModels() error {
	models, err := s.sessions.AvailableModels()
	if err != nil {
		return err
	}
	selected := s.session.Model()
	for _, model := range models {
		marker := "  "
		if model.ID == selected {
			marker = "* "
		}
		s.println(marker + model.ID)
	}
	return nil
}

func (s *Shell) selectModel(model string) error {
	if model == "" {
		return chattypes.NewValidationError("usage: /model NAME")
	}
	if err := s.sessions.SelectModel(s.session, model); err != nil {
		return err
	}
	s.println(s.styles.Info.Render("Current model: " + s.session.Model()))
	return nil
}

func (s *Shell) chainOfThought(arg string) error {
	var enabled bool
	switch strings.ToLower(arg) {
	case "on", "true", "1":
		enabled = true
	case "off", "false", "0":
		enabled = false
	case "":
		state := "off"
		if s.session.ChainOfThought() {
			state = "on"
		}
		s.println(s.styles.Info.Render("Chain of thought is " + state))
		return nil
	default:
		return chattypes.NewValidationError("usage: /cot on|off")
	}
	if err := s.sessions.SetChainOfThought(s.session, enabled); err != nil {
		return err
	}
	s.println(s.styles.Info.Render(fmt.Sprintf("Chain of thought: %t", enabled)))
	return nil
}

func (s *Shell) setKey(key string) error {
	if err := s.sessions.SetAPIKey(s.session, key); err != nil {
		return err
	}
	if key == "" {
		s.println(s.styles.Info.Render("Session API key cleared"))
	} else {
		s.println(s.styles.Info.Render("Session API key set"))
	}
	return nil
}

func (s *Shell) history() {
	for _, msg := range s.session.Messages() {
		label := s.styles.User.Render("] " + msg.Content)
		if msg.Role == chattypes.RoleAssistant {
			label = s.styles.Assistant.Render(msg.Content)
		}
		s.println(label)
	}
}

func (s *Shell) printError(err error) {
	s.println(s.styles.Error.Render("?ERROR: " + err.Error()))
}

func (s *Shell) println(text string) {
	_, _ = fmt.Fprintln(s.out, text)
}
