// Copyright (c) 2025 LingoMate Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the interactive REPL.
//
// Interactive commands:
//
//	/help, /h      Show available commands
//	/user TEXT     Send TEXT for editor feedback only (no Chat Mate reply)
//	/mate TEXT     Enter TEXT as Chat Mate and get editor feedback on it
//	/regen [id]    Regenerate a message (default: the last AI message)
//	/fork [id]     Fork the conversation at a message (default: the last)
//	/new           Start a fresh conversation
//	/list          List stored conversations
//	/open ID       Switch to a stored conversation
//	/delete ID     Delete a stored conversation
//	/lang NAME     Set the target language
//	/model NAME    Set the model
//	/settings      Show the active conversation settings
//	/quit, /q      Exit
//	Ctrl+C         Cancel the current turn
package cli

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/peterh/liner"

	"github.com/lingomate/lingomate/internal/config"
	"github.com/lingomate/lingomate/internal/llm"
	"github.com/lingomate/lingomate/internal/model"
	"github.com/lingomate/lingomate/internal/orchestrator"
	"github.com/lingomate/lingomate/internal/storage"
	"github.com/lingomate/lingomate/internal/util"
)

// =============================================================================
// STYLES
// =============================================================================

var (
	promptStyle     = newStyle("6", true)
	welcomeStyle    = newStyle("5", true)
	infoStyle       = newStyle("8", false)
	chatMateStyle   = newStyle("2", true)
	editorMateStyle = newStyle("3", true)
	errorStyle      = newStyle("1", true)
	warningStyle    = newStyle("3", false)
)

// newStyle builds a foreground style, degrading to plain text when the
// terminal does not render color.
func newStyle(color string, bold bool) lipgloss.Style {
	if ColorProfile() == termenv.Ascii {
		return lipgloss.NewStyle()
	}
	s := lipgloss.NewStyle().Foreground(lipgloss.Color(color))
	if bold {
		s = s.Bold(true)
	}
	return s
}

// divider returns a horizontal rule sized to the terminal.
func divider() string {
	w := TerminalWidth()
	if w > 60 {
		w = 60
	}
	return infoStyle.Render(strings.Repeat("─", w))
}

// =============================================================================
// SESSION
// =============================================================================

// Session wires the REPL to the orchestrator and renders its events.
type Session struct {
	orch   *orchestrator.Orchestrator
	store  *storage.Store
	titler *storage.Titler
	client *llm.Client
	cfg    *config.Config
	input  *InputReader

	renderer *renderer
	wg       sync.WaitGroup
}

// NewSession assembles a session over explicitly injected collaborators.
func NewSession(orch *orchestrator.Orchestrator, store *storage.Store, titler *storage.Titler, client *llm.Client, cfg *config.Config) *Session {
	return &Session{
		orch:     orch,
		store:    store,
		titler:   titler,
		client:   client,
		cfg:      cfg,
		input:    NewInputReader(),
		renderer: newRenderer(),
	}
}

// Run starts the event consumer and the REPL loop, blocking until exit.
func (s *Session) Run() error {
	defer s.input.Close()

	s.wg.Add(1)
	go s.consumeEvents()

	// First Ctrl+C cancels the running turn, not the process.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		for range sigChan {
			s.orch.Cancel()
		}
	}()

	// Skip the banner when input is piped in.
	if IsTTY() {
		s.printWelcome()
	}

	for {
		input, err := s.input.ReadInput(promptStyle.Render("you> "))
		if err != nil {
			if err == liner.ErrPromptAborted {
				fmt.Println()
				continue
			}
			// EOF (Ctrl+D): exit gracefully.
			fmt.Println()
			return s.shutdown()
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			cont, err := s.handleCommand(input)
			if err != nil {
				s.printError(err)
			}
			if !cont {
				return s.shutdown()
			}
			continue
		}

		if err := s.orch.SendMessage(input, nil); err != nil {
			// Already rendered through the event channel.
			continue
		}
	}
}

func (s *Session) shutdown() error {
	s.orch.Close()
	s.wg.Wait()
	fmt.Println(infoStyle.Render("Hej då!"))
	return nil
}

// consumeEvents maps orchestrator events onto terminal output.
func (s *Session) consumeEvents() {
	defer s.wg.Done()
	for ev := range s.orch.Events() {
		switch ev.Kind {
		case orchestrator.EventMessagesUpdated:
			s.renderer.renderStreaming(ev.Messages)
		case orchestrator.EventTurnSettled:
			s.renderer.renderSettled(ev.Messages)
		case orchestrator.EventError:
			s.printError(ev.Err)
		case orchestrator.EventConversationUpdated:
			if ev.ConversationID != "" {
				s.titler.MaybeRefresh(ev.ConversationID)
			}
		}
	}
}

func (s *Session) printError(err error) {
	var cancelled *orchestrator.CancelledError
	if errors.As(err, &cancelled) {
		fmt.Fprintln(os.Stderr, "\n"+warningStyle.Render("[Cancelled]"))
		return
	}
	var upstream *llm.UpstreamError
	if errors.As(err, &upstream) {
		fmt.Fprintf(os.Stderr, "%s upstream returned %d: %s\n",
			errorStyle.Render("[Error]"), upstream.Status,
			util.TruncateRunes(upstream.Body, 200))
		return
	}
	fmt.Fprintf(os.Stderr, "%s %v\n", errorStyle.Render("[Error]"), err)
}

// =============================================================================
// SLASH COMMANDS
// =============================================================================

// handleCommand processes one slash command. Returns false to exit.
func (s *Session) handleCommand(cmd string) (bool, error) {
	name, rest, _ := strings.Cut(cmd, " ")
	rest = strings.TrimSpace(rest)

	switch strings.ToLower(name) {
	case "/help", "/h", "/?":
		s.printHelp()
		return true, nil

	case "/user":
		if rest == "" {
			return true, fmt.Errorf("usage: /user TEXT")
		}
		return true, s.swallowRendered(s.orch.SendUserOnly(rest, nil))

	case "/mate":
		if rest == "" {
			return true, fmt.Errorf("usage: /mate TEXT")
		}
		return true, s.swallowRendered(s.orch.SendChatMateOnly(rest))

	case "/regen":
		return true, s.swallowRendered(s.regenerate(rest))

	case "/fork":
		return true, s.fork(rest)

	case "/new":
		if err := s.orch.NewConversation(); err != nil {
			return true, err
		}
		s.renderer.reset()
		fmt.Println(infoStyle.Render("[New conversation: it is created when you first send]"))
		return true, nil

	case "/list":
		return true, s.listConversations()

	case "/open":
		if rest == "" {
			return true, fmt.Errorf("usage: /open CONVERSATION_ID")
		}
		return true, s.openConversation(rest)

	case "/delete":
		if rest == "" {
			return true, fmt.Errorf("usage: /delete CONVERSATION_ID")
		}
		return true, s.deleteConversation(rest)

	case "/lang":
		if rest == "" {
			fmt.Printf("%s %s\n", infoStyle.Render("[Target language]"),
				s.orch.Settings().TargetLanguage)
			return true, nil
		}
		settings := s.orch.Settings()
		settings.TargetLanguage = config.NormalizeLanguage(rest)
		return true, s.orch.SetSettings(settings)

	case "/model":
		if rest == "" {
			fmt.Printf("%s %s\n", infoStyle.Render("[Model]"), s.orch.Settings().Model)
			return true, nil
		}
		settings := s.orch.Settings()
		settings.Model = rest
		return true, s.orch.SetSettings(settings)

	case "/settings":
		s.printSettings()
		return true, nil

	case "/quit", "/q", "/exit":
		return false, nil

	case "/":
		s.printHelp()
		return true, nil

	default:
		return true, fmt.Errorf("unknown command: %s (type /help for commands)", name)
	}
}

// swallowRendered drops errors that the event consumer already printed.
func (s *Session) swallowRendered(err error) error {
	if err == nil || errors.Is(err, orchestrator.ErrTurnActive) {
		return err
	}
	return nil
}

func (s *Session) regenerate(id string) error {
	if id == "" {
		id = s.lastAIMessageID()
		if id == "" {
			return fmt.Errorf("nothing to regenerate yet")
		}
	}
	if err := s.orch.RegenerateMessage(id); err != nil {
		return err
	}
	// The message id is unchanged, so the settled renderer skips it.
	for _, m := range s.orch.Messages() {
		if m.ID == id {
			fmt.Printf("\n%s %s\n\n", roleLabel(m.Type), m.Content)
			break
		}
	}
	return nil
}

func (s *Session) fork(id string) error {
	if id == "" {
		msgs := s.orch.Messages()
		if len(msgs) == 0 {
			return fmt.Errorf("nothing to fork yet")
		}
		id = msgs[len(msgs)-1].ID
	}
	forked, err := s.orch.ForkFrom(id)
	if err != nil {
		return err
	}
	s.renderer.reset()
	s.renderer.markAllPrinted(forked.Messages)
	fmt.Printf("%s %s (%d messages)\n",
		infoStyle.Render("[Forked into]"), forked.ID, len(forked.Messages))
	return nil
}

func (s *Session) lastAIMessageID() string {
	msgs := s.orch.Messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Type != model.TypeUser {
			return msgs[i].ID
		}
	}
	return ""
}

func (s *Session) listConversations() error {
	metas, err := s.store.ListConversations()
	if err != nil {
		return err
	}
	if len(metas) == 0 {
		fmt.Println(infoStyle.Render("[No conversations yet]"))
		return nil
	}
	// Leave room for the id and count columns on narrow terminals.
	titleWidth := TerminalWidth() - 40
	if titleWidth < 20 {
		titleWidth = 20
	}
	fmt.Println()
	for _, m := range metas {
		title := m.Title
		if title == "" {
			title = "(untitled)"
		}
		fmt.Printf("  %s  %s  %s\n",
			infoStyle.Render(m.ID),
			util.TruncateWidth(title, titleWidth),
			infoStyle.Render(fmt.Sprintf("%d messages", m.MessageCount)))
	}
	fmt.Println()
	return nil
}

func (s *Session) openConversation(id string) error {
	if err := s.orch.UseConversation(id); err != nil {
		return err
	}
	s.renderer.reset()
	msgs := s.orch.Messages()
	s.renderer.markAllPrinted(msgs)
	s.printTranscript(msgs)
	return nil
}

func (s *Session) deleteConversation(id string) error {
	if id == s.orch.ConversationID() {
		// Detach first so the REPL never renders a deleted conversation.
		if err := s.orch.NewConversation(); err != nil {
			return err
		}
		s.renderer.reset()
	}
	if err := s.store.DeleteConversation(id); err != nil {
		return err
	}
	fmt.Println(infoStyle.Render("[Deleted " + id + "]"))
	return nil
}

// =============================================================================
// DISPLAY
// =============================================================================

func (s *Session) printWelcome() {
	settings := s.orch.Settings()
	fmt.Println()
	fmt.Println(welcomeStyle.Render("lingomate"))
	fmt.Println(divider())
	fmt.Printf("%s %s\n", infoStyle.Render("Language:"), settings.TargetLanguage)
	fmt.Printf("%s %s\n", infoStyle.Render("Model:"), settings.Model)
	fmt.Printf("%s %s\n", infoStyle.Render("API key:"), s.client.APIKeyMasked())
	fmt.Println()
	fmt.Println(infoStyle.Render("Type a message and press Enter. Commands: /help, /quit"))
	fmt.Println()
}

func (s *Session) printHelp() {
	fmt.Println()
	commands := []struct {
		cmd  string
		desc string
	}{
		{"/user TEXT", "Editor feedback only, no Chat Mate reply"},
		{"/mate TEXT", "Speak as Chat Mate, get feedback on it"},
		{"/regen [id]", "Regenerate a message in place"},
		{"/fork [id]", "Fork the conversation at a message"},
		{"/new", "Start a fresh conversation"},
		{"/list", "List stored conversations"},
		{"/open ID", "Switch to a stored conversation"},
		{"/delete ID", "Delete a stored conversation"},
		{"/lang NAME", "Show or set the target language"},
		{"/model NAME", "Show or set the model"},
		{"/settings", "Show conversation settings"},
		{"/quit, /q", "Exit"},
	}
	for _, c := range commands {
		fmt.Printf("  %-14s %s\n", c.cmd, infoStyle.Render(c.desc))
	}
	fmt.Println()
	fmt.Println(infoStyle.Render("Tip: Ctrl+C cancels the current turn, Ctrl+D exits"))
	fmt.Println()
}

func (s *Session) printSettings() {
	settings := s.orch.Settings()
	fmt.Println()
	fmt.Printf("  %s %s\n", infoStyle.Render("Target language: "), settings.TargetLanguage)
	fmt.Printf("  %s %s\n", infoStyle.Render("Feedback language:"), settings.FeedbackLanguage)
	fmt.Printf("  %s %s\n", infoStyle.Render("Model:           "), settings.Model)
	fmt.Printf("  %s %s\n", infoStyle.Render("Feedback style:  "), string(settings.FeedbackStyle))
	fmt.Printf("  %s %v\n", infoStyle.Render("Reasoning:       "), settings.EnableReasoning)
	fmt.Println()
}

func (s *Session) printTranscript(msgs []*model.Message) {
	fmt.Println()
	for _, m := range msgs {
		fmt.Printf("%s %s\n", roleLabel(m.Type), m.Content)
	}
	fmt.Println()
}

func roleLabel(t model.MessageType) string {
	switch t {
	case model.TypeChatMate:
		return chatMateStyle.Render(t.DisplayName() + ":")
	case model.TypeEditorMate:
		return editorMateStyle.Render(t.DisplayName() + ":")
	default:
		return promptStyle.Render(t.DisplayName() + ":")
	}
}

// =============================================================================
// RENDERER
// =============================================================================

// renderer maps message-list snapshots to terminal output. The chat-mate
// reply renders live, token by token; editor commentary renders in full
// once it settles, keeping two concurrent streams from interleaving on
// one terminal.
type renderer struct {
	mu      sync.Mutex
	printed map[string]bool
	liveLen int
	live    bool
}

func newRenderer() *renderer {
	return &renderer{printed: make(map[string]bool)}
}

func (r *renderer) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.printed = make(map[string]bool)
	r.liveLen = 0
	r.live = false
}

// markAllPrinted suppresses rendering of already-displayed history.
func (r *renderer) markAllPrinted(msgs []*model.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.printed[m.ID] = true
	}
}

// renderStreaming prints the live chat-mate delta from a snapshot.
func (r *renderer) renderStreaming(msgs []*model.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, m := range msgs {
		if m.Type != model.TypeChatMate || !m.IsStreaming {
			continue
		}
		content := m.Content
		if !r.live {
			fmt.Printf("\n%s ", roleLabel(model.TypeChatMate))
			r.live = true
			r.liveLen = 0
		}
		if len(content) > r.liveLen {
			fmt.Print(content[r.liveLen:])
			r.liveLen = len(content)
		}
		return
	}
}

// renderSettled prints everything the turn produced that is not yet on
// screen.
func (r *renderer) renderSettled(msgs []*model.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, m := range msgs {
		if m.IsStreaming || r.printed[m.ID] {
			continue
		}
		r.printed[m.ID] = true
		switch m.Type {
		case model.TypeUser:
			// Echoed by the terminal as the user typed it.
		case model.TypeChatMate:
			if r.live {
				if len(m.Content) > r.liveLen {
					fmt.Print(m.Content[r.liveLen:])
				}
				fmt.Println()
				r.live = false
				r.liveLen = 0
			} else {
				fmt.Printf("\n%s %s\n", roleLabel(model.TypeChatMate), m.Content)
			}
		case model.TypeEditorMate:
			fmt.Printf("\n%s %s\n", roleLabel(model.TypeEditorMate), m.Content)
		}
	}

	// A cancelled chat-mate stream leaves a dangling live line.
	if r.live {
		fmt.Println()
		r.live = false
		r.liveLen = 0
	}
	fmt.Println()
}
