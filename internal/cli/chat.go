package cli

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/lioneltchami/scribepod/internal/completion"
	"github.com/lioneltchami/scribepod/internal/emotion"
	"github.com/lioneltchami/scribepod/internal/persona"
	"github.com/lioneltchami/scribepod/internal/session"
	"github.com/lioneltchami/scribepod/internal/stream"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with the personas in your terminal",
	Long: `Open a live session with one or more personas. Replies stream in as
they are generated. Slash commands control the session: /switch hands
the conversation to another persona, /stats shows the budget counters.`,
	RunE: runChat,
}

var (
	flagChatModel    string
	flagChatPersonas string
)

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().StringVarP(&flagChatModel, "model", "m", "haiku", "Reply model: "+strings.Join(completion.ModelNames(), ", "))
	chatCmd.Flags().StringVar(&flagChatPersonas, "personas", "alex,sam", "Comma-separated persona ids for the session")
}

func runChat(cmd *cobra.Command, args []string) error {
	if err := validateModel(flagChatModel); err != nil {
		return err
	}
	if err := checkAPIKeys(flagChatModel); err != nil {
		return err
	}

	ctx := cmd.Context()
	port, err := completion.NewPort(ctx, flagChatModel)
	if err != nil {
		return err
	}

	roster := persona.NewMemoryStore(persona.Seed())
	var cast []persona.Profile
	for _, id := range strings.Split(flagChatPersonas, ",") {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		p, ok := roster.FindByID(id)
		if !ok {
			return fmt.Errorf("unknown persona %q (available: %s)", id, personaIDList(roster))
		}
		cast = append(cast, p)
	}
	if len(cast) == 0 {
		return fmt.Errorf("--personas must name at least one persona")
	}

	store := session.NewStore()
	responder := stream.NewResponder(port, store, stream.Config{})
	sess, err := store.Create(ctx, cast, session.DefaultConfig())
	if err != nil {
		return err
	}

	p := tea.NewProgram(newChatModel(ctx, store, responder, sess), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}

	if st, err := store.Stats(ctx, sess.ID); err == nil {
		fmt.Printf("Session ended: %d messages, %d tokens\n", st.MessageCount, st.TotalTokens)
	}
	return nil
}

func personaIDList(roster *persona.MemoryStore) string {
	var ids []string
	for _, p := range roster.List() {
		ids = append(ids, p.ID)
	}
	return strings.Join(ids, ", ")
}

// chatLine is one rendered row of the transcript pane.
type chatLine struct {
	speaker string
	text    string
	emotion string
	user    bool
	system  bool
}

// chatModel is the Bubble Tea model for the live chat screen.
type chatModel struct {
	ctx       context.Context
	store     *session.Store
	responder *stream.Responder
	sess      session.Session

	lines     []chatLine
	input     string
	partial   string // reply accumulating while streaming
	lastUser  string
	streaming bool
	events    <-chan stream.Event
	width     int
	height    int
}

// streamStartedMsg carries the relay channel once the provider accepted
// the request.
type streamStartedMsg struct {
	events <-chan stream.Event
}

type streamFailedMsg struct {
	err error
}

type streamEventMsg struct {
	ev stream.Event
	ok bool
}

func newChatModel(ctx context.Context, store *session.Store, responder *stream.Responder, sess session.Session) chatModel {
	m := chatModel{ctx: ctx, store: store, responder: responder, sess: sess}
	if p, ok := sess.Persona(sess.CurrentPersonaID); ok {
		m.lines = append(m.lines, chatLine{speaker: p.Name, text: persona.Greeting(p)})
	}
	m.lines = append(m.lines, chatLine{system: true, text: "commands: /switch <id>, /personas, /stats, /quit"})
	return m
}

func (m chatModel) Init() tea.Cmd {
	return nil
}

// startStream asks the responder for a reply off the UI loop; StreamReply
// blocks until the provider accepts the request.
func (m chatModel) startStream(text string) tea.Cmd {
	return func() tea.Msg {
		events, err := m.responder.StreamReply(m.ctx, m.sess.ID, text)
		if err != nil {
			return streamFailedMsg{err}
		}
		return streamStartedMsg{events}
	}
}

func waitForEvent(events <-chan stream.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		return streamEventMsg{ev: ev, ok: ok}
	}
}

func (m chatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case streamStartedMsg:
		m.events = msg.events
		return m, waitForEvent(msg.events)

	case streamFailedMsg:
		m.streaming = false
		m.partial = ""
		m.lines = append(m.lines, chatLine{system: true, text: "error: " + msg.err.Error()})
		return m, nil

	case streamEventMsg:
		return m.updateStream(msg)

	case tea.KeyMsg:
		return m.updateKeys(msg)
	}
	return m, nil
}

func (m chatModel) updateStream(msg streamEventMsg) (tea.Model, tea.Cmd) {
	if !msg.ok {
		m.streaming = false
		m.partial = ""
		return m, nil
	}

	ev := msg.ev
	switch {
	case ev.Err != nil:
		m.streaming = false
		m.partial = ""
		m.lines = append(m.lines, chatLine{system: true, text: "error: " + ev.Err.Error()})
		return m, nil

	case ev.Done:
		line := chatLine{speaker: m.speakerName(), text: m.partial}
		if d := emotion.Analyze(m.lastUser, m.partial); d.Emotion != emotion.Neutral {
			line.emotion = string(d.Emotion)
		}
		m.lines = append(m.lines, line)
		m.partial = ""
		m.streaming = false
		// Refresh the counters shown in the footer.
		if sess, err := m.store.Get(m.ctx, m.sess.ID); err == nil {
			m.sess = sess
		}
		return m, nil

	default:
		m.partial += ev.Delta
		return m, waitForEvent(m.events)
	}
}

func (m chatModel) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit

	case "enter":
		text := strings.TrimSpace(m.input)
		m.input = ""
		if text == "" {
			return m, nil
		}
		if strings.HasPrefix(text, "/") {
			return m.runCommand(text)
		}
		if m.streaming {
			m.lines = append(m.lines, chatLine{system: true, text: "still replying, hold on"})
			return m, nil
		}
		m.lastUser = text
		m.streaming = true
		m.lines = append(m.lines, chatLine{user: true, speaker: "you", text: text})
		return m, m.startStream(text)

	case "backspace":
		if len(m.input) > 0 {
			m.input = m.input[:len(m.input)-1]
		}
		return m, nil

	case "ctrl+u":
		m.input = ""
		return m, nil

	case " ":
		m.input += " "
		return m, nil

	default:
		if msg.Type == tea.KeyRunes {
			m.input += string(msg.Runes)
		}
		return m, nil
	}
}

func (m chatModel) runCommand(text string) (tea.Model, tea.Cmd) {
	name, arg := splitCommand(text)
	switch name {
	case "/quit", "/q", "/exit":
		return m, tea.Quit

	case "/switch":
		if arg == "" {
			m.lines = append(m.lines, chatLine{system: true, text: "usage: /switch <persona-id>"})
			return m, nil
		}
		if m.streaming {
			m.lines = append(m.lines, chatLine{system: true, text: "finish the current reply first"})
			return m, nil
		}
		sess, err := m.store.SwitchPersona(m.ctx, m.sess.ID, arg)
		if err != nil {
			m.lines = append(m.lines, chatLine{system: true, text: "error: " + err.Error()})
			return m, nil
		}
		m.sess = sess
		if p, ok := sess.Persona(arg); ok {
			m.lines = append(m.lines, chatLine{speaker: p.Name, text: persona.Greeting(p)})
		}
		return m, nil

	case "/personas":
		var parts []string
		for _, p := range m.sess.Personas {
			id := p.ID
			if p.ID == m.sess.CurrentPersonaID {
				id += "*"
			}
			parts = append(parts, id)
		}
		m.lines = append(m.lines, chatLine{system: true, text: "in session: " + strings.Join(parts, ", ")})
		return m, nil

	case "/stats":
		st, err := m.store.Stats(m.ctx, m.sess.ID)
		if err != nil {
			m.lines = append(m.lines, chatLine{system: true, text: "error: " + err.Error()})
			return m, nil
		}
		m.lines = append(m.lines, chatLine{system: true, text: fmt.Sprintf(
			"%d messages, %d tokens, expires %s",
			st.MessageCount, st.TotalTokens, st.ExpiresAt.Local().Format("15:04:05"))})
		return m, nil

	default:
		m.lines = append(m.lines, chatLine{system: true, text: "unknown command " + name})
		return m, nil
	}
}

// splitCommand splits "/switch jordan" into the command name and its
// argument.
func splitCommand(text string) (name, arg string) {
	parts := strings.SplitN(text, " ", 2)
	name = parts[0]
	if len(parts) == 2 {
		arg = strings.TrimSpace(parts[1])
	}
	return name, arg
}

func (m chatModel) speakerName() string {
	if p, ok := m.sess.Persona(m.sess.CurrentPersonaID); ok {
		return p.Name
	}
	return m.sess.CurrentPersonaID
}

var (
	chatUserStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7D56F4"))

	chatPersonaStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("#04B575"))

	chatEmotionStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#626262")).
				Italic(true)

	chatSystemStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#626262")).
			Italic(true)

	chatHelpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#626262"))
)

func (m chatModel) View() string {
	width := m.width
	if width <= 0 {
		width = 80
	}

	var b strings.Builder
	for _, line := range m.lines {
		b.WriteString(renderChatLine(line, width))
	}
	if m.streaming {
		b.WriteString(renderChatLine(chatLine{speaker: m.speakerName(), text: m.partial + "_"}, width))
	}
	transcript := strings.TrimRight(b.String(), "\n")

	footer := m.footer()
	rows := m.height - lipgloss.Height(footer) - 1
	return tailView(transcript, rows) + "\n\n" + footer
}

func renderChatLine(l chatLine, width int) string {
	if l.system {
		return chatSystemStyle.Render("  "+l.text) + "\n"
	}

	body := lipgloss.NewStyle().Width(width - 2).Render(l.text)
	if l.user {
		return chatUserStyle.Render("you") + "\n" + body + "\n\n"
	}
	head := chatPersonaStyle.Render(l.speaker)
	if l.emotion != "" {
		head += " " + chatEmotionStyle.Render("("+l.emotion+")")
	}
	return head + "\n" + body + "\n\n"
}

func (m chatModel) footer() string {
	prompt := "> " + m.input
	if !m.streaming {
		prompt += "_"
	}
	help := fmt.Sprintf("%s | %d/%d messages | /switch <id> | /stats | /quit",
		m.speakerName(), m.sess.MessageCount, m.sess.Config.MaxMessages)
	return prompt + "\n" + chatHelpStyle.Render("  "+help)
}

// tailView keeps the last rows that fit in the pane, so the conversation
// sticks to the bottom like a terminal.
func tailView(content string, rows int) string {
	if rows <= 0 {
		return content
	}
	lines := strings.Split(content, "\n")
	if len(lines) <= rows {
		return content
	}
	return strings.Join(lines[len(lines)-rows:], "\n")
}
