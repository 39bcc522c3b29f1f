package tui

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"

	"github.com/lox/twentyone/internal/blackjack"
	"github.com/lox/twentyone/internal/deck"
	"github.com/lox/twentyone/internal/protocol"
	"github.com/lox/twentyone/internal/replication"
	"github.com/lox/twentyone/internal/transport"
)

const sidebarWidth = 28

// eventMsg carries one engine event into the bubbletea loop
type eventMsg struct {
	ev transport.Event
}

// closedMsg reports that the engine's event stream has ended
type closedMsg struct{}

// Model is the bubbletea model for one side of a game
type Model struct {
	engine replication.Engine
	logger *log.Logger
	title  string

	logViewport viewport.Model
	input       textinput.Model
	focusedPane int // 0 = log, 1 = input

	gameLog []string
	code    string
	members []protocol.Member
	snap    *protocol.Snapshot
	closed  bool

	quitting    bool
	width       int
	height      int
	initialized bool
}

// NewModel creates a model that drives engine
func NewModel(engine replication.Engine, title string, logger *log.Logger) *Model {
	vp := viewport.New(10, 5)
	vp.SetContent("")

	ti := textinput.New()
	ti.Focus()
	ti.CharLimit = protocol.MaxChatLength
	ti.Width = 100
	ti.PromptStyle = promptStyle
	ti.TextStyle = inputTextStyle
	ti.Prompt = "> "

	return &Model{
		engine:      engine,
		logger:      logger.WithPrefix("tui"),
		title:       title,
		logViewport: vp,
		input:       ti,
		focusedPane: 1,
	}
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.waitForEvent())
}

func (m *Model) waitForEvent() tea.Cmd {
	events := m.engine.Events()
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return closedMsg{}
		}
		return eventMsg{ev: ev}
	}
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case eventMsg:
		m.handleEvent(msg.ev)
		cmds = append(cmds, m.waitForEvent())

	case closedMsg:
		m.closed = true
		m.addLog(WarningStyle.Render("Session ended. Press Ctrl+C to exit."))

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, m.quit()
		case "tab":
			if m.focusedPane == 0 {
				m.focusedPane = 1
				m.input.Focus()
			} else {
				m.focusedPane = 0
				m.input.Blur()
			}
		case "enter":
			if m.focusedPane == 1 {
				line := strings.TrimSpace(m.input.Value())
				m.input.SetValue("")
				if cmd := m.submit(line); cmd != nil {
					return m, cmd
				}
			}
		case "up", "k":
			if m.focusedPane == 0 {
				m.logViewport.ScrollUp(1)
			}
		case "down", "j":
			if m.focusedPane == 0 {
				m.logViewport.ScrollDown(1)
			}
		case "pgup":
			if m.focusedPane == 0 {
				m.logViewport.HalfPageUp()
			}
		case "pgdown":
			if m.focusedPane == 0 {
				m.logViewport.HalfPageDown()
			}
		}
	}

	var cmd tea.Cmd
	if m.focusedPane == 1 {
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)
	}
	m.logViewport, cmd = m.logViewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m *Model) quit() tea.Cmd {
	m.quitting = true
	if !m.closed {
		if err := m.engine.Leave(); err != nil {
			m.logger.Debug("Leave on quit failed", "error", err)
		}
	}
	return tea.Sequence(tea.ClearScreen, tea.Quit)
}

// submit runs a slash command, or sends anything else as chat
func (m *Model) submit(line string) tea.Cmd {
	if line == "" {
		return nil
	}
	if !strings.HasPrefix(line, "/") {
		m.report(m.engine.Chat(line))
		return nil
	}

	fields := strings.Fields(strings.ToLower(line))
	switch fields[0] {
	case "/hit", "/h":
		m.report(m.engine.Hit())
	case "/stand", "/s":
		m.report(m.engine.Stand())
	case "/start", "/deal":
		m.report(m.engine.StartRound())
	case "/ready", "/r":
		m.report(m.engine.SetReady(true))
	case "/unready":
		m.report(m.engine.SetReady(false))
	case "/leave":
		m.report(m.engine.Leave())
	case "/quit", "/q":
		return m.quit()
	case "/help", "/?":
		m.addLog(InfoStyle.Render(helpText(m.engine.Role())))
	default:
		m.addLog(ErrorStyle.Render(fmt.Sprintf("Unknown command %s (try /help)", fields[0])))
	}
	return nil
}

func (m *Model) report(err error) {
	if err == nil {
		return
	}
	m.logger.Debug("Command failed", "error", err)
	m.addLog(ErrorStyle.Render(err.Error()))
}

func helpText(role protocol.NetworkRole) string {
	cmds := []string{"/hit", "/stand"}
	if role == protocol.Host {
		cmds = append(cmds, "/start")
	} else {
		cmds = append(cmds, "/ready", "/unready")
	}
	cmds = append(cmds, "/leave", "/quit")
	return "Commands: " + strings.Join(cmds, " ") + " • anything else is chat"
}

func (m *Model) handleEvent(ev transport.Event) {
	switch e := ev.(type) {
	case transport.LobbyCreated:
		m.code, m.members = e.Code, e.Members
		m.addLog(SuccessStyle.Render("Lobby " + e.Code + " created. Waiting for an opponent."))
	case transport.LobbyJoined:
		m.code, m.members = e.Code, e.Members
		m.addLog(SuccessStyle.Render("Joined lobby " + e.Code + ". Type /ready when you are."))
	case transport.LobbyUpdate:
		m.members = e.Members
	case transport.ChatMessage:
		m.addLog(ChatStyle.Render(fmt.Sprintf("[%s] %s: %s", e.Time.Format("15:04"), e.From, e.Text)))
	case transport.RoundStart:
		m.addLog("")
	case transport.GameState:
		m.applySnapshot(e.Snapshot)
	case transport.Error:
		m.addLog(ErrorStyle.Render(e.Err.Error()))
	case transport.Disconnected:
		if e.Terminal() {
			m.addLog(ErrorStyle.Render(disconnectText(e.Err)))
		} else {
			m.addLog(WarningStyle.Render("Opponent disconnected"))
		}
	}
}

func disconnectText(err error) string {
	var perr *protocol.Error
	if errors.As(err, &perr) {
		return "Connection lost: " + perr.Message
	}
	if err != nil {
		return "Connection lost: " + err.Error()
	}
	return "Connection lost"
}

// applySnapshot logs what changed between the previous snapshot and s
func (m *Model) applySnapshot(s protocol.Snapshot) {
	prev := m.snap
	m.snap = &s
	me := s.RoleOf(m.engine.Role())

	if prev == nil || prev.Round != s.Round {
		m.addLog(HeaderStyle.Render(fmt.Sprintf(" Round %d ", s.Round)) + " " +
			HandInfoStyle.Render("You are the "+me.String()))
		m.addLog(fmt.Sprintf("Player: %s (%d)", formatCards(s.PlayerHand), s.PlayerScore))
		m.addLog(fmt.Sprintf("Dealer: %s (%d)", formatCards(s.DealerHand), s.DealerScore))
	} else {
		if n := len(prev.PlayerHand); len(s.PlayerHand) > n {
			m.addLog(fmt.Sprintf("Player hits: %s (%d)", formatCards(s.PlayerHand[n:]), s.PlayerScore))
		}
		if n := len(prev.DealerHand); len(s.DealerHand) > n {
			m.addLog(fmt.Sprintf("Dealer hits: %s (%d)", formatCards(s.DealerHand[n:]), s.DealerScore))
		}
		if prev.State == blackjack.PlayerTurn && s.State == blackjack.DealerTurn {
			m.addLog("Player stands")
		}
	}

	if s.State == blackjack.GameOver && (prev == nil || prev.State != blackjack.GameOver || prev.Round != s.Round) {
		m.addLog(outcomeText(s, me))
		m.addLog(InfoStyle.Render(fmt.Sprintf("Lives: you %d, opponent %d",
			s.Lives.Of(m.engine.Role()), s.Lives.Of(m.engine.Role().Other()))))
		if s.MatchWinner != protocol.NoNetworkRole {
			if s.MatchWinner == m.engine.Role() {
				m.addLog(SuccessStyle.Render("You win the match!"))
			} else {
				m.addLog(ErrorStyle.Render("You lose the match."))
			}
		}
	}
}

func outcomeText(s protocol.Snapshot, me blackjack.GameRole) string {
	if s.Outcome == nil {
		return ""
	}
	o := *s.Outcome
	detail := fmt.Sprintf("%s, %d to %d", o.Reason, o.PlayerScore, o.DealerScore)
	switch {
	case o.IsPush():
		return WarningStyle.Render("Push (" + detail + ")")
	case o.Winner.Role() == me:
		return SuccessStyle.Render("You win the round (" + detail + ")")
	default:
		return ErrorStyle.Render("You lose the round (" + detail + ")")
	}
}

func (m *Model) addLog(entry string) {
	m.gameLog = append(m.gameLog, entry)
	m.logViewport.SetContent(strings.Join(m.gameLog, "\n"))
	if m.logViewport.Height > 0 && m.logViewport.Width > 0 {
		m.logViewport.GotoBottom()
	}
}

// Log returns the log entries rendered so far
func (m *Model) Log() []string {
	out := make([]string, len(m.gameLog))
	copy(out, m.gameLog)
	return out
}

func formatCards(cards []deck.Card) string {
	if len(cards) == 0 {
		return "[]"
	}
	formatted := make([]string, 0, len(cards))
	for _, c := range cards {
		if c.IsRed() {
			formatted = append(formatted, RedCardStyle.Render(c.String()))
		} else {
			formatted = append(formatted, BlackCardStyle.Render(c.String()))
		}
	}
	return "[" + strings.Join(formatted, " ") + "]"
}

func (m *Model) View() string {
	if m.quitting {
		return ""
	}
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	actionContent := m.renderActionPane()
	actionHeight := lipgloss.Height(actionContent)
	actionStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(paneBorder).
		Width(max(m.width-2, 1)).
		Height(max(actionHeight, 1))
	if m.focusedPane == 1 {
		actionStyle = actionStyle.BorderForeground(focusBorder)
	}
	actionPane := actionStyle.Render(actionContent)

	paneHeight := max(m.height-lipgloss.Height(actionPane)-2, 1)

	sidebarPane := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(paneBorder).
		Width(sidebarWidth).
		Height(paneHeight).
		Render(m.renderSidebar())

	m.logViewport.Width = max(m.width-sidebarWidth-4, 1)
	m.logViewport.Height = paneHeight
	if !m.initialized && m.logViewport.Width > 1 && m.logViewport.Height > 1 {
		m.logViewport.GotoBottom()
		m.initialized = true
	}

	logStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(paneBorder).
		Width(m.logViewport.Width).
		Height(paneHeight)
	if m.focusedPane == 0 {
		logStyle = logStyle.BorderForeground(focusBorder)
	}
	logPane := logStyle.Render(m.logViewport.View())

	topRow := lipgloss.JoinHorizontal(lipgloss.Top, logPane, sidebarPane)
	return lipgloss.JoinVertical(lipgloss.Top, topRow, actionPane)
}

func (m *Model) renderSidebar() string {
	var b strings.Builder

	b.WriteString(HeaderStyle.Render(" " + m.title + " "))
	b.WriteString("\n\n")
	if m.code != "" && m.code != transport.LoopbackCode {
		b.WriteString(WarningStyle.Render("Code: " + m.code))
		b.WriteString("\n\n")
	}

	for _, mem := range m.members {
		status := "waiting"
		if mem.NetworkRole == protocol.Host || mem.Ready {
			status = "ready"
		}
		fmt.Fprintf(&b, "%s (%s) %s\n", mem.Name, mem.NetworkRole, InfoStyle.Render(status))
	}

	if s := m.snap; s != nil {
		role := m.engine.Role()
		fmt.Fprintf(&b, "\nRound %d\n", s.Round)
		fmt.Fprintf(&b, "You: %s\n", s.RoleOf(role))
		fmt.Fprintf(&b, "Lives: %d / %d\n", s.Lives.Of(role), s.Lives.Of(role.Other()))
		fmt.Fprintf(&b, "Shoe: %d cards\n", s.DeckRemaining)
	}
	return b.String()
}

func (m *Model) renderActionPane() string {
	var b strings.Builder

	if s := m.snap; s != nil && s.State != blackjack.GameOver {
		me := s.RoleOf(m.engine.Role())
		if s.Turn == me {
			b.WriteString(ActionsStyle.Render("Your turn: /hit or /stand"))
		} else {
			b.WriteString(HandInfoStyle.Render("Waiting for the " + s.Turn.String() + "..."))
		}
	} else if m.engine.Role() == protocol.Host {
		b.WriteString(HandInfoStyle.Render("/start to deal the next round"))
	} else {
		b.WriteString(HandInfoStyle.Render("/ready when you want the next round"))
	}
	b.WriteString("\n")
	b.WriteString(m.input.View())
	b.WriteString("\n")

	if m.focusedPane == 0 {
		b.WriteString(helpStyle.Render("Log focused: ↑↓ scroll, PgUp/PgDn half page, Tab to input"))
	} else {
		b.WriteString(helpStyle.Render("Tab to scroll log • /help for commands • Ctrl+C to quit"))
	}
	return b.String()
}
