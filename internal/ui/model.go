package ui

import (
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/rbright/sigview/internal/fsm"
	"github.com/rbright/sigview/internal/session"
	"github.com/rbright/sigview/internal/settings"
	"github.com/rbright/sigview/internal/version"
)

const (
	refreshInterval = 200 * time.Millisecond
	logPaneLines    = 8
)

// Messages

type closeMsg struct {
	reason string
}

type settingsChangedMsg struct{}

type tickMsg time.Time

type captureDoneMsg struct {
	name string
	err  error
}

// commandPanic carries a panic raised in a command goroutine back to the
// event loop.
type commandPanic struct {
	value any
	stack []byte
}

func (p commandPanic) String() string {
	return fmt.Sprintf("%v\n\ncommand goroutine:\n%s", p.value, p.stack)
}

// model is the bubbletea view over a Window.
type model struct {
	win    *Window
	keys   keyMap
	help   help.Model
	theme  Theme
	styles Styles

	selected int
	showLog  bool
	status   string
	width    int
}

func newModel(w *Window) model {
	theme := GetTheme(w.settings.String(settings.KeyUITheme))
	return model{
		win:    w,
		keys:   DefaultKeyMap(),
		help:   help.New(),
		theme:  theme,
		styles: theme.Styles(),
	}
}

// Init implements tea.Model.
func (m model) Init() tea.Cmd {
	return tickCmd()
}

func tickCmd() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update implements tea.Model.
func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case closeMsg:
		m.win.logger.Info("closing window", "reason", msg.reason)
		return m, tea.Quit

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
		return m, nil

	case tickMsg:
		return m, tickCmd()

	case captureDoneMsg:
		if msg.err != nil {
			m.status = fmt.Sprintf("%s: %v", msg.name, msg.err)
		} else {
			m.status = ""
		}
		return m, nil

	case commandPanic:
		panic(msg)

	case settingsChangedMsg:
		m.theme = GetTheme(m.win.settings.String(settings.KeyUITheme))
		m.styles = m.theme.Styles()
		m.status = "settings reloaded"
		return m, nil
	}

	return m, nil
}

func (m model) current() *session.Session {
	sessions := m.win.Sessions()
	if len(sessions) == 0 {
		return nil
	}
	return sessions[clamp(m.selected, len(sessions))]
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	count := len(m.win.Sessions())

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.NextSession):
		if count > 0 {
			m.selected = (clamp(m.selected, count) + 1) % count
		}

	case key.Matches(msg, m.keys.PrevSession):
		if count > 0 {
			m.selected = (clamp(m.selected, count) - 1 + count) % count
		}

	case key.Matches(msg, m.keys.NewSession):
		m.win.AddDefaultSession()
		m.selected = count

	case key.Matches(msg, m.keys.CloseSession):
		if s := m.current(); s != nil {
			m.win.CloseSession(s)
			m.selected = clamp(m.selected, count-1)
		}

	case key.Matches(msg, m.keys.ToggleCapture):
		if s := m.current(); s != nil {
			return m, m.toggleCaptureCmd(s)
		}

	case key.Matches(msg, m.keys.ToggleLog):
		m.showLog = !m.showLog
	}

	return m, nil
}

// guard wraps cmd so a panic comes back as a message in absorb mode. In
// crash-dump mode the panic stays on its goroutine and aborts the process.
func (m model) guard(cmd tea.Cmd) tea.Cmd {
	if !m.win.absorb {
		return cmd
	}
	return func() (msg tea.Msg) {
		defer func() {
			if r := recover(); r != nil {
				msg = commandPanic{value: r, stack: debug.Stack()}
			}
		}()
		return cmd()
	}
}

func (m model) toggleCaptureCmd(s *session.Session) tea.Cmd {
	ctx := m.win.ctx
	return m.guard(func() tea.Msg {
		var err error
		switch s.State() {
		case fsm.StateCapturing:
			err = s.StopCapture()
		case fsm.StateError:
			err = s.Reset()
		default:
			err = s.StartCapture(ctx)
		}
		return captureDoneMsg{name: s.Name(), err: err}
	})
}

// View implements tea.Model.
func (m model) View() string {
	var b strings.Builder

	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	b.WriteString(m.renderTabs())
	b.WriteString("\n")
	b.WriteString(m.renderSession())
	b.WriteString("\n")

	if m.showLog {
		b.WriteString(m.renderLog())
		b.WriteString("\n")
	}
	if m.status != "" {
		b.WriteString(m.styles.Warning.Render(m.status))
		b.WriteString("\n")
	}
	b.WriteString(m.help.View(m.keys))
	return b.String()
}

func (m model) renderHeader() string {
	devices := m.win.devices.Devices()
	parts := []string{
		m.styles.Title.Render(version.String()),
		m.styles.Muted.Render(fmt.Sprintf("devices: %d", len(devices))),
		m.styles.Muted.Render(fmt.Sprintf("decoders: %d", len(m.win.decoders))),
	}
	if n := len(m.win.devices.Warnings()); n > 0 {
		parts = append(parts, m.styles.Warning.Render(fmt.Sprintf("scan warnings: %d", n)))
	}
	return strings.Join(parts, "  ")
}

func (m model) renderTabs() string {
	sessions := m.win.Sessions()
	if len(sessions) == 0 {
		return m.styles.Muted.Render("no sessions (n to add)")
	}

	selected := clamp(m.selected, len(sessions))
	tabs := make([]string, 0, len(sessions))
	for i, s := range sessions {
		label := s.Name()
		if s.State() == fsm.StateCapturing {
			label += " ●"
		}
		if i == selected {
			tabs = append(tabs, m.styles.ActiveTab.Render(label))
		} else {
			tabs = append(tabs, m.styles.Tab.Render(label))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, tabs...)
}

func (m model) renderSession() string {
	s := m.current()
	if s == nil {
		return ""
	}

	row := func(label, value string) string {
		return m.styles.Label.Render(label) + m.styles.Text.Render(value)
	}

	deviceText := "none"
	if d, ok := s.Device(); ok {
		deviceText = fmt.Sprintf("%s (%s)", d.Key(), d.Description)
	}
	inputText := "-"
	if snap := s.Snapshot(); snap.InputFile != "" {
		inputText = snap.InputFile
		if snap.InputFormat != "" {
			inputText += " [" + snap.InputFormat + "]"
		}
	}

	lines := []string{
		row("Device", deviceText),
		row("Input", inputText),
		m.styles.Label.Render("State") + m.renderState(s.State()),
		row("Samples", fmt.Sprintf("%d", s.Samples())),
		row("Peak", fmt.Sprintf("%d", s.Peak())),
	}
	if err := s.Err(); err != nil {
		lines = append(lines, m.styles.Label.Render("Error")+m.styles.Danger.Render(err.Error()))
	}
	return m.styles.Panel.Render(strings.Join(lines, "\n"))
}

func (m model) renderState(state fsm.State) string {
	switch state {
	case fsm.StateCapturing:
		return m.styles.Success.Render(string(state))
	case fsm.StateError:
		return m.styles.Danger.Render(string(state))
	case fsm.StateStopping:
		return m.styles.Warning.Render(string(state))
	default:
		return m.styles.Text.Render(string(state))
	}
}

func (m model) renderLog() string {
	if m.win.ring == nil {
		return m.styles.Muted.Render("log unavailable")
	}
	lines := m.win.ring.Tail(logPaneLines)
	if len(lines) == 0 {
		return m.styles.Muted.Render("log empty")
	}
	return m.styles.Panel.Render(m.styles.Muted.Render(strings.Join(lines, "\n")))
}

func clamp(i, n int) int {
	if n <= 0 {
		return 0
	}
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}
