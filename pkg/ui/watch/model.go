package watch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mymmrac/telego"

	"tgpoll/pkg/botapi"
)

const (
	maxEntries   = 500
	previewLimit = 120
)

type entry struct {
	updateID int
	kind     botapi.UpdateKind
	chat     string
	text     string
	at       time.Time
}

type updateMsg struct {
	update telego.Update
	ok     bool
	err    error
}

type model struct {
	ctx  context.Context
	src  Source
	info Info

	theme     theme
	spinner   spinner.Model
	viewport  viewport.Model
	entries   []entry
	total     int
	width     int
	height    int
	isReady   bool
	finished  bool
	streamErr error
	followLog bool
}

func newModel(ctx context.Context, src Source, info Info) *model {
	spin := spinner.New()
	spin.Spinner = spinner.Points
	spin.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))

	return &model{
		ctx:       ctx,
		src:       src,
		info:      info,
		theme:     defaultTheme(),
		spinner:   spin,
		viewport:  viewport.New(80, 12),
		width:     100,
		height:    28,
		followLog: true,
	}
}

func (m *model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, nextUpdateCmd(m.ctx, m.src))
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch typed := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = typed.Width
		m.height = typed.Height
		m.resizeComponents()
		m.refreshViewport()
		m.isReady = true
		return m, nil
	case tea.KeyMsg:
		switch typed.String() {
		case "ctrl+c", "esc", "q":
			return m, tea.Quit
		}
		m.handleViewportKey(typed)
		return m, nil
	case tea.MouseMsg:
		m.handleViewportMouse(typed)
		return m, nil
	case spinner.TickMsg:
		if m.finished {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(typed)
		return m, cmd
	case updateMsg:
		if typed.err != nil || !typed.ok {
			m.finished = true
			m.streamErr = typed.err
			m.refreshViewport()
			return m, nil
		}

		m.addEntry(typed.update)
		m.refreshViewport()
		return m, nextUpdateCmd(m.ctx, m.src)
	}

	return m, nil
}

func (m *model) View() string {
	if !m.isReady {
		m.resizeComponents()
		m.refreshViewport()
	}

	header := m.theme.header.Width(m.width - 2).Render("📡 tgpoll live feed")
	meta := m.theme.headerMeta.Render(fmt.Sprintf(
		"bot:@%s · server:%s · updates:%d",
		displayOrNA(m.info.Bot),
		displayOrNA(m.info.APIServer),
		m.total,
	))
	line := m.theme.divider.Width(m.width - 2).Render(strings.Repeat("═", max(8, m.width-2)))

	status := m.theme.statusBusy.Render(fmt.Sprintf("%s waiting for updates...  ·  PgUp/PgDn scroll  ·  q quit", m.spinner.View()))
	if m.finished {
		status = m.theme.status.Render("⏹ polling stopped  ·  q quit")
	}
	if m.streamErr != nil {
		status = m.theme.statusErr.Render(fmt.Sprintf("🚨 polling failed (%s)  ·  q quit", botapi.KindOf(m.streamErr)))
	}

	parts := []string{header, meta, line, m.theme.viewport.Width(m.width - 2).Render(m.viewport.View()), status}
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (m *model) addEntry(update telego.Update) {
	m.total++
	m.entries = append(m.entries, describeUpdate(update, time.Now()))
	if len(m.entries) > maxEntries {
		m.entries = m.entries[len(m.entries)-maxEntries:]
	}
}

func (m *model) resizeComponents() {
	w := m.width - 6
	if w < 50 {
		w = 50
	}
	h := m.height - 7
	if h < 8 {
		h = 8
	}

	m.viewport.Width = w
	m.viewport.Height = h
}

func (m *model) refreshViewport() {
	previousOffset := m.viewport.YOffset

	lines := make([]string, 0, len(m.entries)+1)
	for _, item := range m.entries {
		lines = append(lines, m.renderEntry(item))
	}
	if m.streamErr != nil {
		lines = append(lines, lipgloss.JoinVertical(lipgloss.Left,
			m.theme.errorTitle.Render("▛▚ [ERROR] ▞▜"),
			m.theme.errorBox.Width(m.viewport.Width).Render(m.streamErr.Error()),
		))
	}

	m.viewport.SetContent(strings.Join(lines, "\n"))
	if m.followLog {
		m.viewport.GotoBottom()
		return
	}

	maxOffset := max(0, m.viewport.TotalLineCount()-m.viewport.Height)
	m.viewport.SetYOffset(min(previousOffset, maxOffset))
}

func (m *model) renderEntry(item entry) string {
	parts := []string{
		m.theme.entryChat.Render(item.at.Format("15:04:05")),
		m.theme.entryID.Render(fmt.Sprintf("#%d", item.updateID)),
		m.theme.entryKind.Render(displayOrNA(string(item.kind))),
	}
	if item.chat != "" {
		parts = append(parts, m.theme.entryChat.Render(item.chat))
	}
	if item.text != "" {
		parts = append(parts, m.theme.entryText.Render(item.text))
	}

	return strings.Join(parts, " ")
}

func (m *model) handleViewportKey(msg tea.KeyMsg) bool {
	switch msg.String() {
	case "pgup", "ctrl+b", "up", "k":
		m.viewport.PageUp()
		m.followLog = false
		return true
	case "pgdown", "ctrl+f", "down", "j":
		m.viewport.PageDown()
		if m.viewport.AtBottom() {
			m.followLog = true
		}
		return true
	case "home", "g":
		m.viewport.GotoTop()
		m.followLog = false
		return true
	case "end", "G":
		m.viewport.GotoBottom()
		m.followLog = true
		return true
	default:
		return false
	}
}

func (m *model) handleViewportMouse(msg tea.MouseMsg) bool {
	if msg.Action != tea.MouseActionPress {
		return false
	}

	switch msg.Button {
	case tea.MouseButtonWheelUp:
		m.viewport.ScrollUp(3)
		m.followLog = false
		return true
	case tea.MouseButtonWheelDown:
		m.viewport.ScrollDown(3)
		if m.viewport.AtBottom() {
			m.followLog = true
		}
		return true
	default:
		return false
	}
}

func nextUpdateCmd(ctx context.Context, src Source) tea.Cmd {
	return func() tea.Msg {
		update, ok, err := src.Next(ctx)
		return updateMsg{update: update, ok: ok, err: err}
	}
}

// describeUpdate extracts the chat and text shown for one update.
func describeUpdate(update telego.Update, at time.Time) entry {
	item := entry{updateID: update.UpdateID, kind: botapi.UpdateKindOf(update), at: at}

	var message *telego.Message
	switch {
	case update.Message != nil:
		message = update.Message
	case update.EditedMessage != nil:
		message = update.EditedMessage
	case update.ChannelPost != nil:
		message = update.ChannelPost
	case update.EditedChannelPost != nil:
		message = update.EditedChannelPost
	case update.CallbackQuery != nil:
		item.chat = "@" + displayOrNA(update.CallbackQuery.From.Username)
		item.text = preview(update.CallbackQuery.Data)
	case update.InlineQuery != nil:
		item.chat = "@" + displayOrNA(update.InlineQuery.From.Username)
		item.text = preview(update.InlineQuery.Query)
	}

	if message != nil {
		item.chat = chatLabel(message.Chat)
		text := message.Text
		if text == "" {
			text = message.Caption
		}
		item.text = preview(text)
	}

	return item
}

func chatLabel(chat telego.Chat) string {
	switch {
	case chat.Username != "":
		return "@" + chat.Username
	case chat.Title != "":
		return chat.Title
	default:
		return fmt.Sprintf("chat:%d", chat.ID)
	}
}

func preview(text string) string {
	trimmed := strings.Join(strings.Fields(text), " ")
	runes := []rune(trimmed)
	if len(runes) <= previewLimit {
		return trimmed
	}

	return string(runes[:previewLimit]) + "…"
}

func displayOrNA(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "n/a"
	}

	return trimmed
}
